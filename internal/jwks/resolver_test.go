package jwks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andyleap/oidcflow/internal/fetch"
	"github.com/andyleap/oidcflow/internal/idp"
	"github.com/andyleap/oidcflow/internal/keys"
)

type jwksServer struct {
	*httptest.Server
	hits atomic.Int32

	mu     sync.Mutex
	set    jose.JSONWebKeySet
	status int
}

func newJWKSServer(t *testing.T, set jose.JSONWebKeySet) *jwksServer {
	t.Helper()
	s := &jwksServer{set: set, status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.status != http.StatusOK {
			w.WriteHeader(s.status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.set)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *jwksServer) setKeys(set jose.JSONWebKeySet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = set
}

func (s *jwksServer) setStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func generateKey(t *testing.T) *keys.KeyMaterial {
	t.Helper()
	km, err := keys.Generate(0, "")
	require.NoError(t, err)
	return km
}

func newTestResolver(srv *jwksServer, opts ...Option) *Resolver {
	opts = append([]Option{
		WithFetcher(fetch.New(fetch.WithMaxTries(1), fetch.WithInitialInterval(time.Millisecond))),
	}, opts...)
	return NewResolver(map[idp.Provider]string{idp.Local: srv.URL}, opts...)
}

func TestResolve_CacheHit(t *testing.T) {
	t.Parallel()
	km := generateKey(t)
	srv := newJWKSServer(t, km.PublicJWKS())
	r := newTestResolver(srv)
	ctx := context.Background()

	key, err := r.Resolve(ctx, idp.Local, km.KeyID())
	require.NoError(t, err)
	assert.True(t, km.PublicKey().Equal(key))
	assert.Equal(t, int32(1), srv.hits.Load())

	for i := 0; i < 5; i++ {
		_, err = r.Resolve(ctx, idp.Local, km.KeyID())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), srv.hits.Load(), "cache hits must not fetch")
}

func TestResolve_UnknownKidRefreshesOnce(t *testing.T) {
	t.Parallel()
	km := generateKey(t)
	srv := newJWKSServer(t, km.PublicJWKS())
	r := newTestResolver(srv)
	ctx := context.Background()

	_, err := r.Resolve(ctx, idp.Local, km.KeyID())
	require.NoError(t, err)
	require.Equal(t, int32(1), srv.hits.Load())

	_, err = r.Resolve(ctx, idp.Local, "unknown")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.Equal(t, int32(2), srv.hits.Load())

	_, err = r.Resolve(ctx, idp.Local, "unknown")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.Equal(t, int32(2), srv.hits.Load(), "cooldown must suppress a second refresh")
}

func TestResolve_ColdCacheUnknownKid(t *testing.T) {
	t.Parallel()
	km := generateKey(t)
	srv := newJWKSServer(t, km.PublicJWKS())
	r := newTestResolver(srv)

	_, err := r.Resolve(context.Background(), idp.Local, "unknown")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.Equal(t, int32(1), srv.hits.Load())
}

func TestResolve_KeyRotation(t *testing.T) {
	t.Parallel()
	oldKey := generateKey(t)
	newKey := generateKey(t)
	srv := newJWKSServer(t, oldKey.PublicJWKS())
	r := newTestResolver(srv)
	ctx := context.Background()

	_, err := r.Resolve(ctx, idp.Local, oldKey.KeyID())
	require.NoError(t, err)

	srv.setKeys(newKey.PublicJWKS())

	key, err := r.Resolve(ctx, idp.Local, newKey.KeyID())
	require.NoError(t, err)
	assert.True(t, newKey.PublicKey().Equal(key))
	assert.Equal(t, int32(2), srv.hits.Load())
}

func TestResolve_StaleEntryRefetches(t *testing.T) {
	t.Parallel()
	km := generateKey(t)
	srv := newJWKSServer(t, km.PublicJWKS())
	r := newTestResolver(srv, WithTTL(time.Minute))
	now := time.Now()
	r.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := r.Resolve(ctx, idp.Local, km.KeyID())
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)

	_, err = r.Resolve(ctx, idp.Local, km.KeyID())
	require.NoError(t, err)
	assert.Equal(t, int32(2), srv.hits.Load())
}

func TestResolve_CooldownExpires(t *testing.T) {
	t.Parallel()
	km := generateKey(t)
	srv := newJWKSServer(t, km.PublicJWKS())
	r := newTestResolver(srv, WithMissCooldown(10*time.Second))
	now := time.Now()
	r.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := r.Resolve(ctx, idp.Local, km.KeyID())
	require.NoError(t, err)
	_, err = r.Resolve(ctx, idp.Local, "unknown")
	require.ErrorIs(t, err, ErrKeyNotFound)
	require.Equal(t, int32(2), srv.hits.Load())

	now = now.Add(11 * time.Second)

	_, err = r.Resolve(ctx, idp.Local, "unknown")
	require.ErrorIs(t, err, ErrKeyNotFound)
	assert.Equal(t, int32(3), srv.hits.Load())
}

func TestResolve_Unavailable(t *testing.T) {
	t.Parallel()
	km := generateKey(t)
	srv := newJWKSServer(t, km.PublicJWKS())
	srv.setStatus(http.StatusInternalServerError)
	r := newTestResolver(srv)

	_, err := r.Resolve(context.Background(), idp.Local, km.KeyID())
	assert.ErrorIs(t, err, ErrJWKSUnavailable)
}

func TestResolve_TransportFailure(t *testing.T) {
	t.Parallel()
	srv := newJWKSServer(t, jose.JSONWebKeySet{})
	srv.Close()
	r := newTestResolver(srv)

	_, err := r.Resolve(context.Background(), idp.Local, "any")
	assert.ErrorIs(t, err, ErrJWKSUnavailable)
}

func TestResolve_UnconfiguredProvider(t *testing.T) {
	t.Parallel()
	srv := newJWKSServer(t, jose.JSONWebKeySet{})
	r := newTestResolver(srv)

	_, err := r.Resolve(context.Background(), idp.Google, "any")
	assert.ErrorIs(t, err, idp.ErrUnsupportedProvider)
	assert.Equal(t, int32(0), srv.hits.Load())
}

func TestResolve_SkipsEncryptionKeys(t *testing.T) {
	t.Parallel()
	sig := generateKey(t)
	enc := generateKey(t)
	set := sig.PublicJWKS()
	encJWK := enc.PublicJWK()
	encJWK.Use = "enc"
	set.Keys = append(set.Keys, encJWK)

	srv := newJWKSServer(t, set)
	r := newTestResolver(srv)
	ctx := context.Background()

	_, err := r.Resolve(ctx, idp.Local, sig.KeyID())
	require.NoError(t, err)

	_, err = r.Resolve(ctx, idp.Local, enc.KeyID())
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestResolve_ConcurrentColdStartFetchesOnce(t *testing.T) {
	t.Parallel()
	km := generateKey(t)
	srv := newJWKSServer(t, km.PublicJWKS())
	r := newTestResolver(srv)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Resolve(context.Background(), idp.Local, km.KeyID())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), srv.hits.Load())
}

func TestResolve_EmptyKidWithSingleKey(t *testing.T) {
	t.Parallel()
	km := generateKey(t)
	srv := newJWKSServer(t, km.PublicJWKS())
	r := newTestResolver(srv)

	key, err := r.Resolve(context.Background(), idp.Local, "")
	require.NoError(t, err)
	assert.True(t, km.PublicKey().Equal(key))
}
