// Package jwks resolves token verification keys from identity provider JWKS
// documents, caching them per provider.
package jwks

import (
	"context"
	"crypto"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"golang.org/x/sync/singleflight"

	"github.com/andyleap/oidcflow/internal/fetch"
	"github.com/andyleap/oidcflow/internal/idp"
	"github.com/andyleap/oidcflow/internal/metrics"
)

const (
	DefaultTTL          = time.Hour
	DefaultMissCooldown = 30 * time.Second
)

var (
	// ErrJWKSUnavailable means the JWKS document could not be fetched or decoded.
	ErrJWKSUnavailable = errors.New("jwks unavailable")
	// ErrKeyNotFound means the kid is absent even after a refresh.
	ErrKeyNotFound = errors.New("signing key not found")
)

type entry struct {
	keys            map[string]jose.JSONWebKey
	fetchedAt       time.Time
	missRefreshedAt time.Time
}

// Resolver caches one key set per provider. A kid missing from a fresh set
// triggers at most one refresh per cooldown window.
type Resolver struct {
	uris     map[idp.Provider]string
	fetcher  *fetch.Client
	ttl      time.Duration
	cooldown time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[idp.Provider]*entry
}

type Option func(*Resolver)

func WithFetcher(f *fetch.Client) Option {
	return func(r *Resolver) { r.fetcher = f }
}

func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithMissCooldown sets the minimum spacing of refreshes caused by unknown kids.
func WithMissCooldown(d time.Duration) Option {
	return func(r *Resolver) { r.cooldown = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a resolver for the given provider JWKS URIs.
func NewResolver(uris map[idp.Provider]string, opts ...Option) *Resolver {
	r := &Resolver{
		uris:     make(map[idp.Provider]string, len(uris)),
		ttl:      DefaultTTL,
		cooldown: DefaultMissCooldown,
		now:      time.Now,
		entries:  make(map[idp.Provider]*entry),
	}
	for p, uri := range uris {
		r.uris[p] = uri
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.fetcher == nil {
		r.fetcher = fetch.New()
	}
	return r
}

// NewRegistryResolver creates a resolver covering every provider in reg.
func NewRegistryResolver(reg *idp.Registry, opts ...Option) *Resolver {
	uris := make(map[idp.Provider]string)
	for _, d := range reg.Descriptors() {
		uris[d.Provider] = d.JWKSURI
	}
	return NewResolver(uris, opts...)
}

// Resolve returns the public key for kid published by provider.
func (r *Resolver) Resolve(ctx context.Context, provider idp.Provider, kid string) (crypto.PublicKey, error) {
	jwk, err := r.ResolveJWK(ctx, provider, kid)
	if err != nil {
		return nil, err
	}
	return jwk.Key, nil
}

// ResolveJWK is Resolve but returns the whole JWK, including its alg.
func (r *Resolver) ResolveJWK(ctx context.Context, provider idp.Provider, kid string) (jose.JSONWebKey, error) {
	uri, ok := r.uris[provider]
	if !ok {
		return jose.JSONWebKey{}, fmt.Errorf("%w: no jwks uri for %s", idp.ErrUnsupportedProvider, provider)
	}

	key, found, fresh, coolingDown := r.lookup(provider, kid)
	if found && fresh {
		return key, nil
	}
	if fresh && coolingDown {
		return jose.JSONWebKey{}, fmt.Errorf("%w: kid %q from %s", ErrKeyNotFound, kid, provider)
	}

	// A fresh set that lacks kid means the provider may have rotated keys.
	if err := r.refresh(ctx, provider, uri, fresh); err != nil {
		return jose.JSONWebKey{}, err
	}

	key, found, _, _ = r.lookup(provider, kid)
	if !found {
		return jose.JSONWebKey{}, fmt.Errorf("%w: kid %q from %s", ErrKeyNotFound, kid, provider)
	}
	return key, nil
}

func (r *Resolver) lookup(provider idp.Provider, kid string) (key jose.JSONWebKey, found, fresh, coolingDown bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[provider]
	if !ok {
		return jose.JSONWebKey{}, false, false, false
	}

	now := r.now()
	fresh = now.Sub(e.fetchedAt) < r.ttl
	coolingDown = !e.missRefreshedAt.IsZero() && now.Sub(e.missRefreshedAt) < r.cooldown

	if kid == "" && len(e.keys) == 1 {
		for _, k := range e.keys {
			return k, true, fresh, coolingDown
		}
	}
	key, found = e.keys[kid]
	return key, found, fresh, coolingDown
}

func (r *Resolver) refresh(ctx context.Context, provider idp.Provider, uri string, missTriggered bool) error {
	ch := r.group.DoChan(provider.String(), func() (any, error) {
		// A flight that finished just before this one may already have
		// done the work.
		if r.recentlyRefreshed(provider, missTriggered) {
			return nil, nil
		}

		// The flight outlives any single caller.
		keys, err := r.fetchKeys(context.WithoutCancel(ctx), uri)
		if err != nil {
			r.metrics.JWKSFetch(provider.String(), "error")
			return nil, err
		}
		r.metrics.JWKSFetch(provider.String(), "ok")

		now := r.now()
		e := &entry{keys: keys, fetchedAt: now}
		if missTriggered {
			e.missRefreshedAt = now
		}

		r.mu.Lock()
		r.entries[provider] = e
		r.mu.Unlock()

		slog.Debug("Refreshed JWKS", "provider", provider.String(), "keys", len(keys), "miss", missTriggered)
		return nil, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return fmt.Errorf("%w: %s: %w", ErrJWKSUnavailable, provider, res.Err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %w", ErrJWKSUnavailable, provider, ctx.Err())
	}
}

func (r *Resolver) recentlyRefreshed(provider idp.Provider, missTriggered bool) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[provider]
	if !ok {
		return false
	}
	now := r.now()
	if missTriggered {
		return !e.missRefreshedAt.IsZero() && now.Sub(e.missRefreshedAt) < r.cooldown
	}
	return now.Sub(e.fetchedAt) < r.ttl
}

// fetchKeys downloads the key set and keeps the valid signing keys. Keys that
// fail to parse are skipped rather than failing the whole document.
func (r *Resolver) fetchKeys(ctx context.Context, uri string) (map[string]jose.JSONWebKey, error) {
	var doc struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := r.fetcher.GetJSON(ctx, uri, "", &doc); err != nil {
		return nil, err
	}

	keys := make(map[string]jose.JSONWebKey, len(doc.Keys))
	for _, raw := range doc.Keys {
		var k jose.JSONWebKey
		if err := k.UnmarshalJSON(raw); err != nil {
			slog.Debug("Skipping unparseable JWK", "uri", uri, "error", err)
			continue
		}
		if k.Use != "sig" && k.Use != "" {
			continue
		}
		if !k.Valid() {
			continue
		}
		keys[k.KeyID] = k.Public()
	}
	return keys, nil
}
