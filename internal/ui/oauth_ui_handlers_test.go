package ui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andyleap/oidcflow/internal/idp"
	"github.com/andyleap/oidcflow/internal/rp"
)

type stubAuthenticator struct {
	configured map[idp.Provider]bool
	result     *rp.Result
	err        error

	gotProvider idp.Provider
	gotCode     string
}

func (s *stubAuthenticator) BuildLoginURL(p idp.Provider) (string, error) {
	if !s.configured[p] {
		return "", fmt.Errorf("%w: %s", idp.ErrUnsupportedProvider, p)
	}
	return "https://idp.example.com/authorize?client_id=" + p.String(), nil
}

func (s *stubAuthenticator) HandleCallback(_ context.Context, p idp.Provider, code string) (*rp.Result, error) {
	s.gotProvider = p
	s.gotCode = code
	if !s.configured[p] {
		return nil, fmt.Errorf("%w: %s", idp.ErrUnsupportedProvider, p)
	}
	return s.result, s.err
}

func newTestHandlers(t *testing.T, auth *stubAuthenticator) http.Handler {
	t.Helper()
	var providers []idp.Descriptor
	for _, p := range idp.All {
		if auth.configured[p] {
			providers = append(providers, idp.Descriptor{Provider: p})
		}
	}
	h, err := NewOAuthUIHandlers(auth, providers)
	require.NoError(t, err)

	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func serve(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestIndexHandler(t *testing.T) {
	h := newTestHandlers(t, &stubAuthenticator{configured: map[idp.Provider]bool{idp.Local: true, idp.Keycloak: true}})

	rec := serve(h, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	body := rec.Body.String()
	assert.Contains(t, body, `href="/login/local"`)
	assert.Contains(t, body, `href="/login/keycloak"`)
	assert.NotContains(t, body, `/login/google`)

	assert.Equal(t, http.StatusNotFound, serve(h, "/nope").Code)
}

func TestLoginHandler(t *testing.T) {
	h := newTestHandlers(t, &stubAuthenticator{configured: map[idp.Provider]bool{idp.Local: true}})

	rec := serve(h, "/login/local")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://idp.example.com/authorize?client_id=local", rec.Header().Get("Location"))

	rec = serve(h, "/login/github")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unsupported identity provider")

	rec = serve(h, "/login/google")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "not configured")
}

func TestCallbackHandler_Success(t *testing.T) {
	auth := &stubAuthenticator{
		configured: map[idp.Provider]bool{idp.Google: true},
		result: &rp.Result{
			Provider:          idp.Google,
			Subject:           "10769150350006150715113082367",
			TokenType:         "Bearer",
			IDToken:           "header.payload.sig",
			IDTokenHeader:     map[string]any{"alg": "RS256", "kid": "k1"},
			IDTokenClaims:     map[string]any{"sub": "10769150350006150715113082367", "email": "jsmith@example.com"},
			AccessToken:       "ya29.opaque",
			AccessTokenFormat: idp.Opaque,
			AccessTokenClaims: map[string]any{"scope": "openid profile"},
			Profile:           map[string]any{"name": "Jane Smith"},
		},
	}
	h := newTestHandlers(t, auth)

	rec := serve(h, "/callback/google?code=abc")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, idp.Google, auth.gotProvider)
	assert.Equal(t, "abc", auth.gotCode)

	body := rec.Body.String()
	assert.Contains(t, body, "Logged in with Google")
	assert.Contains(t, body, "jsmith@example.com")
	assert.Contains(t, body, "Access token introspection")
	assert.NotContains(t, body, "Access token header")
	assert.Contains(t, body, "Jane Smith")
	assert.Contains(t, body, "ya29.opaque")
}

func TestCallbackHandler_ProfileError(t *testing.T) {
	auth := &stubAuthenticator{
		configured: map[idp.Provider]bool{idp.Local: true},
		result: &rp.Result{
			Provider:          idp.Local,
			Subject:           "1",
			AccessTokenFormat: idp.JWT,
			AccessTokenHeader: map[string]any{"alg": "RS256"},
			ProfileError:      errors.New("status 403"),
		},
	}
	h := newTestHandlers(t, auth)

	rec := serve(h, "/callback/local?code=abc")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Access token header")
	assert.Contains(t, body, "Profile unavailable: status 403")
}

func TestCallbackHandler_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		status int
		body   string
	}{
		{name: "unknown provider", target: "/callback/github?code=abc", status: http.StatusBadRequest, body: "Unsupported identity provider"},
		{name: "unconfigured provider", target: "/callback/keycloak?code=abc", status: http.StatusBadRequest, body: "not configured"},
		{name: "missing code", target: "/callback/local", status: http.StatusBadRequest, body: "Missing authorization code"},
		{name: "provider error", target: "/callback/local?error=access_denied&error_description=User+cancelled", status: http.StatusBadRequest, body: "access_denied: User cancelled"},
		{
			name:   "authentication failure",
			target: "/callback/local?code=abc",
			err:    fmt.Errorf("%w: local: token exchange: secret leaked here", rp.ErrAuthenticationFailed),
			status: http.StatusInternalServerError,
			body:   "Authentication failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &stubAuthenticator{configured: map[idp.Provider]bool{idp.Local: true}, err: tt.err}
			h := newTestHandlers(t, auth)

			rec := serve(h, tt.target)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
			assert.NotContains(t, rec.Body.String(), "secret leaked here")
		})
	}
}
