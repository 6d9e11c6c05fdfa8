// Package guard protects HTTP handlers with bearer token verification.
package guard

import (
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/andyleap/oidcflow/internal/metrics"
	"github.com/andyleap/oidcflow/internal/models"
	"github.com/andyleap/oidcflow/internal/token"
)

// TokenVerifier validates a raw bearer token.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*token.Claims, error)
}

// StaticKeyVerifier verifies tokens against one configured public key.
type StaticKeyVerifier struct {
	key crypto.PublicKey
	alg string
}

func NewStaticKeyVerifier(key crypto.PublicKey, alg string) *StaticKeyVerifier {
	return &StaticKeyVerifier{key: key, alg: alg}
}

func (v *StaticKeyVerifier) Verify(_ context.Context, raw string) (*token.Claims, error) {
	return token.Verify(raw, v.key, v.alg)
}

// ClaimsContextKey is the key used to store verified claims in the request context.
type ClaimsContextKey struct{}

func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey{}).(*token.Claims)
	return claims, ok
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return "", false
	}
	return strings.TrimSpace(raw), true
}

type Guard struct {
	verifier TokenVerifier
	realm    string
	metrics  *metrics.Metrics
}

func New(verifier TokenVerifier, realm string, m *metrics.Metrics) *Guard {
	return &Guard{
		verifier: verifier,
		realm:    realm,
		metrics:  m,
	}
}

// Middleware rejects requests without a valid bearer token with 401 and
// passes the rest through with the claims attached to the context.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := BearerToken(r)
		if !ok {
			g.metrics.GuardResult("missing_token")
			g.unauthorized(w, "missing_token", "Missing token", false)
			return
		}

		claims, err := g.verifier.Verify(r.Context(), raw)
		if err != nil {
			slog.Debug("Bearer token rejected", "path", r.URL.Path, "error", err)
			g.metrics.GuardResult("invalid_token")
			g.unauthorized(w, "invalid_token", "Invalid token", true)
			return
		}

		g.metrics.GuardResult("ok")
		ctx := context.WithValue(r.Context(), ClaimsContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *Guard) unauthorized(w http.ResponseWriter, code, description string, withError bool) {
	challenge := fmt.Sprintf("Bearer realm=%q", g.realm)
	if withError {
		challenge += fmt.Sprintf(", error=%q", code)
	}
	w.Header().Set("WWW-Authenticate", challenge)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Error:            code,
		ErrorDescription: description,
	})
}
