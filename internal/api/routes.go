package api

import (
	"net/http"

	"github.com/andyleap/oidcflow/internal/guard"
)

// Register mounts the authorization server endpoints on mux.
func (oh *OAuthAPIHandlers) Register(mux *http.ServeMux, g *guard.Guard) {
	mux.HandleFunc("GET /.well-known/openid-configuration", oh.DiscoveryHandler)
	mux.HandleFunc("GET /.well-known/jwks.json", oh.JWKSHandler)
	mux.HandleFunc("GET /authorize", oh.AuthorizeHandler)
	mux.HandleFunc("POST /token", oh.TokenHandler)
	mux.Handle("GET /userinfo", g.Middleware(http.HandlerFunc(oh.UserInfoHandler)))
	mux.HandleFunc("GET /health", HealthHandler)
}

// ProtectedResourceHandler is the resource server's guarded endpoint
// GET /api/protected
func ProtectedResourceHandler(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"message": "This is a protected resource!"}
	if claims, ok := guard.ClaimsFromContext(r.Context()); ok {
		body["sub"] = claims.Subject
	}
	writeJSON(w, http.StatusOK, body)
}

// RegisterResource mounts the resource server endpoints on mux.
func RegisterResource(mux *http.ServeMux, g *guard.Guard) {
	mux.Handle("GET /api/protected", g.Middleware(http.HandlerFunc(ProtectedResourceHandler)))
	mux.HandleFunc("GET /health", HealthHandler)
}
