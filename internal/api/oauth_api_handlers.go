package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/andyleap/oidcflow/internal/guard"
	"github.com/andyleap/oidcflow/internal/keys"
	"github.com/andyleap/oidcflow/internal/models"
	"github.com/andyleap/oidcflow/internal/oauth"
)

const maxFormBytes = 64 << 10

type OAuthAPIHandlers struct {
	oauthService *oauth.OAuthService
	keys         *keys.KeyMaterial
	discovery    models.DiscoveryDocument
}

func NewOAuthAPIHandlers(oauthService *oauth.OAuthService, km *keys.KeyMaterial, issuer string) *OAuthAPIHandlers {
	return &OAuthAPIHandlers{
		oauthService: oauthService,
		keys:         km,
		discovery:    NewDiscoveryDocument(issuer),
	}
}

// NewDiscoveryDocument describes the endpoints served under issuer.
func NewDiscoveryDocument(issuer string) models.DiscoveryDocument {
	issuer = strings.TrimRight(issuer, "/")
	return models.DiscoveryDocument{
		Issuer:                            issuer,
		AuthorizationEndpoint:             issuer + "/authorize",
		TokenEndpoint:                     issuer + "/token",
		UserInfoEndpoint:                  issuer + "/userinfo",
		JWKSURI:                           issuer + "/.well-known/jwks.json",
		ResponseTypesSupported:            []string{"code"},
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{keys.Algorithm},
		ScopesSupported:                   []string{"openid", "profile", "email"},
		GrantTypesSupported:               []string{oauth.GrantTypeAuthorizationCode},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_post"},
		ClaimsSupported:                   []string{"sub", "iss", "aud", "exp", "iat", "jti", "scope"},
	}
}

// DiscoveryHandler serves the OpenID provider metadata
// GET /.well-known/openid-configuration
func (oh *OAuthAPIHandlers) DiscoveryHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, http.StatusOK, oh.discovery)
}

// JWKSHandler publishes the public signing key
// GET /.well-known/jwks.json
func (oh *OAuthAPIHandlers) JWKSHandler(w http.ResponseWriter, r *http.Request) {
	data, err := json.Marshal(oh.keys.PublicJWKS())
	if err != nil {
		slog.Error("Failed to marshal JWKS", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Write(data)
}

// AuthorizeHandler issues an authorization code and redirects back to the client
// GET /authorize?client_id=client-id&redirect_uri=http://localhost:4000/callback/local&response_type=code&scope=openid
func (oh *OAuthAPIHandlers) AuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	location, err := oh.oauthService.Authorize(r.Context(), oauth.AuthorizationRequest{
		ClientID:     q.Get("client_id"),
		RedirectURI:  q.Get("redirect_uri"),
		ResponseType: q.Get("response_type"),
		Scope:        q.Get("scope"),
	})
	if err != nil {
		// Errors are never sent back through the redirect URI.
		switch {
		case errors.Is(err, oauth.ErrUnsupportedResponseType):
			writeError(w, http.StatusBadRequest, "unsupported_response_type", "Only response_type=code is supported")
		case errors.Is(err, oauth.ErrInvalidClient), errors.Is(err, oauth.ErrInvalidRequest):
			slog.Warn("Rejected authorization request", "client_id", q.Get("client_id"), "error", err)
			writeError(w, http.StatusBadRequest, "invalid_request", "Invalid client_id or redirect_uri")
		default:
			slog.Error("Authorization error", "error", err)
			writeError(w, http.StatusInternalServerError, "server_error", "")
		}
		return
	}

	http.Redirect(w, r, location, http.StatusFound)
}

// TokenHandler handles authorization code exchange
// POST /token
func (oh *OAuthAPIHandlers) TokenHandler(w http.ResponseWriter, r *http.Request) {
	request, err := parseTokenRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Malformed token request")
		return
	}

	response, err := oh.oauthService.ExchangeAuthorizationCode(r.Context(), request)
	if err != nil {
		switch {
		case errors.Is(err, oauth.ErrInvalidClient):
			writeError(w, http.StatusBadRequest, "invalid_client", "Client authentication failed")
		case errors.Is(err, oauth.ErrInvalidGrant):
			writeError(w, http.StatusBadRequest, "invalid_grant", "Invalid authorization code")
		case errors.Is(err, oauth.ErrUnsupportedGrantType):
			writeError(w, http.StatusBadRequest, "unsupported_grant_type", "")
		case errors.Is(err, oauth.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, "invalid_request", "code and client_id are required")
		default:
			slog.Error("Token exchange error", "error", err)
			writeError(w, http.StatusInternalServerError, "server_error", "")
		}
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, http.StatusOK, response)
}

// parseTokenRequest accepts the standard form encoding and, for convenience,
// a JSON body with the same field names.
func parseTokenRequest(w http.ResponseWriter, r *http.Request) (oauth.TokenRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var request struct {
			GrantType    string `json:"grant_type"`
			Code         string `json:"code"`
			ClientID     string `json:"client_id"`
			ClientSecret string `json:"client_secret"`
			RedirectURI  string `json:"redirect_uri"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			return oauth.TokenRequest{}, err
		}
		return oauth.TokenRequest(request), nil
	}

	if err := r.ParseForm(); err != nil {
		return oauth.TokenRequest{}, err
	}
	return oauth.TokenRequest{
		GrantType:    r.PostForm.Get("grant_type"),
		Code:         r.PostForm.Get("code"),
		ClientID:     r.PostForm.Get("client_id"),
		ClientSecret: r.PostForm.Get("client_secret"),
		RedirectURI:  r.PostForm.Get("redirect_uri"),
	}, nil
}

// UserInfoHandler returns the subject and scope of the presented access token.
// Must be mounted behind a guard.Guard.
// GET /userinfo
func (oh *OAuthAPIHandlers) UserInfoHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := guard.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_token", "Invalid token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"sub":   claims.Subject,
		"scope": claims.Scope,
	})
}
