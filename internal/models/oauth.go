package models

import (
	"time"
)

// Client represents a registered OAuth client application
type Client struct {
	ID          string `json:"client_id" yaml:"client_id"`
	Secret      string `json:"-" yaml:"client_secret"`
	Name        string `json:"name" yaml:"name"`
	RedirectURI string `json:"redirect_uri" yaml:"redirect_uri"`
}

// AuthorizationGrant is the server-side record behind an authorization code
type AuthorizationGrant struct {
	Code      string    `json:"code"`
	ClientID  string    `json:"client_id"`
	Scope     string    `json:"scope"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Consumed  bool      `json:"consumed"`
}

// Expired reports whether the grant is past its expiry at now
func (g *AuthorizationGrant) Expired(now time.Time) bool {
	return !now.Before(g.ExpiresAt)
}

// TokenResponse is the body returned by the token endpoint
type TokenResponse struct {
	IDToken     string `json:"id_token"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
	Scope       string `json:"scope,omitempty"`
}

// ErrorResponse is an OAuth 2.0 error body
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}
