package oauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/andyleap/oidcflow/internal/metrics"
	"github.com/andyleap/oidcflow/internal/models"
	"github.com/andyleap/oidcflow/internal/storage"
	"github.com/andyleap/oidcflow/internal/token"
)

const GrantTypeAuthorizationCode = "authorization_code"

var (
	ErrInvalidClient           = errors.New("invalid client")
	ErrInvalidRequest          = errors.New("invalid request")
	ErrUnsupportedResponseType = errors.New("unsupported response type")
	ErrUnsupportedGrantType    = errors.New("unsupported grant type")
	ErrInvalidGrant            = storage.ErrInvalidGrant
)

// AuthorizationRequest is the query of a GET /authorize call.
type AuthorizationRequest struct {
	ClientID     string
	RedirectURI  string
	ResponseType string
	Scope        string
}

// TokenRequest is the form body of a POST /token call.
type TokenRequest struct {
	GrantType    string
	Code         string
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

type OAuthService struct {
	codes   storage.CodeStore
	issuer  *token.Issuer
	clients map[string]*models.Client
	subject string
	metrics *metrics.Metrics
}

// NewOAuthService wires the authorization server. subject is the fixed
// end-user identifier stamped into every token, as there is no login step.
func NewOAuthService(codes storage.CodeStore, issuer *token.Issuer, clients []models.Client, subject string, m *metrics.Metrics) (*OAuthService, error) {
	registered := make(map[string]*models.Client, len(clients))
	for i := range clients {
		c := clients[i]
		if c.ID == "" || c.Secret == "" || c.RedirectURI == "" {
			return nil, fmt.Errorf("client %q: client_id, client_secret and redirect_uri are required", c.ID)
		}
		if _, dup := registered[c.ID]; dup {
			return nil, fmt.Errorf("client %q registered twice", c.ID)
		}
		if _, err := url.ParseRequestURI(c.RedirectURI); err != nil {
			return nil, fmt.Errorf("client %q: invalid redirect_uri: %w", c.ID, err)
		}
		registered[c.ID] = &c
	}

	return &OAuthService{
		codes:   codes,
		issuer:  issuer,
		clients: registered,
		subject: subject,
		metrics: m,
	}, nil
}

// ValidateAuthorizationRequest checks the client id and the exact redirect URI
func (o *OAuthService) ValidateAuthorizationRequest(clientID, redirectURI string) (*models.Client, error) {
	client, exists := o.clients[clientID]
	if !exists {
		return nil, fmt.Errorf("%w: unknown client_id", ErrInvalidClient)
	}

	if client.RedirectURI != redirectURI {
		return nil, fmt.Errorf("%w: redirect_uri mismatch", ErrInvalidClient)
	}

	return client, nil
}

// Authorize validates req, issues a grant and returns the redirect target
// carrying the code. Nothing is stored when validation fails.
func (o *OAuthService) Authorize(ctx context.Context, req AuthorizationRequest) (string, error) {
	if req.ClientID == "" || req.RedirectURI == "" {
		return "", fmt.Errorf("%w: client_id and redirect_uri are required", ErrInvalidRequest)
	}

	client, err := o.ValidateAuthorizationRequest(req.ClientID, req.RedirectURI)
	if err != nil {
		return "", err
	}

	if req.ResponseType != "code" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedResponseType, req.ResponseType)
	}

	code, err := o.codes.Issue(ctx, client.ID, req.Scope)
	if err != nil {
		return "", fmt.Errorf("failed to issue authorization code: %w", err)
	}
	o.metrics.CodeIssued()

	return o.BuildRedirectURL(client.RedirectURI, code), nil
}

// ExchangeAuthorizationCode redeems the code in req and mints the token pair.
// Client credentials are checked before the code is touched, so a rejected
// request never consumes a grant.
func (o *OAuthService) ExchangeAuthorizationCode(ctx context.Context, req TokenRequest) (*models.TokenResponse, error) {
	if req.GrantType != "" && req.GrantType != GrantTypeAuthorizationCode {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedGrantType, req.GrantType)
	}
	if req.Code == "" || req.ClientID == "" {
		return nil, fmt.Errorf("%w: code and client_id are required", ErrInvalidRequest)
	}

	client, err := o.authenticateClient(req.ClientID, req.ClientSecret, req.RedirectURI)
	if err != nil {
		o.metrics.CodeRedeemed("invalid_client")
		return nil, err
	}

	grant, err := o.codes.Redeem(ctx, req.Code, client.ID)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidGrant) {
			o.metrics.CodeRedeemed("invalid_grant")
		} else {
			o.metrics.CodeRedeemed("error")
		}
		return nil, err
	}
	o.metrics.CodeRedeemed("ok")

	idToken, err := o.issuer.IssueIDToken(o.subject, client.ID)
	if err != nil {
		return nil, err
	}
	o.metrics.TokenIssued("id")

	accessToken, err := o.issuer.IssueAccessToken(o.subject, client.ID, grant.Scope)
	if err != nil {
		return nil, err
	}
	o.metrics.TokenIssued("access")

	slog.Info("Issued tokens", "client_id", client.ID, "scope", grant.Scope)

	return &models.TokenResponse{
		IDToken:     idToken,
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(o.issuer.TTL().Seconds()),
		Scope:       grant.Scope,
	}, nil
}

func (o *OAuthService) authenticateClient(clientID, secret, redirectURI string) (*models.Client, error) {
	client, err := o.ValidateAuthorizationRequest(clientID, redirectURI)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(client.Secret), []byte(secret)) != 1 {
		return nil, fmt.Errorf("%w: bad client_secret", ErrInvalidClient)
	}
	return client, nil
}

// BuildRedirectURL adds the code to the redirect URI, keeping its existing query
func (o *OAuthService) BuildRedirectURL(redirectURI, code string) string {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return redirectURI // fallback
	}

	q := u.Query()
	q.Set("code", code)
	u.RawQuery = q.Encode()

	return u.String()
}

// GetClient returns a client by ID
func (o *OAuthService) GetClient(clientID string) (*models.Client, bool) {
	client, exists := o.clients[clientID]
	return client, exists
}
