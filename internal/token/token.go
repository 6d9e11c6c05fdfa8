// Package token mints and verifies the signed identity and access tokens
// exchanged by the authorization server, relying party and resource server.
package token

import (
	"crypto"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/andyleap/oidcflow/internal/keys"
)

const DefaultTTL = time.Hour

var (
	// ErrInvalidToken is the root of every verification failure.
	ErrInvalidToken = errors.New("invalid token")

	ErrMalformedToken   = fmt.Errorf("%w: malformed", ErrInvalidToken)
	ErrSignatureInvalid = fmt.Errorf("%w: signature", ErrInvalidToken)
	ErrTokenExpired     = fmt.Errorf("%w: expired", ErrInvalidToken)
)

// Claims carried by both identity and access tokens. Scope is only set on
// access tokens.
type Claims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope,omitempty"`
}

// HasAudience reports whether aud is one of the token audiences.
func (c *Claims) HasAudience(aud string) bool {
	return slices.Contains(c.Audience, aud)
}

// Issuer signs tokens with a single key.
type Issuer struct {
	key    *keys.KeyMaterial
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(key *keys.KeyMaterial, issuer string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{
		key:    key,
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL is the lifetime stamped on issued tokens.
func (i *Issuer) TTL() time.Duration { return i.ttl }

func (i *Issuer) Sign(claims *Claims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = i.key.KeyID()

	signed, err := tok.SignedString(i.key.PrivateKey())
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (i *Issuer) IssueIDToken(subject, clientID string) (string, error) {
	return i.Sign(i.baseClaims(subject, clientID))
}

func (i *Issuer) IssueAccessToken(subject, clientID, scope string) (string, error) {
	claims := i.baseClaims(subject, clientID)
	claims.Scope = scope
	return i.Sign(claims)
}

func (i *Issuer) baseClaims(subject, clientID string) *Claims {
	now := i.now()
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{clientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
		},
	}
}

// Verify checks structure, signature and expiry of raw against key. Only
// tokens signed with alg are accepted.
func Verify(raw string, key crypto.PublicKey, alg string) (*Claims, error) {
	if !allowedAlgorithm(alg) {
		return nil, fmt.Errorf("%w: algorithm %q not accepted", ErrSignatureInvalid, alg)
	}

	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{alg}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, classify(err)
	}
	if !tok.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	default:
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
}

// none and HMAC are never accepted: the verifying side only holds public keys.
func allowedAlgorithm(alg string) bool {
	switch alg {
	case "RS256", "RS384", "RS512", "PS256", "PS384", "PS512", "ES256", "ES384", "ES512":
		return true
	}
	return false
}
