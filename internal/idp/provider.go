// Package idp describes the identity providers the relying party can log in
// against.
package idp

import (
	"errors"
	"fmt"
)

// Provider is the closed set of supported identity providers.
type Provider int

const (
	Local Provider = iota
	Google
	Keycloak
)

// All lists every provider in display order.
var All = []Provider{Local, Google, Keycloak}

var ErrUnsupportedProvider = errors.New("unsupported identity provider")

func (p Provider) String() string {
	switch p {
	case Local:
		return "local"
	case Google:
		return "google"
	case Keycloak:
		return "keycloak"
	}
	return fmt.Sprintf("Provider(%d)", int(p))
}

// ParseProvider maps a route segment to a provider.
func ParseProvider(name string) (Provider, error) {
	switch name {
	case "local":
		return Local, nil
	case "google":
		return Google, nil
	case "keycloak":
		return Keycloak, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedProvider, name)
}

// TokenFormat is how a provider encodes its access tokens.
type TokenFormat int

const (
	// JWT access tokens are verified locally against the provider JWKS.
	JWT TokenFormat = iota
	// Opaque access tokens are resolved through the provider's introspection endpoint.
	Opaque
)

func (p Provider) AccessTokenFormat() TokenFormat {
	switch p {
	case Local, Keycloak:
		return JWT
	case Google:
		return Opaque
	}
	panic(fmt.Sprintf("idp: unknown provider %d", int(p)))
}

// DisplayName is the human facing label used on the landing page.
func (p Provider) DisplayName() string {
	switch p {
	case Local:
		return "Local OIDC Server"
	case Google:
		return "Google"
	case Keycloak:
		return "Keycloak"
	}
	return p.String()
}
