package idp

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrInvalidDescriptor = errors.New("invalid provider descriptor")

// Descriptor holds everything the relying party needs to run the
// authorization code flow against one provider.
type Descriptor struct {
	Provider              Provider
	ClientID              string
	ClientSecret          string
	AuthorizationEndpoint string
	TokenEndpoint         string
	JWKSURI               string
	RedirectURI           string
	Scope                 string

	// Optional.
	ProfileEndpoint       string
	IntrospectionEndpoint string
}

func (d Descriptor) Name() string { return d.Provider.String() }

func (d Descriptor) Validate() error {
	if d.ClientID == "" {
		return fmt.Errorf("%w: %s: client id is required", ErrInvalidDescriptor, d.Name())
	}
	required := map[string]string{
		"authorization endpoint": d.AuthorizationEndpoint,
		"token endpoint":         d.TokenEndpoint,
		"jwks uri":               d.JWKSURI,
		"redirect uri":           d.RedirectURI,
	}
	if d.Provider.AccessTokenFormat() == Opaque {
		required["introspection endpoint"] = d.IntrospectionEndpoint
	}
	for field, value := range required {
		if err := validateURL(value); err != nil {
			return fmt.Errorf("%w: %s: %s: %v", ErrInvalidDescriptor, d.Name(), field, err)
		}
	}
	if d.ProfileEndpoint != "" {
		if err := validateURL(d.ProfileEndpoint); err != nil {
			return fmt.Errorf("%w: %s: profile endpoint: %v", ErrInvalidDescriptor, d.Name(), err)
		}
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("missing")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// Registry is the immutable set of providers configured at startup.
type Registry struct {
	descriptors map[Provider]Descriptor
}

func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{descriptors: make(map[Provider]Descriptor, len(descriptors))}
	for _, d := range descriptors {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.descriptors[d.Provider]; dup {
			return nil, fmt.Errorf("%w: %s registered twice", ErrInvalidDescriptor, d.Name())
		}
		r.descriptors[d.Provider] = d
	}
	return r, nil
}

func (r *Registry) Lookup(p Provider) (Descriptor, error) {
	d, ok := r.descriptors[p]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s is not configured", ErrUnsupportedProvider, p)
	}
	return d, nil
}

// Descriptors returns the registered providers in display order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.descriptors))
	for _, p := range All {
		if d, ok := r.descriptors[p]; ok {
			out = append(out, d)
		}
	}
	return out
}

// Credentials are the client id and secret registered with a provider.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Settings feed DefaultDescriptors.
type Settings struct {
	// RedirectBase is the externally visible base URL of the relying party.
	RedirectBase string

	LocalIssuer string
	Local       Credentials

	Google Credentials

	KeycloakURL   string
	KeycloakRealm string
	Keycloak      Credentials
}

// DefaultDescriptors builds one descriptor per provider from s.
func DefaultDescriptors(s Settings) []Descriptor {
	base := strings.TrimRight(s.RedirectBase, "/")
	out := make([]Descriptor, 0, len(All))
	for _, p := range All {
		out = append(out, defaultDescriptor(p, s, base+"/callback/"+p.String()))
	}
	return out
}

func defaultDescriptor(p Provider, s Settings, redirectURI string) Descriptor {
	switch p {
	case Local:
		issuer := strings.TrimRight(s.LocalIssuer, "/")
		return Descriptor{
			Provider:              Local,
			ClientID:              s.Local.ClientID,
			ClientSecret:          s.Local.ClientSecret,
			AuthorizationEndpoint: issuer + "/authorize",
			TokenEndpoint:         issuer + "/token",
			JWKSURI:               issuer + "/.well-known/jwks.json",
			ProfileEndpoint:       issuer + "/userinfo",
			RedirectURI:           redirectURI,
			Scope:                 "openid profile",
		}
	case Google:
		return Descriptor{
			Provider:              Google,
			ClientID:              s.Google.ClientID,
			ClientSecret:          s.Google.ClientSecret,
			AuthorizationEndpoint: "https://accounts.google.com/o/oauth2/v2/auth",
			TokenEndpoint:         "https://oauth2.googleapis.com/token",
			JWKSURI:               "https://www.googleapis.com/oauth2/v3/certs",
			ProfileEndpoint:       "https://www.googleapis.com/oauth2/v1/userinfo",
			IntrospectionEndpoint: "https://www.googleapis.com/oauth2/v3/tokeninfo",
			RedirectURI:           redirectURI,
			Scope:                 "openid email profile",
		}
	case Keycloak:
		realm := strings.TrimRight(s.KeycloakURL, "/") + "/realms/" + s.KeycloakRealm + "/protocol/openid-connect"
		return Descriptor{
			Provider:              Keycloak,
			ClientID:              s.Keycloak.ClientID,
			ClientSecret:          s.Keycloak.ClientSecret,
			AuthorizationEndpoint: realm + "/auth",
			TokenEndpoint:         realm + "/token",
			JWKSURI:               realm + "/certs",
			ProfileEndpoint:       realm + "/userinfo",
			RedirectURI:           redirectURI,
			Scope:                 "openid profile email offline_access",
		}
	}
	panic(fmt.Sprintf("idp: unknown provider %d", int(p)))
}
