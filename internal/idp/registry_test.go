package idp

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings() Settings {
	return Settings{
		RedirectBase:  "http://localhost:4000/",
		LocalIssuer:   "http://localhost:3000",
		Local:         Credentials{ClientID: "client-id", ClientSecret: "client-secret"},
		Google:        Credentials{ClientID: "google-id", ClientSecret: "google-secret"},
		KeycloakURL:   "http://localhost:7080",
		KeycloakRealm: "my-realm",
		Keycloak:      Credentials{ClientID: "kc-id", ClientSecret: "kc-secret"},
	}
}

func TestParseProvider(t *testing.T) {
	t.Parallel()
	for _, p := range All {
		parsed, err := ParseProvider(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}

	_, err := ParseProvider("github")
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
	_, err = ParseProvider("Local")
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestAccessTokenFormat(t *testing.T) {
	t.Parallel()
	assert.Equal(t, JWT, Local.AccessTokenFormat())
	assert.Equal(t, JWT, Keycloak.AccessTokenFormat())
	assert.Equal(t, Opaque, Google.AccessTokenFormat())
}

func TestDefaultDescriptors(t *testing.T) {
	t.Parallel()
	descs := DefaultDescriptors(testSettings())
	require.Len(t, descs, 3)

	local := descs[0]
	assert.Equal(t, Local, local.Provider)
	assert.Equal(t, "http://localhost:3000/authorize", local.AuthorizationEndpoint)
	assert.Equal(t, "http://localhost:3000/token", local.TokenEndpoint)
	assert.Equal(t, "http://localhost:3000/.well-known/jwks.json", local.JWKSURI)
	assert.Equal(t, "http://localhost:4000/callback/local", local.RedirectURI)

	google := descs[1]
	assert.Equal(t, "https://www.googleapis.com/oauth2/v3/tokeninfo", google.IntrospectionEndpoint)
	assert.Equal(t, "openid email profile", google.Scope)

	kc := descs[2]
	assert.Equal(t, "http://localhost:7080/realms/my-realm/protocol/openid-connect/certs", kc.JWKSURI)
	assert.Equal(t, "http://localhost:4000/callback/keycloak", kc.RedirectURI)

	for _, d := range descs {
		assert.NoError(t, d.Validate(), d.Name())
	}
}

func TestLoginURL(t *testing.T) {
	t.Parallel()
	for _, d := range DefaultDescriptors(testSettings()) {
		t.Run(d.Name(), func(t *testing.T) {
			t.Parallel()
			u, err := url.Parse(d.LoginURL())
			require.NoError(t, err)

			endpoint, err := url.Parse(d.AuthorizationEndpoint)
			require.NoError(t, err)
			assert.Equal(t, endpoint.Host, u.Host)
			assert.Equal(t, endpoint.Path, u.Path)

			q := u.Query()
			assert.Len(t, q, 4)
			assert.Equal(t, d.ClientID, q.Get("client_id"))
			assert.Equal(t, d.RedirectURI, q.Get("redirect_uri"))
			assert.Equal(t, d.Scope, q.Get("scope"))
			assert.Equal(t, "code", q.Get("response_type"))
			assert.False(t, q.Has("state"))
		})
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	descs := DefaultDescriptors(testSettings())
	reg, err := NewRegistry(descs[2], descs[0])
	require.NoError(t, err)

	got := reg.Descriptors()
	require.Len(t, got, 2)
	assert.Equal(t, Local, got[0].Provider)
	assert.Equal(t, Keycloak, got[1].Provider)

	d, err := reg.Lookup(Keycloak)
	require.NoError(t, err)
	assert.Equal(t, "kc-id", d.ClientID)

	_, err = reg.Lookup(Google)
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestRegistry_Rejects(t *testing.T) {
	t.Parallel()
	descs := DefaultDescriptors(testSettings())

	_, err := NewRegistry(descs[0], descs[0])
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	noClient := descs[0]
	noClient.ClientID = ""
	_, err = NewRegistry(noClient)
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	noIntrospection := descs[1]
	noIntrospection.IntrospectionEndpoint = ""
	_, err = NewRegistry(noIntrospection)
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	badURL := descs[2]
	badURL.JWKSURI = "ftp://example.com/certs"
	_, err = NewRegistry(badURL)
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
}
