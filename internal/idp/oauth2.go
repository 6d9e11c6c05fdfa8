package idp

import (
	"strings"

	"golang.org/x/oauth2"
)

// OAuth2Config returns the x/oauth2 client configuration for d. Credentials
// are sent in the form body, which every supported provider accepts.
func (d Descriptor) OAuth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     d.ClientID,
		ClientSecret: d.ClientSecret,
		RedirectURL:  d.RedirectURI,
		Scopes:       strings.Fields(d.Scope),
		Endpoint: oauth2.Endpoint{
			AuthURL:   d.AuthorizationEndpoint,
			TokenURL:  d.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// LoginURL is the authorization endpoint URL carrying client_id,
// redirect_uri, response_type=code and scope. No state or PKCE parameters
// are added.
func (d Descriptor) LoginURL() string {
	return d.OAuth2Config().AuthCodeURL("")
}
