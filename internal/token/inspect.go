package token

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Unverified is a decoded token whose signature has not been checked. It is
// only good for picking a verification key and for display.
type Unverified struct {
	Raw    string
	Header map[string]any
	Claims jwt.MapClaims
}

func Decode(raw string) (*Unverified, error) {
	claims := jwt.MapClaims{}
	tok, _, err := jwt.NewParser().ParseUnverified(raw, claims)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	return &Unverified{Raw: raw, Header: tok.Header, Claims: claims}, nil
}

func (u *Unverified) KeyID() string {
	kid, _ := u.Header["kid"].(string)
	return kid
}

func (u *Unverified) Algorithm() string {
	alg, _ := u.Header["alg"].(string)
	return alg
}
