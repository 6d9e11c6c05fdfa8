package jwks

import (
	"context"
	"fmt"

	"github.com/andyleap/oidcflow/internal/idp"
	"github.com/andyleap/oidcflow/internal/token"
)

// Verifier checks tokens against the keys one provider publishes.
type Verifier struct {
	resolver *Resolver
	provider idp.Provider
}

func (r *Resolver) Verifier(provider idp.Provider) *Verifier {
	return &Verifier{resolver: r, provider: provider}
}

func (v *Verifier) Verify(ctx context.Context, raw string) (*token.Claims, error) {
	decoded, err := token.Decode(raw)
	if err != nil {
		return nil, err
	}

	jwk, err := v.resolver.ResolveJWK(ctx, v.provider, decoded.KeyID())
	if err != nil {
		return nil, err
	}

	alg := decoded.Algorithm()
	if jwk.Algorithm != "" && jwk.Algorithm != alg {
		return nil, fmt.Errorf("%w: header alg %q does not match key alg %q", token.ErrSignatureInvalid, alg, jwk.Algorithm)
	}

	return token.Verify(raw, jwk.Key, alg)
}
