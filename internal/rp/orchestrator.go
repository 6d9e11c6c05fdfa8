// Package rp runs the relying party side of the authorization code flow:
// building login URLs and turning a callback code into verified tokens.
package rp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/andyleap/oidcflow/internal/fetch"
	"github.com/andyleap/oidcflow/internal/idp"
	"github.com/andyleap/oidcflow/internal/jwks"
	"github.com/andyleap/oidcflow/internal/metrics"
	"github.com/andyleap/oidcflow/internal/token"
)

// ErrAuthenticationFailed wraps every failure of a mandatory callback step.
var ErrAuthenticationFailed = errors.New("authentication failed")

// Result is everything learned from one successful callback.
type Result struct {
	Provider    idp.Provider
	IDToken     string
	AccessToken string
	TokenType   string
	Expiry      time.Time

	IDTokenHeader map[string]any
	IDTokenClaims map[string]any

	AccessTokenFormat idp.TokenFormat
	// AccessTokenHeader is nil for opaque tokens.
	AccessTokenHeader map[string]any
	// AccessTokenClaims holds verified JWT claims or the introspection response.
	AccessTokenClaims map[string]any

	Subject string

	Profile      map[string]any
	ProfileError error
}

type Orchestrator struct {
	registry *idp.Registry
	resolver *jwks.Resolver
	fetcher  *fetch.Client
	metrics  *metrics.Metrics
}

func NewOrchestrator(registry *idp.Registry, resolver *jwks.Resolver, fetcher *fetch.Client, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		resolver: resolver,
		fetcher:  fetcher,
		metrics:  m,
	}
}

func (o *Orchestrator) Registry() *idp.Registry { return o.registry }

// BuildLoginURL returns the provider authorization URL the browser is sent to.
func (o *Orchestrator) BuildLoginURL(provider idp.Provider) (string, error) {
	d, err := o.registry.Lookup(provider)
	if err != nil {
		return "", err
	}
	return d.LoginURL(), nil
}

// HandleCallback exchanges code and verifies the returned tokens. A profile
// fetch failure is reported on the result, not as an error.
func (o *Orchestrator) HandleCallback(ctx context.Context, provider idp.Provider, code string) (*Result, error) {
	d, err := o.registry.Lookup(provider)
	if err != nil {
		return nil, err
	}

	result, err := o.authenticate(ctx, d, code)
	if err != nil {
		o.metrics.Callback(provider.String(), "error")
		return nil, fmt.Errorf("%w: %s: %w", ErrAuthenticationFailed, provider, err)
	}

	if d.ProfileEndpoint != "" {
		var profile map[string]any
		if err := o.fetcher.GetJSON(ctx, d.ProfileEndpoint, result.AccessToken, &profile); err != nil {
			slog.Warn("Profile fetch failed", "provider", provider.String(), "error", err)
			result.ProfileError = err
		} else {
			result.Profile = profile
		}
	}

	if result.ProfileError != nil {
		o.metrics.Callback(provider.String(), "partial")
	} else {
		o.metrics.Callback(provider.String(), "ok")
	}
	return result, nil
}

func (o *Orchestrator) authenticate(ctx context.Context, d idp.Descriptor, code string) (*Result, error) {
	// The code is single use, so the exchange is never retried.
	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, o.fetcher.HTTPClient())
	tok, err := d.OAuth2Config().Exchange(exchangeCtx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}

	rawID, _ := tok.Extra("id_token").(string)
	if rawID == "" {
		return nil, errors.New("token response has no id_token")
	}

	verifier := o.resolver.Verifier(d.Provider)

	idDecoded, err := token.Decode(rawID)
	if err != nil {
		return nil, fmt.Errorf("id token: %w", err)
	}
	idClaims, err := verifier.Verify(ctx, rawID)
	if err != nil {
		return nil, fmt.Errorf("id token: %w", err)
	}
	if !idClaims.HasAudience(d.ClientID) {
		return nil, fmt.Errorf("id token: %w: audience %v does not include %s", token.ErrInvalidToken, idClaims.Audience, d.ClientID)
	}

	result := &Result{
		Provider:          d.Provider,
		IDToken:           rawID,
		AccessToken:       tok.AccessToken,
		TokenType:         tok.TokenType,
		Expiry:            tok.Expiry,
		IDTokenHeader:     idDecoded.Header,
		IDTokenClaims:     idDecoded.Claims,
		AccessTokenFormat: d.Provider.AccessTokenFormat(),
		Subject:           idClaims.Subject,
	}

	switch result.AccessTokenFormat {
	case idp.JWT:
		accessDecoded, err := token.Decode(tok.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("access token: %w", err)
		}
		if _, err := verifier.Verify(ctx, tok.AccessToken); err != nil {
			return nil, fmt.Errorf("access token: %w", err)
		}
		result.AccessTokenHeader = accessDecoded.Header
		result.AccessTokenClaims = accessDecoded.Claims
	case idp.Opaque:
		info, err := o.introspect(ctx, d, tok.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("access token: %w", err)
		}
		result.AccessTokenClaims = info
	}

	return result, nil
}

// introspect resolves an opaque access token through the provider's
// tokeninfo style endpoint and checks it was issued to this client.
func (o *Orchestrator) introspect(ctx context.Context, d idp.Descriptor, accessToken string) (map[string]any, error) {
	u, err := url.Parse(d.IntrospectionEndpoint)
	if err != nil {
		return nil, fmt.Errorf("introspection endpoint: %w", err)
	}
	q := u.Query()
	q.Set("access_token", accessToken)
	u.RawQuery = q.Encode()

	var info map[string]any
	if err := o.fetcher.GetJSON(ctx, u.String(), "", &info); err != nil {
		o.metrics.Introspection(d.Name(), "error")
		return nil, fmt.Errorf("introspection: %w", err)
	}

	if active, ok := info["active"].(bool); ok && !active {
		o.metrics.Introspection(d.Name(), "inactive")
		return nil, fmt.Errorf("introspection: %w: token is not active", token.ErrInvalidToken)
	}

	for _, field := range []string{"aud", "azp"} {
		if v, ok := info[field].(string); ok && v != d.ClientID {
			o.metrics.Introspection(d.Name(), "wrong_audience")
			return nil, fmt.Errorf("introspection: %w: %s %q does not match client", token.ErrInvalidToken, field, v)
		}
	}

	o.metrics.Introspection(d.Name(), "ok")
	return info, nil
}
