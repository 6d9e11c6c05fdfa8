package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/andyleap/oidcflow/internal/logging"
)

// Config holds all configuration options
type Config struct {
	// Server config
	Port    string `long:"port" env:"PORT" default:"4000" description:"Server port"`
	BaseURL string `long:"base-url" env:"BASE_URL" default:"http://localhost:4000" description:"Externally visible URL used to build redirect URIs"`
	Metrics bool   `long:"metrics" env:"METRICS" description:"Serve Prometheus metrics on /metrics"`

	// Local authorization server
	Local struct {
		Issuer       string `long:"local-issuer" env:"LOCAL_ISSUER" default:"http://localhost:3000" description:"Local authorization server URL"`
		ClientID     string `long:"local-client-id" env:"LOCAL_CLIENT_ID" default:"client-id" description:"Client id registered with the local server"`
		ClientSecret string `long:"local-client-secret" env:"LOCAL_CLIENT_SECRET" default:"client-secret" description:"Client secret registered with the local server"`
	} `group:"Local Provider Options"`

	// Google
	Google struct {
		ClientID     string `long:"google-client-id" env:"GOOGLE_CLIENT_ID" description:"Google OAuth client id (provider disabled when empty)"`
		ClientSecret string `long:"google-client-secret" env:"GOOGLE_CLIENT_SECRET" description:"Google OAuth client secret"`
	} `group:"Google Provider Options"`

	// Keycloak
	Keycloak struct {
		URL          string `long:"keycloak-url" env:"KEYCLOAK_URL" default:"http://localhost:7080" description:"Keycloak base URL"`
		Realm        string `long:"keycloak-realm" env:"KEYCLOAK_REALM" default:"my-realm" description:"Keycloak realm"`
		ClientID     string `long:"keycloak-client-id" env:"KEYCLOAK_CLIENT_ID" description:"Keycloak client id (provider disabled when empty)"`
		ClientSecret string `long:"keycloak-client-secret" env:"KEYCLOAK_CLIENT_SECRET" description:"Keycloak client secret"`
	} `group:"Keycloak Provider Options"`

	// Outbound HTTP
	HTTP struct {
		Timeout      time.Duration `long:"http-timeout" env:"HTTP_TIMEOUT" default:"10s" description:"Timeout for each outbound request"`
		MaxTries     uint          `long:"http-max-tries" env:"HTTP_MAX_TRIES" default:"3" description:"Attempts for retryable GETs (JWKS, profile, introspection)"`
		JWKSTTL      time.Duration `long:"jwks-ttl" env:"JWKS_TTL" default:"1h" description:"How long a fetched key set is trusted"`
		MissCooldown time.Duration `long:"jwks-miss-cooldown" env:"JWKS_MISS_COOLDOWN" default:"30s" description:"Minimum gap between refreshes caused by unknown key ids"`
	} `group:"Outbound HTTP Options"`

	Log logging.Options `group:"Logging Options"`
}

// LoadConfig parses configuration from environment variables and command line flags
func LoadConfig() (*Config, error) {
	var config Config

	parser := flags.NewParser(&config, flags.Default)
	parser.Usage = "[OPTIONS]"

	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}
