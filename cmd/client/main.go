package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/andyleap/oidcflow/internal/api"
	"github.com/andyleap/oidcflow/internal/fetch"
	"github.com/andyleap/oidcflow/internal/idp"
	"github.com/andyleap/oidcflow/internal/jwks"
	"github.com/andyleap/oidcflow/internal/logging"
	"github.com/andyleap/oidcflow/internal/metrics"
	"github.com/andyleap/oidcflow/internal/rp"
	"github.com/andyleap/oidcflow/internal/ui"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log, os.Stdout)
	if err != nil {
		slog.Error("Failed to configure logging", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings := idp.Settings{
		RedirectBase:  cfg.BaseURL,
		LocalIssuer:   cfg.Local.Issuer,
		Local:         idp.Credentials{ClientID: cfg.Local.ClientID, ClientSecret: cfg.Local.ClientSecret},
		Google:        idp.Credentials{ClientID: cfg.Google.ClientID, ClientSecret: cfg.Google.ClientSecret},
		KeycloakURL:   cfg.Keycloak.URL,
		KeycloakRealm: cfg.Keycloak.Realm,
		Keycloak:      idp.Credentials{ClientID: cfg.Keycloak.ClientID, ClientSecret: cfg.Keycloak.ClientSecret},
	}

	// Providers without credentials are skipped
	var descriptors []idp.Descriptor
	for _, d := range idp.DefaultDescriptors(settings) {
		if d.ClientID == "" {
			slog.Warn("Provider disabled: no client id configured", "provider", d.Name())
			continue
		}
		descriptors = append(descriptors, d)
	}

	registry, err := idp.NewRegistry(descriptors...)
	if err != nil {
		slog.Error("Invalid provider configuration", "error", err)
		os.Exit(1)
	}

	var m *metrics.Metrics
	if cfg.Metrics {
		m = metrics.New()
	}

	fetcher := fetch.New(
		fetch.WithHTTPClient(&http.Client{Timeout: cfg.HTTP.Timeout}),
		fetch.WithMaxTries(cfg.HTTP.MaxTries),
	)
	resolver := jwks.NewRegistryResolver(registry,
		jwks.WithFetcher(fetcher),
		jwks.WithTTL(cfg.HTTP.JWKSTTL),
		jwks.WithMissCooldown(cfg.HTTP.MissCooldown),
		jwks.WithMetrics(m),
	)
	orchestrator := rp.NewOrchestrator(registry, resolver, fetcher, m)

	uiHandlers, err := ui.NewOAuthUIHandlers(orchestrator, registry.Descriptors())
	if err != nil {
		slog.Error("Failed to create UI handlers", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	uiHandlers.Register(mux)
	mux.HandleFunc("GET /health", api.HealthHandler)
	if cfg.Metrics {
		mux.Handle("GET /metrics", m.Handler())
	}

	server := api.NewServer(":"+cfg.Port, mux)

	fmt.Printf("OIDC Client starting on http://localhost:%s\n", cfg.Port)
	fmt.Println("Providers:")
	for _, d := range registry.Descriptors() {
		fmt.Printf("  %-9s login: %s/login/%s  callback: %s\n", d.Name(), cfg.BaseURL, d.Name(), d.RedirectURI)
	}

	if err := api.Run(ctx, server); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
