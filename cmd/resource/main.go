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
	"github.com/andyleap/oidcflow/internal/guard"
	"github.com/andyleap/oidcflow/internal/idp"
	"github.com/andyleap/oidcflow/internal/jwks"
	"github.com/andyleap/oidcflow/internal/keys"
	"github.com/andyleap/oidcflow/internal/logging"
	"github.com/andyleap/oidcflow/internal/metrics"
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

	var m *metrics.Metrics
	if cfg.Metrics {
		m = metrics.New()
	}

	verifier, err := newVerifier(cfg, m)
	if err != nil {
		slog.Error("Failed to set up token verification", "mode", cfg.VerifyMode, "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	api.RegisterResource(mux, guard.New(verifier, cfg.Realm, m))
	if cfg.Metrics {
		mux.Handle("GET /metrics", m.Handler())
	}

	server := api.NewServer(":"+cfg.Port, mux)

	fmt.Printf("Resource Server starting on http://localhost:%s (verify mode %s)\n", cfg.Port, cfg.VerifyMode)
	fmt.Println("  GET  /api/protected - Requires Authorization: Bearer <access token>")
	fmt.Println("  GET  /health        - Health check")

	if err := api.Run(ctx, server); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func newVerifier(cfg *Config, m *metrics.Metrics) (guard.TokenVerifier, error) {
	switch cfg.VerifyMode {
	case "file":
		data, err := os.ReadFile(cfg.PublicKeyFile)
		if err != nil {
			return nil, err
		}
		pub, err := keys.PublicKeyFromPEM(data)
		if err != nil {
			return nil, err
		}
		slog.Info("Verifying with static public key", "path", cfg.PublicKeyFile)
		return guard.NewStaticKeyVerifier(pub, keys.Algorithm), nil
	case "jwks":
		fetcher := fetch.New(fetch.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))
		resolver := jwks.NewResolver(map[idp.Provider]string{idp.Local: cfg.JWKSURI},
			jwks.WithFetcher(fetcher),
			jwks.WithTTL(cfg.JWKSTTL),
			jwks.WithMetrics(m),
		)
		slog.Info("Verifying with authorization server JWKS", "uri", cfg.JWKSURI)
		return resolver.Verifier(idp.Local), nil
	}
	return nil, fmt.Errorf("invalid VERIFY_MODE %q", cfg.VerifyMode)
}
