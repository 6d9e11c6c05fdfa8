package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/andyleap/oidcflow/internal/api"
	"github.com/andyleap/oidcflow/internal/guard"
	"github.com/andyleap/oidcflow/internal/keys"
	"github.com/andyleap/oidcflow/internal/logging"
	"github.com/andyleap/oidcflow/internal/metrics"
	"github.com/andyleap/oidcflow/internal/models"
	"github.com/andyleap/oidcflow/internal/oauth"
	"github.com/andyleap/oidcflow/internal/storage"
	"github.com/andyleap/oidcflow/internal/token"
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

	km, err := loadKeyMaterial(ctx, cfg)
	if err != nil {
		slog.Error("Failed to load signing key", "mode", cfg.Key.Mode, "error", err)
		os.Exit(1)
	}
	slog.Info("Signing key ready", "mode", cfg.Key.Mode, "kid", km.KeyID())

	if cfg.Key.PublicKeyOut != "" {
		pemBytes, err := km.PublicKeyPEM()
		if err == nil {
			err = os.WriteFile(cfg.Key.PublicKeyOut, pemBytes, 0o644)
		}
		if err != nil {
			slog.Error("Failed to write public key", "path", cfg.Key.PublicKeyOut, "error", err)
			os.Exit(1)
		}
		slog.Info("Wrote public key", "path", cfg.Key.PublicKeyOut)
	}

	// Setup code storage
	var codes storage.CodeStore
	switch cfg.CodeStore {
	case "redis":
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		codes = storage.NewRedisCodeStore(redisClient, cfg.CodeTTL)
		slog.Info("Using Redis code store", "addr", cfg.Redis.Addr)
	case "memory":
		memStore := storage.NewMemoryCodeStore(cfg.CodeTTL)
		defer memStore.Close()
		codes = memStore
		slog.Warn("Using in-memory code store (not shared between instances)")
	default:
		slog.Error("Invalid CODE_STORE", "mode", cfg.CodeStore, "valid_modes", []string{"memory", "redis"})
		os.Exit(1)
	}

	clients := oauth.DefaultClients()
	if cfg.ClientsFile != "" {
		clients, err = oauth.LoadClients(cfg.ClientsFile)
		if err != nil {
			slog.Error("Failed to load clients", "path", cfg.ClientsFile, "error", err)
			os.Exit(1)
		}
	}

	var m *metrics.Metrics
	if cfg.Metrics {
		m = metrics.New()
	}

	issuer := token.NewIssuer(km, cfg.Issuer, cfg.TokenTTL)
	oauthService, err := oauth.NewOAuthService(codes, issuer, clients, cfg.Subject, m)
	if err != nil {
		slog.Error("Failed to create OAuth service", "error", err)
		os.Exit(1)
	}

	accessGuard := guard.New(guard.NewStaticKeyVerifier(km.PublicKey(), km.Algorithm()), cfg.Issuer, m)

	mux := http.NewServeMux()
	api.NewOAuthAPIHandlers(oauthService, km, cfg.Issuer).Register(mux, accessGuard)
	if cfg.Metrics {
		mux.Handle("GET /metrics", m.Handler())
	}

	server := api.NewServer(":"+cfg.Port, mux)

	fmt.Printf("OIDC Authorization Server starting on http://localhost:%s (issuer %s)\n", cfg.Port, cfg.Issuer)
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /.well-known/openid-configuration - Discovery document")
	fmt.Println("  GET  /.well-known/jwks.json            - Public signing keys")
	fmt.Println("  GET  /authorize                        - Authorization (issues a code)")
	fmt.Println("  POST /token                            - Code exchange")
	fmt.Println("  GET  /userinfo                         - Token subject and scope")
	fmt.Println("  GET  /health                           - Health check")
	if cfg.Metrics {
		fmt.Println("  GET  /metrics                          - Prometheus metrics")
	}
	fmt.Println()
	fmt.Printf("Registered clients: %d\n", len(clients))
	printExampleURL(cfg, clients)

	if err := api.Run(ctx, server); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func loadKeyMaterial(ctx context.Context, cfg *Config) (*keys.KeyMaterial, error) {
	switch cfg.Key.Mode {
	case "generate":
		slog.Warn("Generating an ephemeral signing key; tokens will not survive a restart")
		return keys.Generate(cfg.Key.Bits, cfg.Key.ID)
	case "filesystem":
		source, err := storage.NewFilesystemKeySource(cfg.Key.Path)
		if err != nil {
			return nil, err
		}
		return keys.Load(ctx, source, cfg.Key.ID)
	case "s3":
		source, err := storage.NewS3KeySource(cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey, cfg.S3.Bucket, cfg.S3.Object, cfg.S3.UseSSL)
		if err != nil {
			return nil, err
		}
		return keys.Load(ctx, source, cfg.Key.ID)
	}
	return nil, fmt.Errorf("invalid KEY_MODE %q", cfg.Key.Mode)
}

func printExampleURL(cfg *Config, clients []models.Client) {
	if len(clients) == 0 {
		return
	}
	c := clients[0]
	q := url.Values{
		"client_id":     {c.ID},
		"redirect_uri":  {c.RedirectURI},
		"response_type": {"code"},
		"scope":         {"openid profile"},
	}
	fmt.Printf("Example authorization URL: %s/authorize?%s\n", strings.TrimRight(cfg.Issuer, "/"), q.Encode())
}
