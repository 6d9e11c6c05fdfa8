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
	Port    string `long:"port" env:"PORT" default:"5000" description:"Server port"`
	Realm   string `long:"realm" env:"REALM" default:"resource" description:"Realm advertised in WWW-Authenticate"`
	Metrics bool   `long:"metrics" env:"METRICS" description:"Serve Prometheus metrics on /metrics"`

	// Token verification
	VerifyMode    string        `long:"verify-mode" env:"VERIFY_MODE" default:"jwks" choice:"jwks" choice:"file" description:"How the authorization server's public key is obtained"`
	PublicKeyFile string        `long:"public-key-file" env:"PUBLIC_KEY_FILE" default:"./public.pem" description:"PEM public key (file mode)"`
	JWKSURI       string        `long:"jwks-uri" env:"JWKS_URI" default:"http://localhost:3000/.well-known/jwks.json" description:"Authorization server JWKS (jwks mode)"`
	JWKSTTL       time.Duration `long:"jwks-ttl" env:"JWKS_TTL" default:"1h" description:"How long a fetched key set is trusted"`
	HTTPTimeout   time.Duration `long:"http-timeout" env:"HTTP_TIMEOUT" default:"10s" description:"Timeout for JWKS requests"`

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
