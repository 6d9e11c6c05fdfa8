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
	Port    string `long:"port" env:"PORT" default:"3000" description:"Server port"`
	Issuer  string `long:"issuer" env:"ISSUER" default:"http://localhost:3000" description:"Issuer URL placed in iss and the discovery document"`
	Subject string `long:"subject" env:"SUBJECT" default:"1" description:"Subject of every issued token"`
	Metrics bool   `long:"metrics" env:"METRICS" description:"Serve Prometheus metrics on /metrics"`

	// OAuth config
	ClientsFile string        `long:"clients-file" env:"CLIENTS_FILE" description:"YAML file of registered clients (default: built-in demo client)"`
	CodeTTL     time.Duration `long:"code-ttl" env:"CODE_TTL" default:"10m" description:"Authorization code lifetime (max 10m)"`
	TokenTTL    time.Duration `long:"token-ttl" env:"TOKEN_TTL" default:"1h" description:"ID and access token lifetime"`
	CodeStore   string        `long:"code-store" env:"CODE_STORE" default:"memory" choice:"memory" choice:"redis" description:"Authorization code storage backend"`

	// Signing key
	Key struct {
		Mode         string `long:"key-mode" env:"KEY_MODE" default:"generate" choice:"generate" choice:"filesystem" choice:"s3" description:"Where the RSA signing key comes from"`
		Path         string `long:"key-path" env:"KEY_PATH" default:"./private.pem" description:"PEM private key path (filesystem mode)"`
		ID           string `long:"key-id" env:"KEY_ID" description:"Key id (default: RFC 7638 thumbprint)"`
		Bits         int    `long:"key-bits" env:"KEY_BITS" default:"2048" description:"RSA key size (generate mode)"`
		PublicKeyOut string `long:"public-key-out" env:"PUBLIC_KEY_OUT" description:"Write the public key PEM here on startup"`
	} `group:"Signing Key Options"`

	// S3 key source
	S3 struct {
		Endpoint  string `long:"s3-endpoint" env:"S3_ENDPOINT" default:"localhost:9000" description:"S3 endpoint (host:port)"`
		Bucket    string `long:"s3-bucket" env:"S3_BUCKET" default:"oidcflow" description:"S3 bucket name"`
		Object    string `long:"s3-key" env:"S3_KEY" default:"private.pem" description:"Object holding the PEM private key"`
		AccessKey string `long:"s3-access-key" env:"S3_ACCESS_KEY" default:"minioadmin" description:"S3 access key"`
		SecretKey string `long:"s3-secret-key" env:"S3_SECRET_KEY" default:"minioadmin" description:"S3 secret key"`
		UseSSL    bool   `long:"s3-use-ssl" env:"S3_USE_SSL" description:"Use SSL for S3 connections"`
	} `group:"S3 Key Options"`

	// Redis config
	Redis struct {
		Addr     string `long:"redis-addr" env:"REDIS_ADDR" default:"localhost:6379" description:"Redis address"`
		Password string `long:"redis-password" env:"REDIS_PASSWORD" description:"Redis password"`
		DB       int    `long:"redis-db" env:"REDIS_DB" default:"0" description:"Redis database number"`
	} `group:"Redis Options"`

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
