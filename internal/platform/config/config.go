// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, token signer) via constructors.
  - Zero Hidden State: No global variables are used to store config.
*/
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/taibuivan/yomira-iam/internal/platform/constants"
)

// # Configuration Schema

// Config holds all runtime configuration for the Yomira IAM server and worker.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// Key-Value Cache (Redis), also the job queue broker
	RedisURL string `env:"REDIS_URL,required,notEmpty"`

	// Access token signing. Either a shared secret (HS256) or an RSA key pair (RS256).
	JWTSecret      string `env:"JWT_SECRET"`
	JWTPrivKeyPath string `env:"JWT_PRIVATE_KEY_PATH"`
	JWTPubKeyPath  string `env:"JWT_PUBLIC_KEY_PATH"`

	// Token lifetimes
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL"  envDefault:"1h"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`

	// FrontendURL is the base of links sent to users (password reset).
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`

	// AuthRateLimit is the number of requests per minute per IP on credential endpoints.
	AuthRateLimit int `env:"AUTH_RATE_LIMIT" envDefault:"20"`

	// TrustedProxies lists proxy IPs or CIDRs whose forwarding headers are honoured.
	// Empty means client IPs come from the socket only.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	// Cross-Origin Resource Sharing
	AllowedOriginSuffix string `env:"ALLOWED_ORIGIN_SUFFIX" envDefault:".yomira.app"`
	ExtraOrigins        string `env:"EXTRA_ORIGINS"`

	// Background worker
	WorkerConcurrency     int    `env:"WORKER_CONCURRENCY"       envDefault:"5"`
	RefreshTokenPurgeCron string `env:"REFRESH_TOKEN_PURGE_CRON" envDefault:"@every 1h"`
	WorkerMetricsPort     string `env:"WORKER_METRICS_PORT"      envDefault:"9091"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints the struct tags cannot express.
func (c *Config) Validate() error {
	hasKeyPair := c.JWTPrivKeyPath != "" && c.JWTPubKeyPath != ""
	if c.JWTSecret == "" && !hasKeyPair {
		return errors.New("config: JWT_SECRET or both JWT_PRIVATE_KEY_PATH and JWT_PUBLIC_KEY_PATH must be set")
	}
	if !hasKeyPair && len(c.JWTSecret) < constants.MinHMACSecretLength {
		return fmt.Errorf("config: JWT_SECRET must be at least %d bytes", constants.MinHMACSecretLength)
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return errors.New("config: token lifetimes must be positive")
	}
	if c.AuthRateLimit <= 0 {
		return errors.New("config: AUTH_RATE_LIMIT must be positive")
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		return err
	}
	return nil
}

// TrustedProxyPrefixes parses TRUSTED_PROXIES. A bare address becomes a single-host prefix.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, entry := range c.TrustedProxies {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("config: invalid TRUSTED_PROXIES entry %q: %w", entry, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}

		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("config: invalid TRUSTED_PROXIES entry %q: %w", entry, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// UsesKeyPair reports whether tokens are signed with RS256 rather than HS256.
func (c *Config) UsesKeyPair() bool {
	return c.JWTPrivKeyPath != "" && c.JWTPubKeyPath != ""
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// AllowedOrigin reports whether a browser origin may call the API.
func (c *Config) AllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	if c.IsDevelopment() && strings.HasPrefix(origin, "http://localhost") {
		return true
	}
	if c.AllowedOriginSuffix != "" && strings.HasSuffix(origin, c.AllowedOriginSuffix) {
		return true
	}
	for _, extra := range strings.Split(c.ExtraOrigins, ",") {
		if strings.TrimSpace(extra) == origin {
			return true
		}
	}
	return false
}
