// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every environment-sourced knob.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":9000"`
	RedisURL   string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	NonceTTLSeconds      int      `env:"AUTH_NONCE_TTL_SECONDS" envDefault:"300"`
	PendingTTLSeconds    int      `env:"AUTH_PENDING_TTL_SECONDS" envDefault:"300"`
	MaxAgeSeconds        int      `env:"AUTH_MAX_AGE_SECONDS" envDefault:"120"`
	TimestampToleranceMS int      `env:"AUTH_TIMESTAMP_TOLERANCE_MS" envDefault:"300000"`
	AllowedOrigins       []string `env:"AUTH_ALLOWED_ORIGINS" envSeparator:","`

	// Optional static bearer key that bypasses wallet auth on the auth
	// endpoints, for trusted server-to-server callers.
	APIKey string `env:"MCP_API_KEY"`

	LensAPIURL   string `env:"LENS_API_URL" envDefault:"https://api.lens.xyz"`
	GarminAPIURL string `env:"GARMIN_API_URL" envDefault:"https://connectapi.garmin.com"`

	TokenBlobTTLSeconds int `env:"TOKEN_BLOB_TTL_SECONDS" envDefault:"31536000"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c Config) NonceTTL() time.Duration     { return clampSeconds(c.NonceTTLSeconds, 300) }
func (c Config) PendingTTL() time.Duration   { return clampSeconds(c.PendingTTLSeconds, 300) }
func (c Config) MaxAge() time.Duration       { return clampSeconds(c.MaxAgeSeconds, 120) }
func (c Config) TokenBlobTTL() time.Duration { return clampSeconds(c.TokenBlobTTLSeconds, 31536000) }

// TimestampTolerance returns the scoped-header timestamp tolerance.
func (c Config) TimestampTolerance() time.Duration {
	if c.TimestampToleranceMS < 1 {
		return 5 * time.Minute
	}
	return time.Duration(c.TimestampToleranceMS) * time.Millisecond
}

func clampSeconds(v, fallback int) time.Duration {
	if v < 1 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}
