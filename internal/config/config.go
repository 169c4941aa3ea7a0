// Package config provides application configuration management.
// Process configuration is loaded from environment variables following 12-factor principles;
// module settings live in an admin-editable file (see settings.go).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all process configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Storage: postgres://..., a SQLite file path, or libsql://...
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache and click stream (Redis). Optional; features degrade without it.
	RedisURL string `env:"REDIS_URL"`

	// Public base URL of the host site; internal destinations are resolved against it.
	SiteURL string `env:"SITE_URL" envDefault:"http://localhost:8080"`

	// Module settings file
	SettingsFile string `env:"SETTINGS_FILE" envDefault:"settings.yaml"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Redirect rate limiting (per IP)
	RateLimitRedirectEnabled bool `env:"RATE_LIMIT_REDIRECT_ENABLED" envDefault:"true"`
	RateLimitRedirectRPS     int  `env:"RATE_LIMIT_REDIRECT_RPS" envDefault:"100"`
	RateLimitRedirectBurst   int  `env:"RATE_LIMIT_REDIRECT_BURST" envDefault:"20"`

	// Admin API keys, comma-separated "key:name" pairs.
	AdminAPIKeys string `env:"ADMIN_API_KEYS"`

	// Origins allowed to call the admin API from a browser; "*.example.com" matches subdomains.
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	// Host site webhook for maintenance events (expired links, broken destinations). Optional.
	NotifyWebhookURL    string   `env:"NOTIFY_WEBHOOK_URL"`
	NotifyWebhookSecret string   `env:"NOTIFY_WEBHOOK_SECRET"`
	NotifyWebhookEvents []string `env:"NOTIFY_WEBHOOK_EVENTS" envSeparator:","`

	// Secret mixed into click IP hashes.
	IPHashKey string `env:"IP_HASH_KEY" envDefault:"shortlink"`

	// Background work
	ClickWorkerEnabled     bool    `env:"CLICK_WORKER_ENABLED" envDefault:"true"`
	SweepWorkers           int     `env:"SWEEP_WORKERS" envDefault:"4"`
	HealthCheckRPS         float64 `env:"HEALTH_CHECK_RPS" envDefault:"5"`
	HealthCheckConcurrency int     `env:"HEALTH_CHECK_CONCURRENCY" envDefault:"4"`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// UsesPostgres reports whether DatabaseURL points at PostgreSQL.
func (c *Config) UsesPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

// GetAdminAPIKeys parses AdminAPIKeys into a key -> name map.
// Entries without a name use the key prefix as their name.
func (c *Config) GetAdminAPIKeys() map[string]string {
	keys := make(map[string]string)
	if c.AdminAPIKeys == "" {
		return keys
	}

	for _, pair := range strings.Split(c.AdminAPIKeys, ",") {
		key, name, _ := strings.Cut(strings.TrimSpace(pair), ":")
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			name = key[:min(4, len(key))] + "..."
		}
		keys[key] = name
	}

	return keys
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
