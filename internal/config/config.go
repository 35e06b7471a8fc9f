// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv     string `env:"APP_ENV" envDefault:"development"`
	AppPort    int    `env:"APP_PORT" envDefault:"8000"`
	AppVersion string `env:"APP_VERSION" envDefault:"0.1.0"`

	// MLflow registry
	MLflowTrackingURI string        `env:"MLFLOW_TRACKING_URI,required"`
	MLflowTimeout     time.Duration `env:"MLFLOW_TIMEOUT" envDefault:"30s"`

	// Model selection
	ModelName  string `env:"MODEL_NAME" envDefault:"credit-approval"`
	ModelStage string `env:"MODEL_STAGE" envDefault:"Production"`
	// LoadModelOnStart controls whether startup fails when the registry is
	// unreachable. When false the service starts degraded and serves 503
	// until the first successful reload.
	LoadModelOnStart bool `env:"LOAD_MODEL_ON_START" envDefault:"true"`

	// Database (PostgreSQL) - prediction audit trail and webhook state
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache (Redis) - prediction result cache and rate limit counters
	RedisURL           string        `env:"REDIS_URL,required"`
	PredictionCacheTTL time.Duration `env:"PREDICTION_CACHE_TTL" envDefault:"5m"`

	// Admin auth: Argon2id hash of the admin API key (see scripts/gen-admin-key).
	// Mutating endpoints (reload-model, webhook management) require it.
	AdminKeyHash string `env:"ADMIN_KEY_HASH" envDefault:""`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Rate limiting on the predict path
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRPS     int  `env:"RATE_LIMIT_RPS" envDefault:"50"`
	RateLimitBurst   int  `env:"RATE_LIMIT_BURST" envDefault:"20"`

	// Batch predict bound
	MaxBatchSize int `env:"MAX_BATCH_SIZE" envDefault:"100"`

	// Audit pipeline
	AuditEnabled    bool          `env:"AUDIT_ENABLED" envDefault:"true"`
	AuditBufferSize int           `env:"AUDIT_BUFFER_SIZE" envDefault:"4096"`
	AuditBatchSize  int           `env:"AUDIT_BATCH_SIZE" envDefault:"100"`
	AuditFlushEvery time.Duration `env:"AUDIT_FLUSH_EVERY" envDefault:"2s"`

	// Webhook delivery worker
	WebhooksEnabled     bool          `env:"WEBHOOKS_ENABLED" envDefault:"true"`
	WebhookPollInterval time.Duration `env:"WEBHOOK_POLL_INTERVAL" envDefault:"5s"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

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

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
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
