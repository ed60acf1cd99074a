// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Public URL of the web app, used for checkout redirects and the completion referer.
	AppURL string `env:"APP_URL" envDefault:"http://localhost:3000"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"2"`

	// Cache (Redis)
	RedisURL       string `env:"REDIS_URL,required"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"errmate"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts. WriteTimeout has to outlast a completion call.
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"90s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Session tokens. Either a shared HS256 secret or a JWKS endpoint.
	AuthJWTSecret  string `env:"AUTH_JWT_SECRET"`
	AuthJWKSURL    string `env:"AUTH_JWKS_URL"`
	AuthIssuer     string `env:"AUTH_ISSUER"`
	AuthAudience   string `env:"AUTH_AUDIENCE"`
	AuthCookieName string `env:"AUTH_COOKIE_NAME" envDefault:"errmate_session"`

	// Billing (Stripe)
	StripeSecretKey     string `env:"STRIPE_SECRET_KEY,required"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required"`
	StripePriceID       string `env:"STRIPE_PRICE_ID"`
	ProPriceCents       int64  `env:"PRO_PRICE_CENTS" envDefault:"999"`
	ProCurrency         string `env:"PRO_CURRENCY" envDefault:"usd"`

	// Completion API (OpenRouter compatible)
	OpenRouterAPIKey    string        `env:"OPENROUTER_API_KEY,required"`
	OpenRouterModel     string        `env:"OPENROUTER_MODEL,required"`
	OpenRouterBaseURL   string        `env:"OPENROUTER_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	LLMTimeout          time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`
	LLMTemperature      float64       `env:"LLM_TEMPERATURE" envDefault:"0.7"`
	LLMMaxTokens        int           `env:"LLM_MAX_TOKENS" envDefault:"2000"`
	LLMStructuredOutput bool          `env:"LLM_STRUCTURED_OUTPUT" envDefault:"true"`

	// Usage tiers
	FreeDailyLimit int    `env:"FREE_DAILY_LIMIT" envDefault:"3"`
	AnonymousLimit int    `env:"ANONYMOUS_LIMIT" envDefault:"2"`
	UsageTimezone  string `env:"USAGE_TIMEZONE" envDefault:"Local"`

	// Input limits for explanation requests (characters)
	MaxErrorTextLength   int `env:"MAX_ERROR_TEXT_LENGTH" envDefault:"20000"`
	MaxContextTextLength int `env:"MAX_CONTEXT_TEXT_LENGTH" envDefault:"10000"`

	// Cache TTLs
	WebhookEventTTL  time.Duration `env:"WEBHOOK_EVENT_TTL" envDefault:"72h"`
	CancelAtCacheTTL time.Duration `env:"CANCEL_AT_CACHE_TTL" envDefault:"10m"`

	// Rate limiting
	RateLimitAPIEnabled     bool `env:"RATE_LIMIT_API_ENABLED" envDefault:"true"`
	RateLimitAPIPerMinute   int  `env:"RATE_LIMIT_API_PER_MINUTE" envDefault:"60"`
	RateLimitAPIBurst       int  `env:"RATE_LIMIT_API_BURST" envDefault:"20"`
	RateLimitExplainEnabled bool `env:"RATE_LIMIT_EXPLAIN_ENABLED" envDefault:"true"`
	RateLimitExplainRPS     int  `env:"RATE_LIMIT_EXPLAIN_RPS" envDefault:"1"`
	RateLimitExplainBurst   int  `env:"RATE_LIMIT_EXPLAIN_BURST" envDefault:"5"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://errmate.dev,https://app.errmate.dev")
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
// APP_URL is always allowed since the web app is the primary caller.
func (c *Config) GetCORSAllowedOrigins() []string {
	candidates := append([]string{strings.TrimSuffix(c.AppURL, "/")}, strings.Split(c.CORSAllowedOrigins, ",")...)

	seen := make(map[string]bool, len(candidates))
	result := make([]string, 0, len(candidates))
	for _, origin := range candidates {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" || seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		result = append(result, trimmed)
	}

	return result
}

// Location resolves USAGE_TIMEZONE. The free-tier day starts at midnight in this zone.
func (c *Config) Location() (*time.Location, error) {
	if c.UsageTimezone == "" || c.UsageTimezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.UsageTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid USAGE_TIMEZONE %q: %w", c.UsageTimezone, err)
	}
	return loc, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	if c.AuthJWTSecret == "" && c.AuthJWKSURL == "" {
		return errors.New("one of AUTH_JWT_SECRET or AUTH_JWKS_URL must be set")
	}
	if c.FreeDailyLimit < 1 {
		return fmt.Errorf("FREE_DAILY_LIMIT must be positive, got %d", c.FreeDailyLimit)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Load reads an optional .env file, parses environment variables and returns a Config.
// Variables already present in the environment win over .env values.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
