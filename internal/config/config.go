// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSupabase = "supabase"
)

// LLM providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderMock   = "mock"
)

// Config holds every runtime setting of the server.
type Config struct {
	HTTPAddr       string `env:"HTTP_ADDR,default=:8080"`
	PublicBaseURL  string `env:"PUBLIC_BASE_URL,default=http://localhost:5173"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS,default=*"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`

	StorageDriver      string `env:"STORAGE_DRIVER,default=memory"`
	DatabaseURL        string `env:"DATABASE_URL"`
	SupabaseURL        string `env:"SUPABASE_URL"`
	SupabaseServiceKey string `env:"SUPABASE_SERVICE_KEY"`
	RedisURL           string `env:"REDIS_URL"`

	LLMProvider string        `env:"LLM_PROVIDER,default=mock"`
	LLMAPIKey   string        `env:"LLM_API_KEY"`
	LLMModel    string        `env:"LLM_MODEL"`
	LLMBaseURL  string        `env:"LLM_BASE_URL"`
	LLMTimeout  time.Duration `env:"LLM_TIMEOUT,default=30s"`

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	// CheckoutTestMode allows the test checkout, which marks every session
	// paid, on a persistent storage driver.
	CheckoutTestMode bool `env:"CHECKOUT_TEST_MODE,default=false"`

	JWTSecret         string `env:"JWT_SECRET"`
	AdminEmail        string `env:"ADMIN_EMAIL"`
	AdminPasswordHash string `env:"ADMIN_PASSWORD_HASH"`

	SettingsCacheTTL time.Duration `env:"SETTINGS_CACHE_TTL,default=60s"`
	PendingResultTTL time.Duration `env:"PENDING_RESULT_TTL,default=24h"`

	RateLimitRPM   int `env:"RATE_LIMIT_RPM,default=20"`
	RateLimitBurst int `env:"RATE_LIMIT_BURST,default=5"`
	// TrustProxy takes the client IP from X-Forwarded-For.
	TrustProxy bool `env:"TRUST_PROXY,default=false"`
}

// Load reads an optional .env file and decodes the environment into Config.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			envFiles = []string{".env"}
		}
	}
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("load env files: %w", err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration suitable for tests and local runs.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.PublicBaseURL == "" {
		c.PublicBaseURL = "http://localhost:5173"
	}
	if c.AllowedOrigins == "" {
		c.AllowedOrigins = "*"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.StorageDriver == "" {
		c.StorageDriver = DriverMemory
	}
	if c.LLMProvider == "" {
		c.LLMProvider = ProviderMock
	}
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = 30 * time.Second
	}
	if c.SettingsCacheTTL <= 0 {
		c.SettingsCacheTTL = time.Minute
	}
	if c.PendingResultTTL <= 0 {
		c.PendingResultTTL = 24 * time.Hour
	}
	if c.RateLimitRPM <= 0 {
		c.RateLimitRPM = 20
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 5
	}
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	c.LLMProvider = strings.ToLower(strings.TrimSpace(c.LLMProvider))
	c.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.PublicBaseURL), "/")
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	case DriverSupabase:
		if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required for the supabase driver")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}

	switch c.LLMProvider {
	case ProviderMock:
	case ProviderOpenAI, ProviderGemini:
		if c.LLMAPIKey == "" {
			return fmt.Errorf("LLM_API_KEY is required for provider %s", c.LLMProvider)
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}

	parsed, err := url.Parse(c.PublicBaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("PUBLIC_BASE_URL must be an absolute URL")
	}
	if c.StripeSecretKey != "" && c.StripeWebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}
	if c.StripeSecretKey == "" && !c.TestCheckoutAllowed() {
		return fmt.Errorf("STRIPE_SECRET_KEY is required for the %s driver (set CHECKOUT_TEST_MODE=true to use the test checkout)", c.StorageDriver)
	}
	return nil
}

// TestCheckoutAllowed reports whether the free test checkout may run: always
// with in-memory storage, otherwise only when explicitly enabled.
func (c *Config) TestCheckoutAllowed() bool {
	return c.StorageDriver == DriverMemory || c.CheckoutTestMode
}

// Origins returns the parsed ALLOWED_ORIGINS list.
func (c *Config) Origins() []string {
	var out []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	return out
}

// AdminEnabled reports whether the admin API can issue tokens.
func (c *Config) AdminEnabled() bool {
	return c.JWTSecret != ""
}
