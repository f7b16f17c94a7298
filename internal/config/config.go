package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cswank/store/internal/repository"
	pkgconfig "github.com/cswank/store/pkg/config"
)

// Store and catalog backends.
const (
	BackendRedis    = "redis"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config holds all configuration for the storefront cart service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort              int `env:"HTTP_PORT" envDefault:"8080"`
	RequestTimeoutSeconds int `env:"REQUEST_TIMEOUT_SECONDS" envDefault:"30"`

	// Cart store
	StoreBackend string `env:"STORE_BACKEND" envDefault:"redis"`
	SaveMode     string `env:"STORE_SAVE_MODE" envDefault:"overwrite"`
	CartSlot     string `env:"CART_SLOT" envDefault:"shopping-cart"`

	// Redis
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Cart TTL in hours (default: 7 days)
	CartTTL int `env:"CART_TTL_HOURS" envDefault:"168"`

	// Line-item catalog
	CatalogBackend string `env:"CATALOG_BACKEND" envDefault:"postgres"`
	PostgresHost   string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort   int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser   string `env:"POSTGRES_USER" envDefault:"store"`
	PostgresPass   string `env:"POSTGRES_PASSWORD" envDefault:"store"`
	PostgresDB     string `env:"POSTGRES_DB" envDefault:"store"`
	PostgresSSL    string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns           int32 `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns           int32 `env:"DB_MIN_CONNS" envDefault:"1"`
	SlowQueryThresholdMs int   `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`

	// Kafka. No brokers disables cart events.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// Cart page fragments. Empty renders them in-process from the catalog.
	FragmentBaseURL     string `env:"FRAGMENT_BASE_URL" envDefault:""`
	FragmentConcurrency int    `env:"FRAGMENT_CONCURRENCY" envDefault:"8"`

	// Cart link
	IndicatorRevertMs int `env:"INDICATOR_REVERT_MS" envDefault:"600"`

	// Commerce provider
	ProviderBaseURL     string `env:"PROVIDER_BASE_URL" envDefault:""`
	ProviderToken       string `env:"PROVIDER_TOKEN" envDefault:""`
	ProviderFake        bool   `env:"PROVIDER_FAKE" envDefault:"false"`
	ProviderConcurrency int    `env:"PROVIDER_CONCURRENCY" envDefault:"4"`

	// Checkout
	DiscountCode string `env:"DISCOUNT_CODE" envDefault:""`
	// Deprecated: per-item prices are stored in the cart.
	LegacyFixedPrice string `env:"LEGACY_FIXED_PRICE" envDefault:""`
	ReturnURL        string `env:"RETURN_URL" envDefault:"/"`

	// Delete confirmation
	AdminURL        string `env:"ADMIN_URL" envDefault:"/admin"`
	AdminAPIBaseURL string `env:"ADMIN_API_BASE_URL" envDefault:""`

	// Circuit breaker settings for upstream calls
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFrom reads configuration from environ instead of the process
// environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadFrom(cfg, environ); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.RequestTimeoutSeconds < 1 {
		return fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be positive, got %d", c.RequestTimeoutSeconds)
	}
	switch c.StoreBackend {
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be one of %s, %s; got %q", BackendRedis, BackendMemory, c.StoreBackend)
	}
	switch repository.SaveMode(c.SaveMode) {
	case repository.SaveOverwrite, repository.SaveMerge:
	default:
		return fmt.Errorf("STORE_SAVE_MODE must be one of %s, %s; got %q", repository.SaveOverwrite, repository.SaveMerge, c.SaveMode)
	}
	if c.CartSlot == "" {
		return fmt.Errorf("CART_SLOT is required")
	}
	if c.CartTTL < 1 {
		return fmt.Errorf("CART_TTL_HOURS must be positive, got %d", c.CartTTL)
	}
	switch c.CatalogBackend {
	case BackendPostgres:
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("CATALOG_BACKEND must be one of %s, %s; got %q", BackendPostgres, BackendMemory, c.CatalogBackend)
	}
	if c.FragmentConcurrency < 1 {
		return fmt.Errorf("FRAGMENT_CONCURRENCY must be positive, got %d", c.FragmentConcurrency)
	}
	if c.ProviderConcurrency < 1 {
		return fmt.Errorf("PROVIDER_CONCURRENCY must be positive, got %d", c.ProviderConcurrency)
	}
	if c.IndicatorRevertMs < 0 {
		return fmt.Errorf("INDICATOR_REVERT_MS must not be negative, got %d", c.IndicatorRevertMs)
	}
	if _, err := c.FixedPrice(); err != nil {
		return err
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}

	// The provider is either configured or faked in-process.
	if c.ProviderBaseURL == "" && !c.ProviderFake {
		return fmt.Errorf("PROVIDER_BASE_URL is required unless PROVIDER_FAKE is set")
	}
	for name, rawURL := range map[string]string{
		"PROVIDER_BASE_URL":  c.ProviderBaseURL,
		"FRAGMENT_BASE_URL":  c.FragmentBaseURL,
		"ADMIN_API_BASE_URL": c.AdminAPIBaseURL,
	} {
		if rawURL == "" {
			continue
		}
		if _, err := url.ParseRequestURI(rawURL); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, rawURL, err)
		}
	}
	return nil
}

// FixedPrice parses LEGACY_FIXED_PRICE. It is nil when unset.
func (c *Config) FixedPrice() (*decimal.Decimal, error) {
	if c.LegacyFixedPrice == "" {
		return nil, nil
	}
	p, err := decimal.NewFromString(c.LegacyFixedPrice)
	if err != nil {
		return nil, fmt.Errorf("invalid LEGACY_FIXED_PRICE %q: %w", c.LegacyFixedPrice, err)
	}
	if p.IsNegative() {
		return nil, fmt.Errorf("LEGACY_FIXED_PRICE must not be negative, got %s", p)
	}
	return &p, nil
}

// CartTTLDuration returns the cart expiry.
func (c *Config) CartTTLDuration() time.Duration {
	return time.Duration(c.CartTTL) * time.Hour
}

// IndicatorRevert returns how long the cart link stays animated.
func (c *Config) IndicatorRevert() time.Duration {
	return time.Duration(c.IndicatorRevertMs) * time.Millisecond
}

// RequestTimeout returns the per-request deadline.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}
