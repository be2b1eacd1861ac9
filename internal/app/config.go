package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage      string `default:"postgres" usage:"Storage backend: postgres or memory"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (SHOP_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Coupon       CouponConfig
	Notify       NotifyConfig
	Memory       MemoryConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// CouponConfig controls discount calculation.
type CouponConfig struct {
	FreeItemValue string `default:"300" usage:"Value of the complimentary item granted by free-item coupons" flag:"free-item-value"`
}

// NotifyConfig controls new-order fan-out.
type NotifyConfig struct {
	Group     string `default:"admin" usage:"Broadcast group receiving new-order events"`
	QueueSize int    `default:"64" usage:"Per-connection outbound queue size"`
	RedisURL  string `usage:"Redis URL for fan-out across instances (REDIS_URL); empty keeps fan-out local" flag:"redis-url"`
}

// MemoryConfig seeds the in-memory storage backend with demo data.
type MemoryConfig struct {
	AdminKey    string `usage:"Plaintext admin API key to register" flag:"memory-admin-key"`
	CustomerKey string `usage:"Plaintext customer API key to register" flag:"memory-customer-key"`
	CustomerID  string `default:"customer-1" usage:"User id of the demo customer" flag:"memory-customer-id"`
}

// RateLimitConfig controls the per-caller sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/shop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
		}
	case StorageMemory:
	default:
		return errors.Errorf("unknown storage %q: want %s or %s", c.Storage, StoragePostgres, StorageMemory)
	}
	if _, err := c.FreeItemValue(); err != nil {
		return err
	}
	if c.Notify.Group == "" {
		return errors.New("notify group must not be empty")
	}
	return nil
}

// FreeItemValue parses Coupon.FreeItemValue.
func (c *Config) FreeItemValue() (decimal.Decimal, error) {
	v, err := decimal.NewFromString(c.Coupon.FreeItemValue)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse free item value %q", c.Coupon.FreeItemValue)
	}
	if v.IsNegative() {
		return decimal.Zero, errors.Errorf("free item value %s must not be negative", v)
	}
	return v, nil
}

// applyPlatformDefaults maps platform-provided environment variables that
// use standard names like DATABASE_URL, REDIS_URL and PORT to the
// application's SHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.Notify.RedisURL == "" {
		if v := os.Getenv("REDIS_URL"); v != "" {
			c.Notify.RedisURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
