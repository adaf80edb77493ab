package app

import (
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Collaborator backends.
const (
	BackendHTTP     = "http"
	BackendPostgres = "postgres"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (CHECKOUT_ prefix), flags, or YAML config files.
type Config struct {
	Addr          string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Backend       string `default:"http" usage:"Where coupons come from and orders go: http or postgres"`
	DatabaseURL   string `usage:"PostgreSQL connection URL (CHECKOUT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ShippingFee   int64  `default:"3000" usage:"Shipping fee in minor currency units" flag:"shipping-fee"`
	CouponService ServiceConfig
	OrderService  ServiceConfig
	Session       SessionConfig
	RateLimit     RateLimitConfig
	CORS          CORSConfig
	Graceful      GracefulConfig
}

// ServiceConfig points at a remote collaborator.
type ServiceConfig struct {
	URL     string        `usage:"Base URL of the service"`
	Timeout time.Duration `default:"10s" usage:"Per-request timeout"`
}

// SessionConfig bounds the open checkouts.
type SessionConfig struct {
	TTL           time.Duration `default:"30m" usage:"Idle time after which a checkout is closed"`
	SweepInterval time.Duration `default:"1m"  usage:"How often idle checkouts are looked for"`
	Limit         int           `default:"10000" usage:"Maximum open checkouts, 0 for no limit"`
}

// RateLimitConfig controls the per-client rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`

	// TrustedProxies are CIDRs whose X-Forwarded-For headers identify the client.
	TrustedProxies []string `usage:"CIDRs of proxies trusted to set forwarded headers" flag:"trusted-proxies"`
}

// TrustedPrefixes parses TrustedProxies.
func (c RateLimitConfig) TrustedPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, cidr := range c.TrustedProxies {
		p, err := netip.ParsePrefix(strings.TrimSpace(cidr))
		if err != nil {
			return nil, errors.Wrapf(err, "trusted proxy %q", cidr)
		}
		prefixes = append(prefixes, p.Masked())
	}
	return prefixes, nil
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

// LoadConfig loads configuration from environment variables, flags and YAML
// config files, then validates it.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "CHECKOUT",
		Files:     []string{"config.yaml", "/etc/checkout/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	return &cfg, nil
}

// Validate checks that the selected backend is fully configured.
func (c *Config) Validate() error {
	if c.ShippingFee < 0 {
		return errors.Errorf("shipping fee %d is negative", c.ShippingFee)
	}
	if _, err := c.RateLimit.TrustedPrefixes(); err != nil {
		return err
	}
	switch c.Backend {
	case BackendHTTP:
		if c.CouponService.URL == "" || c.OrderService.URL == "" {
			return errors.New("http backend requires coupon and order service URLs")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("postgres backend requires a database URL: set CHECKOUT_DATABASE_URL or DATABASE_URL")
		}
	default:
		return errors.Errorf("unknown backend %q", c.Backend)
	}
	return nil
}

// applyPlatformDefaults maps the conventional DATABASE_URL and PORT variables
// set by hosting platforms.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
