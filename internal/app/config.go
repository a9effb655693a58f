package app

import (
	"net"
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (KART_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"HTTP listen address"`
	DatabaseURL string `usage:"PostgreSQL URL for the product catalog (KART_DATABASE_URL or DATABASE_URL); empty uses the catalog file" flag:"database-url"`
	CatalogFile string `default:"catalog.yaml" usage:"YAML product catalog used when no database is configured" flag:"catalog-file"`
	Checkout    CheckoutConfig
	Stripe      StripeConfig
	Cart        CartConfig
	RateLimit   RateLimitConfig
	Graceful    GracefulConfig
}

// CheckoutConfig controls how the cart is handed to the session endpoint.
type CheckoutConfig struct {
	Currency string `default:"GBP" usage:"Currency code sent with every line item"`

	// SessionURL defaults to this server's own /api/checkout endpoint.
	SessionURL string `usage:"Checkout session creation endpoint" flag:"session-url"`
}

// StripeConfig holds the payment provider credentials and URLs.
type StripeConfig struct {
	PublishableKey string `usage:"Stripe publishable key (KART_STRIPE_PUBLISHABLE_KEY or STRIPE_PUBLISHABLE_KEY)" flag:"stripe-publishable-key"`
	SecretKey      string `usage:"Stripe secret key (KART_STRIPE_SECRET_KEY or STRIPE_SECRET_KEY)" flag:"stripe-secret-key"`
	CheckoutURL    string `default:"https://checkout.stripe.com/c/pay" usage:"Hosted checkout page base URL" flag:"stripe-checkout-url"`
	SuccessURL     string `default:"http://localhost:8080/" usage:"Where the hosted page sends the visitor after payment" flag:"stripe-success-url"`
	CancelURL      string `default:"http://localhost:8080/cart" usage:"Where the hosted page sends the visitor on cancel" flag:"stripe-cancel-url"`

	// BackendURL overrides the Stripe API base URL, e.g. for stripe-mock.
	BackendURL string `usage:"Stripe API base URL override" flag:"stripe-backend-url"`
}

// CartConfig controls in-memory cart retention.
type CartConfig struct {
	TTL          time.Duration `default:"24h" usage:"Evict carts idle for longer than this"`
	SecureCookie bool          `default:"false" usage:"Mark the cart cookie Secure" flag:"cart-secure-cookie"`
}

// RateLimitConfig controls the sliding window limiter on payment endpoints.
type RateLimitConfig struct {
	Max    int           `default:"20" usage:"Max payment requests per window"`
	Window time.Duration `default:"1m" usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from command-line flags, environment
// variables, YAML config files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(os.Args[1:])
}

func loadConfig(args []string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		Args:      args,
		EnvPrefix: "KART",
		Files:     []string{"config.yaml", "/etc/kart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's KART_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Stripe.PublishableKey == "" {
		c.Stripe.PublishableKey = os.Getenv("STRIPE_PUBLISHABLE_KEY")
	}
	if c.Stripe.SecretKey == "" {
		c.Stripe.SecretKey = os.Getenv("STRIPE_SECRET_KEY")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
	if c.Checkout.SessionURL == "" {
		c.Checkout.SessionURL = selfURL(c.Addr) + "/api/checkout"
	}
}

// validate rejects configurations the server cannot start with. A missing
// publishable key is allowed: pay then fails with "payment client unavailable".
func (c *Config) validate() error {
	if c.DatabaseURL == "" && c.CatalogFile == "" {
		return errors.New("product catalog is required: set KART_DATABASE_URL or KART_CATALOG_FILE")
	}
	if c.Checkout.Currency == "" {
		return errors.New("checkout currency is required")
	}
	return nil
}

// selfURL returns a loopback base URL for reaching a server bound to addr.
func selfURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + strings.TrimPrefix(addr, "http://")
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}
