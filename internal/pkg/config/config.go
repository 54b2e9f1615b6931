package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ManuelReschke/FoxPay/internal/pkg/env"
)

const (
	IdempotencyBackendDatabase = "database"
	IdempotencyBackendRedis    = "redis"
)

// Stripe holds the ledger credentials and endpoint settings.
type Stripe struct {
	SecretKey      string `validate:"required"`
	PublishableKey string `validate:"required"`
	APIVersion     string
	WebhookSecret  string
	BaseURL        string `validate:"omitempty,url"`
}

type Database struct {
	Host     string `validate:"required"`
	Port     string `validate:"required,numeric"`
	User     string
	Password string
	Name     string `validate:"required"`
}

type Cache struct {
	Host     string `validate:"required"`
	Port     string `validate:"required,numeric"`
	Password string
}

// Config is built once at startup and passed by value afterwards.
type Config struct {
	AppEnv   string `validate:"oneof=dev test prod"`
	AppHost  string `validate:"required"`
	AppPort  string `validate:"required,numeric"`
	LogLevel string `validate:"oneof=debug info warn error"`

	PublicURL         string `validate:"required,url"`
	CheckoutCancelURL string `validate:"omitempty,url"`

	Stripe   Stripe
	Database Database
	Cache    Cache

	IdempotencyBackend string        `validate:"oneof=database redis"`
	IdempotencyLease   time.Duration `validate:"gt=0"`
	FulfillmentChannel string        `validate:"required"`

	MetricsUser     string
	MetricsPassword string
	RateLimitMax    int `validate:"gte=0"`

	// PlanMappings maps ledger price ids to entitlement plans.
	PlanMappings map[string]string
}

var validate = validator.New()

// Load reads the configuration from the loaded .env map and the process
// environment and validates it.
func Load() (Config, error) {
	lease, err := time.ParseDuration(env.GetEnv("IDEMPOTENCY_LEASE", "60s"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid IDEMPOTENCY_LEASE: %w", err)
	}
	rateLimit, err := strconv.Atoi(env.GetEnv("RATE_LIMIT_MAX", "60"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid RATE_LIMIT_MAX: %w", err)
	}

	mappings, err := parsePlanMappings(env.GetEnv("PLAN_MAPPINGS", ""))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:   strings.ToLower(env.GetEnv("APP_ENV", "prod")),
		AppHost:  env.GetEnv("APP_HOST", "localhost"),
		AppPort:  env.GetEnv("APP_PORT", "4242"),
		LogLevel: strings.ToLower(env.GetEnv("LOG_LEVEL", "info")),

		PublicURL:         strings.TrimSuffix(env.GetEnv("PUBLIC_URL", "http://localhost:4242"), "/"),
		CheckoutCancelURL: env.GetEnv("CHECKOUT_CANCEL_URL", ""),

		Stripe: Stripe{
			SecretKey:      strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
			PublishableKey: strings.TrimSpace(env.GetEnv("STRIPE_PUBLISHABLE_KEY", "")),
			APIVersion:     strings.TrimSpace(env.GetEnv("STRIPE_API_VERSION", "")),
			WebhookSecret:  strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
			BaseURL:        strings.TrimSpace(env.GetEnv("STRIPE_API_BASE_URL", "")),
		},
		Database: LoadDatabase(),
		Cache: Cache{
			Host:     env.GetEnv("CACHE_HOST", "localhost"),
			Port:     env.GetEnv("CACHE_PORT", "6379"),
			Password: env.GetEnv("CACHE_PASSWORD", ""),
		},

		IdempotencyBackend: strings.ToLower(env.GetEnv("IDEMPOTENCY_BACKEND", IdempotencyBackendDatabase)),
		IdempotencyLease:   lease,
		FulfillmentChannel: env.GetEnv("FULFILLMENT_CHANNEL", "foxpay:fulfillment"),

		MetricsUser:     env.GetEnv("METRICS_USER", "admin"),
		MetricsPassword: env.GetEnv("METRICS_PASSWORD", ""),
		RateLimitMax:    rateLimit,
		PlanMappings:    mappings,
	}
	if cfg.CheckoutCancelURL == "" {
		cfg.CheckoutCancelURL = cfg.PublicURL + "/canceled"
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadDatabase reads only the database settings, for tools that do not
// talk to the ledger.
func LoadDatabase() Database {
	return Database{
		Host:     env.GetEnv("DB_HOST", "127.0.0.1"),
		Port:     env.GetEnv("DB_PORT", "3306"),
		User:     env.GetEnv("DB_USER", "foxpay"),
		Password: env.GetEnv("DB_PASSWORD", ""),
		Name:     env.GetEnv("DB_NAME", "foxpay"),
	}
}

// parsePlanMappings reads "price_a=premium,price_b=premium_max".
func parsePlanMappings(raw string) (map[string]string, error) {
	out := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		price, plan, ok := strings.Cut(pair, "=")
		price, plan = strings.TrimSpace(price), strings.TrimSpace(plan)
		if !ok || price == "" || plan == "" {
			return nil, fmt.Errorf("invalid PLAN_MAPPINGS entry %q", pair)
		}
		out[price] = plan
	}
	return out, nil
}

func (c Config) Addr() string {
	return c.AppHost + ":" + c.AppPort
}

func (c Config) IsDev() bool {
	return c.AppEnv == "dev"
}

// SignatureVerification reports whether webhook payloads are verified.
// Without a webhook secret the pipeline runs in degraded mode.
func (c Config) SignatureVerification() bool {
	return c.Stripe.WebhookSecret != ""
}

// MySQLDSN is the gorm mysql DSN for the configured database.
func (d Database) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// MigrateURL is the golang-migrate database URL for the configured database.
func (d Database) MigrateURL() string {
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

func (c Cache) Addr() string {
	return c.Host + ":" + c.Port
}
