package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DSN renders the postgres connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type PricingConfig struct {
	TTL          time.Duration
	StaleGrace   time.Duration
	FetchTimeout time.Duration
	MarketURL    string
	MarketAPIKey string
	MarketRPS    int
	// OfframpRate is the configured USD to settlement-currency rate.
	OfframpRate decimal.Decimal
}

type LimitsConfig struct {
	Timezone      string
	File          string
	SpendCacheTTL time.Duration
}

type ProviderConfig struct {
	BillPayURL          string
	BillPayAPIKey       string
	BillPaySecret       string
	CustodianURL        string
	CustodianAPIKey     string
	CustodianSecret     string
	StripeWebhookSecret string
}

type SettlementConfig struct {
	SubmitTimeout   time.Duration
	DuplicateWindow time.Duration
	SweepInterval   time.Duration
	SweepMaxAge     time.Duration
	SweepBatchSize  int
}

type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	Channel      string
}

// Config is the full runtime configuration, read once at startup.
type Config struct {
	Env         string
	Port        string
	CORSOrigins string
	JWTSecret   string
	Database    DatabaseConfig
	Redis       RedisConfig
	Pricing     PricingConfig
	Limits      LimitsConfig
	Providers   ProviderConfig
	Settlement  SettlementConfig
	Outbox      OutboxConfig
}

const (
	minPriceTTL = 2 * time.Minute
	maxPriceTTL = 5 * time.Minute
)

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Env:         GetEnv("ENV", "development"),
		Port:        GetEnv("PORT", "3000"),
		CORSOrigins: GetEnv("CORS_ORIGINS", "http://localhost:5173"),
		JWTSecret:   GetEnv("JWT_SECRET", ""),
		Database: DatabaseConfig{
			Host:            GetEnv("DB_HOST", "localhost"),
			Port:            GetEnv("DB_PORT", "5432"),
			User:            GetEnv("DB_USER", "postgres"),
			Password:        GetEnv("DB_PASSWORD", "postgres"),
			Name:            GetEnv("DB_NAME", "kudi"),
			SSLMode:         GetEnv("DB_SSLMODE", "disable"),
			MaxIdleConns:    GetIntEnv("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    GetIntEnv("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: GetDurationEnv("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: GetDurationEnv("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Host:     GetEnv("REDIS_HOST", "localhost"),
			Port:     GetEnv("REDIS_PORT", "6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetIntEnv("REDIS_DB", 0),
		},
		Pricing: PricingConfig{
			TTL:          GetDurationEnv("PRICE_CACHE_TTL", 3*time.Minute),
			StaleGrace:   GetDurationEnv("PRICE_STALE_GRACE", 0),
			FetchTimeout: GetDurationEnv("PRICE_FETCH_TIMEOUT", 10*time.Second),
			MarketURL:    GetEnv("PRICE_FEED_URL", "https://api.coingecko.com/api/v3"),
			MarketAPIKey: GetEnv("PRICE_FEED_API_KEY", ""),
			MarketRPS:    GetIntEnv("PRICE_FEED_RPS", 5),
			OfframpRate:  GetDecimalEnv("OFFRAMP_USD_NGN_RATE", decimal.Zero),
		},
		Limits: LimitsConfig{
			Timezone:      GetEnv("LIMITS_TIMEZONE", "Africa/Lagos"),
			File:          GetEnv("LIMITS_FILE", ""),
			SpendCacheTTL: GetDurationEnv("SPEND_CACHE_TTL", 5*time.Minute),
		},
		Providers: ProviderConfig{
			BillPayURL:          GetEnv("BILLPAY_BASE_URL", ""),
			BillPayAPIKey:       GetEnv("BILLPAY_API_KEY", ""),
			BillPaySecret:       GetEnv("BILLPAY_WEBHOOK_SECRET", ""),
			CustodianURL:        GetEnv("CUSTODIAN_BASE_URL", ""),
			CustodianAPIKey:     GetEnv("CUSTODIAN_API_KEY", ""),
			CustodianSecret:     GetEnv("CUSTODIAN_WEBHOOK_SECRET", ""),
			StripeWebhookSecret: GetEnv("STRIPE_IDENTITY_WEBHOOK_SECRET", ""),
		},
		Settlement: SettlementConfig{
			SubmitTimeout:   GetDurationEnv("PROVIDER_SUBMIT_TIMEOUT", 30*time.Second),
			DuplicateWindow: GetDurationEnv("DUPLICATE_WINDOW", time.Minute),
			SweepInterval:   GetDurationEnv("SWEEP_INTERVAL", 5*time.Minute),
			SweepMaxAge:     GetDurationEnv("SWEEP_MAX_AGE", 30*time.Minute),
			SweepBatchSize:  GetIntEnv("SWEEP_BATCH_SIZE", 100),
		},
		Outbox: OutboxConfig{
			PollInterval: GetDurationEnv("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize:    GetIntEnv("OUTBOX_BATCH_SIZE", 50),
			MaxAttempts:  GetIntEnv("OUTBOX_MAX_ATTEMPTS", 10),
			Channel:      GetEnv("OUTBOX_CHANNEL", "kudi.transactions"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface as runtime surprises.
func (c *Config) Validate() error {
	if c.Pricing.TTL < minPriceTTL || c.Pricing.TTL > maxPriceTTL {
		return fmt.Errorf("PRICE_CACHE_TTL must be between %s and %s, got %s", minPriceTTL, maxPriceTTL, c.Pricing.TTL)
	}
	if c.Pricing.StaleGrace < 0 {
		return fmt.Errorf("PRICE_STALE_GRACE must not be negative")
	}
	if c.Pricing.OfframpRate.IsNegative() {
		return fmt.Errorf("OFFRAMP_USD_NGN_RATE must not be negative")
	}
	if c.Settlement.SubmitTimeout <= 0 {
		return fmt.Errorf("PROVIDER_SUBMIT_TIMEOUT must be positive")
	}
	if c.Env == "production" && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	if c.JWTSecret == "" {
		c.JWTSecret = "development-secret"
	}
	return nil
}
