package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/segyhp/bnpl-engine/internal/domain"
	"github.com/segyhp/bnpl-engine/internal/financing"
	"github.com/segyhp/bnpl-engine/pkg/utils"
)

// Config holds all configuration for our application
type Config struct {
	Server         ServerConfig         `mapstructure:",squash"`
	Database       DatabaseConfig       `mapstructure:",squash"`
	Redis          RedisConfig          `mapstructure:",squash"`
	Cache          CacheConfig          `mapstructure:",squash"`
	CreditProvider CreditProviderConfig `mapstructure:",squash"`
	Scheduler      SchedulerConfig      `mapstructure:",squash"`
	Logging        LoggingConfig        `mapstructure:",squash"`
	Tracing        TracingConfig        `mapstructure:",squash"`
	Business       BusinessConfig       `mapstructure:",squash"`
	Health         HealthConfig         `mapstructure:",squash"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"SERVER_PORT"`
	Host            string        `mapstructure:"SERVER_HOST"`
	ReadTimeout     time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `mapstructure:"SERVER_SHUTDOWN_TIMEOUT"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"DATABASE_DRIVER"`
	URL             string        `mapstructure:"DATABASE_URL"`
	Host            string        `mapstructure:"DATABASE_HOST"`
	Port            string        `mapstructure:"DATABASE_PORT"`
	Name            string        `mapstructure:"DATABASE_NAME"`
	User            string        `mapstructure:"DATABASE_USER"`
	Password        string        `mapstructure:"DATABASE_PASSWORD"`
	SSLMode         string        `mapstructure:"DATABASE_SSLMODE"`
	MaxOpenConns    int           `mapstructure:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `mapstructure:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `mapstructure:"DATABASE_CONN_MAX_LIFETIME"`
	AutoMigrate     bool          `mapstructure:"DATABASE_AUTO_MIGRATE"`
}

type RedisConfig struct {
	Host     string `mapstructure:"REDIS_HOST"`
	Port     string `mapstructure:"REDIS_PORT"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
}

type CacheConfig struct {
	Driver         string        `mapstructure:"CACHE_DRIVER"`
	CreditScoreTTL time.Duration `mapstructure:"CREDIT_SCORE_TTL"`
}

type CreditProviderConfig struct {
	URL            string        `mapstructure:"CREDIT_PROVIDER_URL"`
	Timeout        time.Duration `mapstructure:"CREDIT_PROVIDER_TIMEOUT"`
	MaxRetries     int           `mapstructure:"CREDIT_PROVIDER_MAX_RETRIES"`
	InitialBackoff time.Duration `mapstructure:"CREDIT_PROVIDER_INITIAL_BACKOFF"`
}

type SchedulerConfig struct {
	SweepSchedule      string `mapstructure:"SWEEP_SCHEDULE"`
	SweepPageSize      int    `mapstructure:"SWEEP_PAGE_SIZE"`
	SweepInProcess     bool   `mapstructure:"SWEEP_IN_PROCESS"`
	ReminderSchedule   string `mapstructure:"REMINDER_SCHEDULE"`
	ReminderWindowDays int    `mapstructure:"REMINDER_WINDOW_DAYS"`
	Timezone           string `mapstructure:"SCHEDULER_TIMEZONE"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"LOG_LEVEL"`
	Format string `mapstructure:"LOG_FORMAT"`
}

type TracingConfig struct {
	Enabled      bool   `mapstructure:"TRACING_ENABLED"`
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `mapstructure:"OTEL_SERVICE_NAME"`
}

type BusinessConfig struct {
	DefaultInterestRate   string `mapstructure:"DEFAULT_INTEREST_RATE"`
	MaxInterestRate       string `mapstructure:"MAX_INTEREST_RATE"`
	MaxInstallments       int    `mapstructure:"MAX_INSTALLMENTS"`
	FirstPaymentDelayDays int    `mapstructure:"FIRST_PAYMENT_DELAY_DAYS"`
	PaymentIntervalDays   int    `mapstructure:"PAYMENT_INTERVAL_DAYS"`
	GracePeriodDays       int    `mapstructure:"GRACE_PERIOD_DAYS"`
	LateFeeCents          int64  `mapstructure:"LATE_FEE_CENTS"`
	FallbackRiskLevel     string `mapstructure:"FALLBACK_RISK_LEVEL"`
	RiskLimitLow          int64  `mapstructure:"RISK_LIMIT_LOW"`
	RiskLimitMedium       int64  `mapstructure:"RISK_LIMIT_MEDIUM"`
	RiskLimitHigh         int64  `mapstructure:"RISK_LIMIT_HIGH"`
	RiskLimitCritical     int64  `mapstructure:"RISK_LIMIT_CRITICAL"`
}

type HealthConfig struct {
	Timeout time.Duration `mapstructure:"HEALTH_CHECK_TIMEOUT"`
}

var defaults = map[string]any{
	"SERVER_PORT":             "8080",
	"SERVER_HOST":             "0.0.0.0",
	"SERVER_READ_TIMEOUT":     "10s",
	"SERVER_WRITE_TIMEOUT":    "30s",
	"SERVER_SHUTDOWN_TIMEOUT": "30s",

	"DATABASE_DRIVER":            "postgres",
	"DATABASE_URL":               "",
	"DATABASE_HOST":              "localhost",
	"DATABASE_PORT":              "5432",
	"DATABASE_NAME":              "bnpl_engine",
	"DATABASE_USER":              "postgres",
	"DATABASE_PASSWORD":          "",
	"DATABASE_SSLMODE":           "disable",
	"DATABASE_MAX_OPEN_CONNS":    25,
	"DATABASE_MAX_IDLE_CONNS":    5,
	"DATABASE_CONN_MAX_LIFETIME": "5m",
	"DATABASE_AUTO_MIGRATE":      true,

	"REDIS_HOST":     "localhost",
	"REDIS_PORT":     "6379",
	"REDIS_PASSWORD": "",
	"REDIS_DB":       0,

	"CACHE_DRIVER":     "memory",
	"CREDIT_SCORE_TTL": "24h",

	"CREDIT_PROVIDER_URL":             "",
	"CREDIT_PROVIDER_TIMEOUT":         "3s",
	"CREDIT_PROVIDER_MAX_RETRIES":     2,
	"CREDIT_PROVIDER_INITIAL_BACKOFF": "100ms",

	"SWEEP_SCHEDULE":       "0 0 * * * *",
	"SWEEP_PAGE_SIZE":      200,
	"SWEEP_IN_PROCESS":     false,
	"REMINDER_SCHEDULE":    "0 0 9 * * *",
	"REMINDER_WINDOW_DAYS": 3,
	"SCHEDULER_TIMEZONE":   "UTC",

	"LOG_LEVEL":  "info",
	"LOG_FORMAT": "json",

	"TRACING_ENABLED":             false,
	"OTEL_EXPORTER_OTLP_ENDPOINT": "localhost:4317",
	"OTEL_SERVICE_NAME":           "bnpl-engine",

	"DEFAULT_INTEREST_RATE":    "0",
	"MAX_INTEREST_RATE":        "36",
	"MAX_INSTALLMENTS":         24,
	"FIRST_PAYMENT_DELAY_DAYS": 14,
	"PAYMENT_INTERVAL_DAYS":    14,
	"GRACE_PERIOD_DAYS":        3,
	"LATE_FEE_CENTS":           1000,
	"FALLBACK_RISK_LEVEL":      string(domain.RiskLevelMedium),
	"RISK_LIMIT_LOW":           500000,
	"RISK_LIMIT_MEDIUM":        250000,
	"RISK_LIMIT_HIGH":          100000,
	"RISK_LIMIT_CRITICAL":      0,

	"HEALTH_CHECK_TIMEOUT": "5s",
}

// Load reads configuration from environment variables and files
func Load() (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// Read from environment variables
	v.AutomaticEnv()

	// Try to read from .env file (optional)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./deployments")

	// Don't fail if .env file doesn't exist
	_ = v.ReadInConfig()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	switch c.Database.Driver {
	case "postgres", "memory":
	case "sqlite", "sqlite3":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("DATABASE_DRIVER must be postgres, sqlite or memory, got %q", c.Database.Driver)
	}

	switch c.Cache.Driver {
	case "redis", "memory":
	default:
		return fmt.Errorf("CACHE_DRIVER must be redis or memory, got %q", c.Cache.Driver)
	}

	if c.Cache.CreditScoreTTL <= 0 {
		return fmt.Errorf("CREDIT_SCORE_TTL must be greater than 0")
	}

	if c.CreditProvider.Timeout <= 0 {
		return fmt.Errorf("CREDIT_PROVIDER_TIMEOUT must be greater than 0")
	}

	if c.CreditProvider.URL != "" {
		if _, err := url.ParseRequestURI(c.CreditProvider.URL); err != nil {
			return fmt.Errorf("CREDIT_PROVIDER_URL must be a valid URL: %w", err)
		}
	}

	if c.Scheduler.SweepPageSize <= 0 {
		return fmt.Errorf("SWEEP_PAGE_SIZE must be greater than 0")
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("SCHEDULER_TIMEZONE must be a valid IANA zone: %w", err)
	}

	if c.Business.MaxInstallments <= 0 {
		return fmt.Errorf("MAX_INSTALLMENTS must be greater than 0")
	}

	if c.Business.FirstPaymentDelayDays < 0 || c.Business.PaymentIntervalDays <= 0 || c.Business.GracePeriodDays < 0 {
		return fmt.Errorf("FIRST_PAYMENT_DELAY_DAYS and GRACE_PERIOD_DAYS must be >= 0, PAYMENT_INTERVAL_DAYS > 0")
	}

	if c.Business.LateFeeCents < 0 {
		return fmt.Errorf("LATE_FEE_CENTS must not be negative")
	}

	if _, err := domain.ParseRiskLevel(c.Business.FallbackRiskLevel); err != nil {
		return fmt.Errorf("FALLBACK_RISK_LEVEL: %w", err)
	}

	for name, limit := range map[string]int64{
		"RISK_LIMIT_LOW":      c.Business.RiskLimitLow,
		"RISK_LIMIT_MEDIUM":   c.Business.RiskLimitMedium,
		"RISK_LIMIT_HIGH":     c.Business.RiskLimitHigh,
		"RISK_LIMIT_CRITICAL": c.Business.RiskLimitCritical,
	} {
		if limit < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}

	// Validate interest rates
	rate, err := utils.DecimalFromString(c.Business.DefaultInterestRate)
	if err != nil {
		return fmt.Errorf("DEFAULT_INTEREST_RATE must be a valid decimal: %w", err)
	}
	maxRate, err := utils.DecimalFromString(c.Business.MaxInterestRate)
	if err != nil {
		return fmt.Errorf("MAX_INTEREST_RATE must be a valid decimal: %w", err)
	}
	if rate.IsNegative() || rate.GreaterThan(maxRate) {
		return fmt.Errorf("DEFAULT_INTEREST_RATE must be between 0 and MAX_INTEREST_RATE")
	}

	return nil
}

// DSN returns the Postgres connection string, preferring DATABASE_URL when set.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   d.Host + ":" + d.Port,
		Path:   "/" + d.Name,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// GetDefaultInterestRate returns the default interest rate as decimal
func (c *Config) GetDefaultInterestRate() decimal.Decimal {
	rate, _ := utils.DecimalFromString(c.Business.DefaultInterestRate)
	return rate
}

// GetMaxInterestRate returns the interest rate ceiling as decimal
func (c *Config) GetMaxInterestRate() decimal.Decimal {
	rate, _ := utils.DecimalFromString(c.Business.MaxInterestRate)
	return rate
}

// GetFallbackRiskLevel returns the tier used when the score provider is unavailable
func (c *Config) GetFallbackRiskLevel() domain.RiskLevel {
	return domain.RiskLevel(c.Business.FallbackRiskLevel)
}

// GetRiskLimits returns the per-tier financing ceilings in minor units
func (c *Config) GetRiskLimits() map[domain.RiskLevel]int64 {
	return map[domain.RiskLevel]int64{
		domain.RiskLevelLow:      c.Business.RiskLimitLow,
		domain.RiskLevelMedium:   c.Business.RiskLimitMedium,
		domain.RiskLevelHigh:     c.Business.RiskLimitHigh,
		domain.RiskLevelCritical: c.Business.RiskLimitCritical,
	}
}

// GetScheduleConfig returns the repayment cadence
func (c *Config) GetScheduleConfig() financing.ScheduleConfig {
	return financing.ScheduleConfig{
		FirstPaymentDelayDays: c.Business.FirstPaymentDelayDays,
		PaymentIntervalDays:   c.Business.PaymentIntervalDays,
		GracePeriodDays:       c.Business.GracePeriodDays,
	}
}

// GetSchedulerLocation returns the timezone cron expressions are evaluated in
func (c *Config) GetSchedulerLocation() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
