package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/bnpl-engine/internal/domain"
	"github.com/segyhp/bnpl-engine/internal/financing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Cache.CreditScoreTTL)
	assert.Equal(t, 24, cfg.Business.MaxInstallments)
	assert.Equal(t, int64(1000), cfg.Business.LateFeeCents)
	assert.True(t, decimal.NewFromInt(36).Equal(cfg.GetMaxInterestRate()))
	assert.Equal(t, domain.RiskLevelMedium, cfg.GetFallbackRiskLevel())
	assert.Equal(t, financing.DefaultScheduleConfig, cfg.GetScheduleConfig())
	assert.Equal(t, int64(100000), cfg.GetRiskLimits()[domain.RiskLevelHigh])
	assert.Equal(t, int64(0), cfg.GetRiskLimits()[domain.RiskLevelCritical])
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "file:bnpl.db")
	t.Setenv("GRACE_PERIOD_DAYS", "5")
	t.Setenv("RISK_LIMIT_HIGH", "150000")
	t.Setenv("MAX_INTEREST_RATE", "29.99")
	t.Setenv("CREDIT_PROVIDER_TIMEOUT", "750ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "file:bnpl.db", cfg.Database.DSN())
	assert.Equal(t, 5, cfg.GetScheduleConfig().GracePeriodDays)
	assert.Equal(t, int64(150000), cfg.GetRiskLimits()[domain.RiskLevelHigh])
	assert.True(t, decimal.RequireFromString("29.99").Equal(cfg.GetMaxInterestRate()))
	assert.Equal(t, 750*time.Millisecond, cfg.CreditProvider.Timeout)
}

func TestLoad_InvalidConfiguration(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown database driver", key: "DATABASE_DRIVER", value: "oracle"},
		{name: "unknown cache driver", key: "CACHE_DRIVER", value: "memcached"},
		{name: "bad fallback tier", key: "FALLBACK_RISK_LEVEL", value: "UNKNOWN"},
		{name: "negative late fee", key: "LATE_FEE_CENTS", value: "-1"},
		{name: "negative risk limit", key: "RISK_LIMIT_LOW", value: "-5"},
		{name: "non-numeric rate", key: "MAX_INTEREST_RATE", value: "abc"},
		{name: "non-numeric default rate", key: "DEFAULT_INTEREST_RATE", value: "five"},
		{name: "default rate over cap", key: "DEFAULT_INTEREST_RATE", value: "40"},
		{name: "zero interval", key: "PAYMENT_INTERVAL_DAYS", value: "0"},
		{name: "bad timezone", key: "SCHEDULER_TIMEZONE", value: "Mars/Olympus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()
			assert.Nil(t, cfg)
			assert.Error(t, err)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	db := DatabaseConfig{
		Host:     "db",
		Port:     "5432",
		Name:     "bnpl",
		User:     "app",
		Password: "s3cret",
		SSLMode:  "require",
	}

	assert.Equal(t, "postgres://app:s3cret@db:5432/bnpl?sslmode=require", db.DSN())
}
