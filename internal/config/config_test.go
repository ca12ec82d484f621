package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"ENV", "PORT", "DATABASE_URL", "REDIS_ADDR", "KAFKA_BROKERS",
		"AUTH_SECRET", "ACCESS_TOKEN_TTL_MINUTES",
		"PROMO_CACHE_TTL_SECONDS", "CATALOG_CACHE_TTL_SECONDS",
		"DEFAULT_TAX_RATE_PERCENT",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "8080", cfg.Port)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Nil(t, cfg.KafkaBrokers)
	assert.Equal(t, "tiendita.sales", cfg.KafkaTopicSales)
	assert.Equal(t, time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 30*time.Second, cfg.PromoCacheTTL)
	assert.Equal(t, 60*time.Second, cfg.CatalogCacheTTL)
	assert.Equal(t, float64(19), cfg.DefaultTaxRatePercent)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "15")
	t.Setenv("PROMO_CACHE_TTL_SECONDS", "5")
	t.Setenv("DEFAULT_TAX_RATE_PERCENT", "8.5")

	cfg := Load()
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 5*time.Second, cfg.PromoCacheTTL)
	assert.Equal(t, 8.5, cfg.DefaultTaxRatePercent)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "soon")
	t.Setenv("DEFAULT_TAX_RATE_PERCENT", "mucho")

	cfg := Load()
	assert.Equal(t, time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, float64(19), cfg.DefaultTaxRatePercent)
}
