package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything read from the environment at startup. A .env file
// is loaded when present; real environment variables win over it.
type Config struct {
	Env  string
	Port string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers    []string
	KafkaTopicSales string

	JaegerEndpoint string

	AuthSecret     string
	AccessTokenTTL time.Duration

	PromoCacheTTL   time.Duration
	CatalogCacheTTL time.Duration

	DefaultTaxRatePercent float64
}

func Load() Config {
	_ = godotenv.Load()

	return Config{
		Env:  getEnv("ENV", "development"),
		Port: getEnv("PORT", "8080"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		KafkaBrokers:    splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopicSales: getEnv("KAFKA_TOPIC_SALES", "tiendita.sales"),

		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", ""),

		AuthSecret:     getEnv("AUTH_SECRET", "dev-secret-change-me"),
		AccessTokenTTL: time.Duration(getEnvInt("ACCESS_TOKEN_TTL_MINUTES", 60)) * time.Minute,

		PromoCacheTTL:   time.Duration(getEnvInt("PROMO_CACHE_TTL_SECONDS", 30)) * time.Second,
		CatalogCacheTTL: time.Duration(getEnvInt("CATALOG_CACHE_TTL_SECONDS", 60)) * time.Second,

		DefaultTaxRatePercent: getEnvFloat("DEFAULT_TAX_RATE_PERCENT", 19),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
