package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	CurrencyCode       string

	CatalogCacheTTL    time.Duration
	CatalogReadTimeout time.Duration
	PromoReadTimeout   time.Duration

	ReservationTTL        time.Duration
	RedemptionKeyPrefix   string
	RedemptionMaxRetries  int
	VendorStackingDefault bool

	IdempotencyTTL       time.Duration
	SettleRatePerMinute  int64
	RunMigrations        bool
	MigrationsPath       string
	SweepInterval        time.Duration
	SettleRetryInterval  time.Duration
	CircuitPromoMinReq   int
	CircuitPromoFailRate float64
	CircuitPromoOpenFor  time.Duration
	RetryBase            time.Duration
	RetryMaxAttempts     int
	RetryJitterPercent   float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		CurrencyCode:       valueOrDefault(k.String("CURRENCY_CODE"), "USD"),

		CatalogCacheTTL:    parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		CatalogReadTimeout: parseDuration(k.String("CATALOG_READ_TIMEOUT"), "2s"),
		PromoReadTimeout:   parseDuration(k.String("PROMO_READ_TIMEOUT"), "2s"),

		ReservationTTL:        parseDuration(k.String("COUPON_RESERVATION_TTL"), "15m"),
		RedemptionKeyPrefix:   valueOrDefault(k.String("REDEMPTION_KEY_PREFIX"), "redeem"),
		RedemptionMaxRetries:  parseInt(k.String("REDEMPTION_MAX_RETRIES"), 3),
		VendorStackingDefault: parseBool(k.String("VENDOR_DISCOUNT_COUPON_STACKABLE")),

		IdempotencyTTL:       parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		SettleRatePerMinute:  int64(parseInt(k.String("SETTLE_RATE_PER_MINUTE"), 60)),
		RunMigrations:        parseBool(k.String("RUN_MIGRATIONS")),
		MigrationsPath:       valueOrDefault(k.String("MIGRATIONS_PATH"), "file://migrations"),
		SweepInterval:        parseDuration(k.String("RESERVATION_SWEEP_INTERVAL"), "1m"),
		SettleRetryInterval:  parseDuration(k.String("SETTLE_RETRY_INTERVAL"), "5m"),
		CircuitPromoMinReq:   parseInt(k.String("CIRCUIT_PROMO_MIN_REQUESTS"), 10),
		CircuitPromoFailRate: parseFloat(k.String("CIRCUIT_PROMO_FAILURE_RATE"), 0.5),
		CircuitPromoOpenFor:  parseDuration(k.String("CIRCUIT_PROMO_OPEN_FOR"), "30s"),
		RetryBase:            parseDuration(k.String("RETRY_BASE"), "100ms"),
		RetryMaxAttempts:     parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryJitterPercent:   parseFloat(k.String("RETRY_JITTER_PERCENT"), 0.2),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
