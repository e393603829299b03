package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/subosito/gotenv"
)

type Config struct {
	Host string
	Port string
	Env  string

	DatabaseURL            string
	DatabaseMaxConnections int
	DatabaseMaxIdleTime    time.Duration

	LogLevel  string
	LogFormat string

	AdminTokenSecret string
	ServiceAPIKeys   []string

	// Delivery worker pool
	WorkerCount        int
	WorkerPollInterval time.Duration
	WorkerBatchSize    int
	ClaimLease         time.Duration

	// Delivery defaults, overridable per endpoint
	DeliveryTimeout    time.Duration
	DefaultMaxAttempts int
	DefaultRetryDelay  time.Duration

	SignatureHeader string
	TimestampHeader string
	UserAgent       string
}

func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = gotenv.Load()

	cfg := &Config{
		Host: getEnvString("HOST", "localhost"),
		Port: getEnvString("PORT", "8080"),
		Env:  getEnvString("ENV", "development"),

		DatabaseURL:            getEnvString("DATABASE_URL", "postgres://localhost/webhooks_dev?sslmode=disable"),
		DatabaseMaxConnections: getEnvInt("DATABASE_MAX_CONNECTIONS", 25),
		DatabaseMaxIdleTime:    getEnvDuration("DATABASE_MAX_IDLE_TIME", 15*time.Minute),

		LogLevel:  getEnvString("LOG_LEVEL", "info"),
		LogFormat: getEnvString("LOG_FORMAT", "json"),

		AdminTokenSecret: getEnvString("ADMIN_TOKEN_SECRET", ""),
		ServiceAPIKeys:   getEnvStringList("SERVICE_API_KEYS"),

		WorkerCount:        getEnvInt("WORKER_COUNT", 4),
		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", 5*time.Second),
		WorkerBatchSize:    getEnvInt("WORKER_BATCH_SIZE", 20),
		ClaimLease:         getEnvDuration("CLAIM_LEASE", 2*time.Minute),

		DeliveryTimeout:    getEnvDuration("DELIVERY_TIMEOUT", 30*time.Second),
		DefaultMaxAttempts: getEnvInt("DELIVERY_MAX_ATTEMPTS", 5),
		DefaultRetryDelay:  getEnvDuration("DELIVERY_RETRY_DELAY", time.Minute),

		SignatureHeader: getEnvString("SIGNATURE_HEADER", "X-Webhook-Signature"),
		TimestampHeader: getEnvString("TIMESTAMP_HEADER", "X-Webhook-Timestamp"),
		UserAgent:       getEnvString("USER_AGENT", "ispnexus-webhooks/1.0"),
	}

	if cfg.AdminTokenSecret == "" {
		return nil, fmt.Errorf("ADMIN_TOKEN_SECRET is required")
	}

	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("WORKER_COUNT must be at least 1")
	}

	return cfg, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvStringList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if durationValue, err := time.ParseDuration(value); err == nil {
			return durationValue
		}
	}
	return defaultValue
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
