// Package config handles application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port    int
	BaseURL string

	// Database
	DatabaseURL string

	// Authentication
	JWTSecret    string
	JWTIssuer    string // Optional; checked when set
	AuthDisabled bool   // Development only: trust X-User-ID / X-User-Role headers

	// CORS
	CORSOrigins []string

	// Billing engine
	Billing BillingConfig

	// Event delivery
	RedisURL             string        // Optional cross-process relay
	SSEHeartbeatInterval time.Duration // Keep-alive comment interval on /events
	SSEMaxStreamsPerUser int           // Concurrent event streams per user

	// Object Storage (S3-compatible) for session receipts
	StorageEnabled   bool
	StorageEndpoint  string // AWS_ENDPOINT_URL_S3
	StorageAccessKey string // AWS_ACCESS_KEY_ID
	StorageSecretKey string // AWS_SECRET_ACCESS_KEY
	StorageBucket    string // Bucket name (one per environment)
	StorageRegion    string // Region (auto for Tigris)

	// Metrics
	OTLPEndpoint string // OTEL_EXPORTER_OTLP_ENDPOINT; metrics export disabled when empty
	OTLPInsecure bool   // OTEL_EXPORTER_OTLP_INSECURE; plaintext gRPC to the collector

	// Rate limiting
	RateLimitPerMinute int // Per-user API requests per minute

	ShutdownTimeout time.Duration
	IdleTimeout     time.Duration // Scale-to-zero: stop after this long idle; 0 disables
}

// Load reads configuration from environment variables. A .env file is read
// first when present (DOTENV_PATH or ./.env); real environment variables win.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:         getEnvInt("PORT", 8080),
		BaseURL:      getEnv("BASE_URL", "http://localhost:8080"),
		DatabaseURL:  getEnv("DATABASE_URL", "file:consult.db"),
		JWTSecret:    getEnv("JWT_SECRET", ""),
		JWTIssuer:    getEnv("JWT_ISSUER", ""),
		AuthDisabled: getEnvBool("AUTH_DISABLED", false),

		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),

		Billing: BillingConfig{
			TickInterval: getEnvDuration("BILLING_TICK_INTERVAL", 15*time.Second),
			GracePeriod:  getEnvDuration("BILLING_GRACE_PERIOD", 30*time.Second),
			MaxRetries:   getEnvInt("BILLING_MAX_RETRIES", 3),
			BackoffBase:  getEnvDuration("BILLING_BACKOFF_BASE", 100*time.Millisecond),
			StaleAfter:   getEnvDuration("BILLING_STALE_SESSION_AFTER", 2*time.Minute),
		},

		RedisURL:             getEnv("REDIS_URL", ""),
		SSEHeartbeatInterval: getEnvDuration("SSE_HEARTBEAT_INTERVAL", 15*time.Second),
		SSEMaxStreamsPerUser: getEnvInt("SSE_MAX_STREAMS_PER_USER", 4),

		StorageEndpoint:  getEnv("AWS_ENDPOINT_URL_S3", ""),
		StorageAccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		StorageSecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		StorageBucket:    getEnvWithFallback("BUCKET_NAME", "STORAGE_BUCKET", ""),
		StorageRegion:    getEnv("AWS_REGION", "auto"),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPInsecure: getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", false),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		IdleTimeout:        getEnvDuration("IDLE_TIMEOUT", 0),
	}

	// Enable storage if bucket is configured
	cfg.StorageEnabled = cfg.StorageBucket != "" && cfg.StorageEndpoint != ""

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" && !c.AuthDisabled {
		errs = append(errs, errors.New("JWT_SECRET is required unless AUTH_DISABLED=true"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if c.SSEMaxStreamsPerUser <= 0 {
		errs = append(errs, errors.New("SSE_MAX_STREAMS_PER_USER must be positive"))
	}
	if err := c.Billing.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func loadDotEnv() error {
	path := getEnv("DOTENV_PATH", "")
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	// godotenv.Load never overrides variables already set.
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("15s") or bare seconds ("15").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

func getEnvWithFallback(primary, fallback, defaultValue string) string {
	if value := os.Getenv(primary); value != "" {
		return value
	}
	if value := os.Getenv(fallback); value != "" {
		return value
	}
	return defaultValue
}
