// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// HTTP
	AllowedOrigins []string
	RateLimitRPM   int

	// Escrow settings
	EscrowTTLDays int // pending escrows expire after this many days

	// Payment simulator settings
	SimSeed       int64 // 0 seeds from the clock
	SimMinDelayMs int
	SimMaxDelayMs int

	// Tracing
	OTLPEndpoint string
}

const (
	DefaultPort          = "8080"
	DefaultEnv           = "development"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultRateLimit     = 120
	DefaultEscrowTTLDays = 30
	DefaultSimMinDelayMs = 200
	DefaultSimMaxDelayMs = 1500
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:          getEnv("PORT", DefaultPort),
		Env:           getEnv("ENV", DefaultEnv),
		LogLevel:      getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:     getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:   os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		RateLimitRPM:  int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
		EscrowTTLDays: int(getEnvInt64("ESCROW_TTL_DAYS", DefaultEscrowTTLDays)),
		SimSeed:       getEnvInt64("SIM_SEED", 0),
		SimMinDelayMs: int(getEnvInt64("SIM_MIN_DELAY_MS", DefaultSimMinDelayMs)),
		SimMaxDelayMs: int(getEnvInt64("SIM_MAX_DELAY_MS", DefaultSimMaxDelayMs)),
		OTLPEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitAndTrim(origins)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.EscrowTTLDays <= 0 {
		return fmt.Errorf("ESCROW_TTL_DAYS must be positive, got %d", c.EscrowTTLDays)
	}
	if c.SimMinDelayMs < 0 || c.SimMaxDelayMs < 0 {
		return fmt.Errorf("simulator delays must not be negative")
	}
	if c.SimMaxDelayMs < c.SimMinDelayMs {
		return fmt.Errorf("SIM_MAX_DELAY_MS (%d) must be >= SIM_MIN_DELAY_MS (%d)",
			c.SimMaxDelayMs, c.SimMinDelayMs)
	}
	if c.RateLimitRPM <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPM must be positive, got %d", c.RateLimitRPM)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be \"text\" or \"json\", got %q", c.LogFormat)
	}
	return nil
}

// EscrowTTL returns the escrow expiry as a duration.
func (c *Config) EscrowTTL() time.Duration {
	return time.Duration(c.EscrowTTLDays) * 24 * time.Hour
}

// SimMinDelay returns the simulator's minimum latency.
func (c *Config) SimMinDelay() time.Duration {
	return time.Duration(c.SimMinDelayMs) * time.Millisecond
}

// SimMaxDelay returns the simulator's maximum latency.
func (c *Config) SimMaxDelay() time.Duration {
	return time.Duration(c.SimMaxDelayMs) * time.Millisecond
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
