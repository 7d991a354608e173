// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/mbd888/ledgerlens/internal/riskmodel"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "json" or "text"

	// Ledger access
	LedgerRPCURL    string
	LedgerRPS       float64 // client-side throttle toward the public endpoint
	LedgerBurst     int
	LedgerTimeout   time.Duration
	RiskModelFile   string // optional YAML overlay on the built-in model
	MaxDepth        int    // 0 keeps the model's default
	MaxNodes        int
	AnalysisTimeout time.Duration

	// API
	RateLimitRPM int // per client IP, 0 disables
	RateBurst    int

	// Tracing
	OTLPEndpoint string // empty disables export
}

const (
	DefaultLedgerRPCURL    = "https://s1.ripple.com:51234/"
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultLedgerRPS       = 8
	DefaultLedgerBurst     = 4
	DefaultLedgerTimeout   = 20 * time.Second
	DefaultAnalysisTimeout = 5 * time.Minute
	DefaultRateLimitRPM    = 30
	DefaultRateBurst       = 5
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", DefaultPort),
		Env:             getEnv("ENV", DefaultEnv),
		LogLevel:        getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:       getEnv("LOG_FORMAT", DefaultLogFormat),
		LedgerRPCURL:    getEnv("LEDGER_RPC_URL", DefaultLedgerRPCURL),
		LedgerRPS:       getEnvFloat("LEDGER_RPS", DefaultLedgerRPS),
		LedgerBurst:     int(getEnvInt64("LEDGER_BURST", DefaultLedgerBurst)),
		LedgerTimeout:   getEnvDuration("LEDGER_TIMEOUT", DefaultLedgerTimeout),
		RiskModelFile:   os.Getenv("RISK_MODEL_FILE"),
		MaxDepth:        int(getEnvInt64("MAX_DEPTH", 0)),
		MaxNodes:        int(getEnvInt64("MAX_NODES", 0)),
		AnalysisTimeout: getEnvDuration("ANALYSIS_TIMEOUT", DefaultAnalysisTimeout),
		RateLimitRPM:    int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimitRPM)),
		RateBurst:       int(getEnvInt64("RATE_LIMIT_BURST", DefaultRateBurst)),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.LedgerRPCURL == "" {
		return fmt.Errorf("LEDGER_RPC_URL is required")
	}
	u, err := url.Parse(c.LedgerRPCURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("LEDGER_RPC_URL must be an http(s) URL, got %q", c.LedgerRPCURL)
	}
	if c.MaxDepth < 0 || c.MaxNodes < 0 {
		return fmt.Errorf("MAX_DEPTH and MAX_NODES must not be negative")
	}
	if c.LedgerRPS < 0 {
		return fmt.Errorf("LEDGER_RPS must not be negative")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return nil
}

// RiskModel returns the configured risk model: the file at RiskModelFile
// layered over the defaults, or the defaults alone.
func (c *Config) RiskModel() (*riskmodel.Model, error) {
	if c.RiskModelFile == "" {
		return riskmodel.Default(), nil
	}
	return riskmodel.LoadFile(c.RiskModelFile)
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
