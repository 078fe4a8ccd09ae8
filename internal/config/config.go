// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)
	RedisURL    string // Distributed cache tier (optional)

	// Pricing
	OrchestratorVersion string // Tag stamped on every pipeline-priced quote
	CatalogVersion      int64  // Pins the cost-book version; 0 = latest active
	OverheadRate        float64
	InspectionRate      float64 // $/inspection-minute

	// Legacy fallback margin policy
	LegacyLowThreshold  float64
	LegacyHighThreshold float64
	LegacyLowMargin     float64
	LegacyMidMargin     float64
	LegacyHighMargin    float64

	// Collaborator services (optional; static estimators when unset)
	GeometryURL  string
	FinishingURL string

	// Tax
	StripeAPIKey string // Enables Stripe Tax; zero-tax calculator when unset

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint; tracing disabled when unset

	// Security
	RateLimitRPS int
	AdminSecret  string // Admin API secret
}

const (
	DefaultPort                = "8080"
	DefaultEnv                 = "development"
	DefaultLogLevel            = "info"
	DefaultOrchestratorVersion = "2026.1"
	DefaultOverheadRate        = 0.15
	DefaultInspectionRate      = 1.20
	DefaultRateLimit           = 100
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:         os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		RedisURL:            os.Getenv("REDIS_URL"),
		OrchestratorVersion: getEnv("ORCHESTRATOR_VERSION", DefaultOrchestratorVersion),
		CatalogVersion:      getEnvInt64("CATALOG_VERSION", 0),
		OverheadRate:        getEnvFloat("OVERHEAD_RATE", DefaultOverheadRate),
		InspectionRate:      getEnvFloat("INSPECTION_RATE_PER_MIN", DefaultInspectionRate),
		LegacyLowThreshold:  getEnvFloat("LEGACY_LOW_THRESHOLD", 10),
		LegacyHighThreshold: getEnvFloat("LEGACY_HIGH_THRESHOLD", 100),
		LegacyLowMargin:     getEnvFloat("LEGACY_LOW_MARGIN", 0.40),
		LegacyMidMargin:     getEnvFloat("LEGACY_MID_MARGIN", 0.35),
		LegacyHighMargin:    getEnvFloat("LEGACY_HIGH_MARGIN", 0.30),
		GeometryURL:         os.Getenv("GEOMETRY_URL"),
		FinishingURL:        os.Getenv("FINISHING_URL"),
		StripeAPIKey:        os.Getenv("STRIPE_API_KEY"),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPS:        int(getEnvInt64("RATE_LIMIT_RPS", int64(DefaultRateLimit))),
		AdminSecret:         os.Getenv("ADMIN_SECRET"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all configuration is sane
func (c *Config) Validate() error {
	if c.OrchestratorVersion == "" {
		return fmt.Errorf("ORCHESTRATOR_VERSION must not be empty")
	}
	if c.CatalogVersion < 0 {
		return fmt.Errorf("CATALOG_VERSION must not be negative")
	}
	if c.OverheadRate < 0 || c.OverheadRate > 1 {
		return fmt.Errorf("OVERHEAD_RATE must be in [0,1]")
	}
	if c.LegacyLowThreshold >= c.LegacyHighThreshold {
		return fmt.Errorf("LEGACY_LOW_THRESHOLD must be below LEGACY_HIGH_THRESHOLD")
	}
	for name, m := range map[string]float64{
		"LEGACY_LOW_MARGIN":  c.LegacyLowMargin,
		"LEGACY_MID_MARGIN":  c.LegacyMidMargin,
		"LEGACY_HIGH_MARGIN": c.LegacyHighMargin,
	} {
		if m < 0 || m > 2 {
			return fmt.Errorf("%s must be in [0,2]", name)
		}
	}
	return nil
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
