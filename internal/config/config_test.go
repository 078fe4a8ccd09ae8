package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, "PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DefaultOrchestratorVersion, cfg.OrchestratorVersion)
	assert.Equal(t, int64(0), cfg.CatalogVersion)
	assert.Equal(t, DefaultOverheadRate, cfg.OverheadRate)
	assert.Equal(t, 0.35, cfg.LegacyMidMargin)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimitRPS)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "ORCHESTRATOR_VERSION", "2026.2-rc1")
	setEnv(t, "CATALOG_VERSION", "7")
	setEnv(t, "OVERHEAD_RATE", "0.22")
	setEnv(t, "LEGACY_HIGH_MARGIN", "0.28")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "2026.2-rc1", cfg.OrchestratorVersion)
	assert.Equal(t, int64(7), cfg.CatalogVersion)
	assert.Equal(t, 0.22, cfg.OverheadRate)
	assert.Equal(t, 0.28, cfg.LegacyHighMargin)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			OrchestratorVersion: "2026.1",
			OverheadRate:        0.15,
			LegacyLowThreshold:  10,
			LegacyHighThreshold: 100,
			LegacyLowMargin:     0.40,
			LegacyMidMargin:     0.35,
			LegacyHighMargin:    0.30,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid config", func(c *Config) {}, ""},
		{"missing orchestrator version", func(c *Config) { c.OrchestratorVersion = "" }, "ORCHESTRATOR_VERSION"},
		{"negative catalog version", func(c *Config) { c.CatalogVersion = -1 }, "CATALOG_VERSION"},
		{"overhead out of range", func(c *Config) { c.OverheadRate = 1.5 }, "OVERHEAD_RATE"},
		{"inverted thresholds", func(c *Config) { c.LegacyLowThreshold = 200 }, "LEGACY_LOW_THRESHOLD"},
		{"absurd margin", func(c *Config) { c.LegacyMidMargin = 3 }, "LEGACY_MID_MARGIN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnv(t *testing.T) {
	setEnv(t, "TEST_VAR", "custom_value")

	assert.Equal(t, "custom_value", getEnv("TEST_VAR", "default"))
	assert.Equal(t, "default", getEnv("NONEXISTENT_VAR", "default"))
}

func TestGetEnvInt64(t *testing.T) {
	setEnv(t, "TEST_INT", "42")
	setEnv(t, "TEST_INVALID", "not_a_number")

	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, int64(99), getEnvInt64("NONEXISTENT_VAR", 99))
	assert.Equal(t, int64(99), getEnvInt64("TEST_INVALID", 99)) // Falls back on parse error
}

func TestGetEnvFloat(t *testing.T) {
	setEnv(t, "TEST_FLOAT", "0.42")
	setEnv(t, "TEST_INVALID_F", "nope")

	assert.Equal(t, 0.42, getEnvFloat("TEST_FLOAT", 0))
	assert.Equal(t, 0.1, getEnvFloat("NONEXISTENT_VAR", 0.1))
	assert.Equal(t, 0.1, getEnvFloat("TEST_INVALID_F", 0.1))
}
