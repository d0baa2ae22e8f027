package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/nirvagold/hermes/internal/config"
)

func parseDefaults(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		t.Fatalf("parse: %v", err)
	}
	return cfg
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := parseDefaults(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
	if cfg.RingSize&(cfg.RingSize-1) != 0 {
		t.Fatalf("default ring size %d is not a power of two", cfg.RingSize)
	}
}

func TestRingSizeMustBePowerOfTwo(t *testing.T) {
	cfg := parseDefaults(t)
	cfg.RingSize = 100
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for non-power-of-two ring size")
	}
}

func TestPollTimeoutBounds(t *testing.T) {
	cfg := parseDefaults(t)
	cfg.PollTimeout = 200 * time.Millisecond
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for poll timeout above 100ms")
	}
}

func TestInvalidLogLevelRejected(t *testing.T) {
	cfg := parseDefaults(t)
	cfg.LogLevel = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for invalid log level")
	}
}

func TestLoadReadsEnvironmentOverride(t *testing.T) {
	t.Setenv("HERMES_LISTEN_ADDR", "127.0.0.1:9999")
	t.Setenv("HERMES_RING_SIZE", "8192")

	// Load calls godotenv.Load() which looks for a .env file in the current
	// directory; ensure none interferes with this test's working directory.
	if _, err := os.Stat(".env"); err == nil {
		t.Skip(".env present in test working directory, skipping to avoid interference")
	}

	cfg, err := config.Load(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9999" {
		t.Fatalf("listen addr = %q, want 127.0.0.1:9999", cfg.ListenAddr)
	}
	if cfg.RingSize != 8192 {
		t.Fatalf("ring size = %d, want 8192", cfg.RingSize)
	}
}
