// Package config loads Hermes's runtime configuration from environment
// variables (optionally backed by a .env file), following the same
// caarlos0/env + godotenv pattern the rest of this lineage of brokers uses.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds every tunable Hermes needs at startup. Field names mirror
// spec.md's module parameters; env tags follow the HERMES_ prefix.
type Config struct {
	ListenAddr string `env:"HERMES_LISTEN_ADDR" envDefault:":9999"`

	ReadBufferSize  int `env:"HERMES_READ_BUFFER_SIZE" envDefault:"131072"`
	WriteBufferSize int `env:"HERMES_WRITE_BUFFER_SIZE" envDefault:"131072"`

	RingSize      int `env:"HERMES_RING_SIZE" envDefault:"65536"`
	DropThreshold int `env:"HERMES_DROP_THRESHOLD" envDefault:"1024"`

	PollTimeout      time.Duration `env:"HERMES_POLL_TIMEOUT" envDefault:"100us"`
	IdleSleep        time.Duration `env:"HERMES_IDLE_SLEEP" envDefault:"50us"`
	HeartbeatTimeout time.Duration `env:"HERMES_HEARTBEAT_TIMEOUT" envDefault:"30s"`

	MaxAcceptRate  float64 `env:"HERMES_MAX_ACCEPT_RATE" envDefault:"500"`
	MaxAcceptBurst int     `env:"HERMES_MAX_ACCEPT_BURST" envDefault:"100"`

	MmapEnabled  bool   `env:"HERMES_MMAP_ENABLED" envDefault:"true"`
	MmapPath     string `env:"HERMES_MMAP_PATH" envDefault:"hermes_data.dat"`
	MmapCapacity int64  `env:"HERMES_MMAP_CAPACITY" envDefault:"67108864"` // 64 MiB

	LogLevel  string `env:"HERMES_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"HERMES_LOG_FORMAT" envDefault:"json"`

	MetricsAddr string `env:"HERMES_METRICS_ADDR" envDefault:":9090"` // empty disables the metrics server

	Environment string `env:"HERMES_ENVIRONMENT" envDefault:"development"`
}

// Load reads a .env file if present, then parses environment variables into
// a Config and validates it. Priority: real env vars > .env file > defaults,
// matching env.Parse's own precedence.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	} else if logger != nil {
		logger.Info().Msg("loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

// Validate checks Config for internally-consistent, spec-legal values.
// RingSize must be a power of two (internal/ring.New panics otherwise), so
// Validate is the one place that invariant is enforced before the reactor
// ever starts.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("HERMES_LISTEN_ADDR is required")
	}
	if c.ReadBufferSize <= 0 {
		return fmt.Errorf("HERMES_READ_BUFFER_SIZE must be > 0, got %d", c.ReadBufferSize)
	}
	if c.WriteBufferSize <= 0 {
		return fmt.Errorf("HERMES_WRITE_BUFFER_SIZE must be > 0, got %d", c.WriteBufferSize)
	}
	if c.RingSize <= 0 || c.RingSize&(c.RingSize-1) != 0 {
		return fmt.Errorf("HERMES_RING_SIZE must be a power of two > 0, got %d", c.RingSize)
	}
	if c.DropThreshold <= 0 {
		return fmt.Errorf("HERMES_DROP_THRESHOLD must be > 0, got %d", c.DropThreshold)
	}
	if c.MaxAcceptRate <= 0 {
		return fmt.Errorf("HERMES_MAX_ACCEPT_RATE must be > 0, got %f", c.MaxAcceptRate)
	}
	if c.MaxAcceptBurst <= 0 {
		return fmt.Errorf("HERMES_MAX_ACCEPT_BURST must be > 0, got %d", c.MaxAcceptBurst)
	}
	if c.PollTimeout < 0 || c.PollTimeout > 100*time.Millisecond {
		return fmt.Errorf("HERMES_POLL_TIMEOUT must be within [0, 100ms], got %s", c.PollTimeout)
	}
	if c.MmapEnabled && c.MmapCapacity <= 0 {
		return fmt.Errorf("HERMES_MMAP_CAPACITY must be > 0 when persistence is enabled, got %d", c.MmapCapacity)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("HERMES_LOG_LEVEL must be one of debug, info, warn, error (got %q)", c.LogLevel)
	}
	validLogFormats := map[string]bool{"json": true, "console": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("HERMES_LOG_FORMAT must be one of json, console (got %q)", c.LogFormat)
	}
	return nil
}

// LogFields logs the effective configuration via structured logging, once,
// at startup.
func (c *Config) LogFields(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Str("listen_addr", c.ListenAddr).
		Int("read_buffer_size", c.ReadBufferSize).
		Int("write_buffer_size", c.WriteBufferSize).
		Int("ring_size", c.RingSize).
		Int("drop_threshold", c.DropThreshold).
		Float64("max_accept_rate", c.MaxAcceptRate).
		Int("max_accept_burst", c.MaxAcceptBurst).
		Dur("poll_timeout", c.PollTimeout).
		Dur("idle_sleep", c.IdleSleep).
		Dur("heartbeat_timeout", c.HeartbeatTimeout).
		Bool("mmap_enabled", c.MmapEnabled).
		Str("mmap_path", c.MmapPath).
		Int64("mmap_capacity", c.MmapCapacity).
		Str("metrics_addr", c.MetricsAddr).
		Msg("configuration loaded")
}
