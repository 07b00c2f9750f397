// Package config provides configuration loading for intentd.
package config

import (
	"fmt"
	"time"
)

// Config is the complete daemon configuration.
type Config struct {
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
	Store         StoreConfig         `koanf:"store"`
	NATS          NATSConfig          `koanf:"nats"`
	Runtime       RuntimeConfig       `koanf:"runtime"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ObservabilityConfig controls OTLP trace and metric export.
type ObservabilityConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Endpoint       string   `koanf:"endpoint"`
	ServiceName    string   `koanf:"service_name"`
	ServiceVersion string   `koanf:"service_version"`
	Insecure       bool     `koanf:"insecure"`
	SamplingRate   float64  `koanf:"sampling_rate"`
	ExportInterval Duration `koanf:"export_interval"`
}

// StoreConfig selects the durable backend.
type StoreConfig struct {
	// Driver is sqlite or memory.
	Driver string `koanf:"driver"`
	// Path is the SQLite database file; ignored for memory.
	Path string `koanf:"path"`
}

// NATSConfig controls the optional live event mirror.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
}

// RuntimeConfig tunes the execution core.
type RuntimeConfig struct {
	// WALRetention caps WAL events kept per tenant.
	WALRetention int `koanf:"wal_retention"`
	// WALBuffer bounds the in-process fallback buffer.
	WALBuffer int `koanf:"wal_buffer"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// NewDefaultConfig returns the built-in defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Observability: ObservabilityConfig{
			Enabled:        false,
			Endpoint:       "localhost:4317",
			ServiceName:    "intentd",
			ServiceVersion: "0.1.0",
			Insecure:       true,
			SamplingRate:   1.0,
			ExportInterval: Duration(15 * time.Second),
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "~/.local/share/intentd/intentd.db",
		},
		NATS: NATSConfig{
			Enabled: false,
			URL:     "nats://localhost:4222",
		},
		Runtime: RuntimeConfig{
			WALRetention:    1000,
			WALBuffer:       256,
			ShutdownTimeout: Duration(10 * time.Second),
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	if c.Observability.Enabled {
		if c.Observability.Endpoint == "" {
			return fmt.Errorf("observability.endpoint is required when observability is enabled")
		}
		if c.Observability.ServiceName == "" {
			return fmt.Errorf("observability.service_name is required when observability is enabled")
		}
		if c.Observability.SamplingRate < 0 || c.Observability.SamplingRate > 1 {
			return fmt.Errorf("observability.sampling_rate must be between 0 and 1, got %f", c.Observability.SamplingRate)
		}
		if c.Observability.ExportInterval.Duration() <= 0 {
			return fmt.Errorf("observability.export_interval must be positive")
		}
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("store.driver must be sqlite or memory, got %q", c.Store.Driver)
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats is enabled")
	}

	if c.Runtime.WALRetention <= 0 {
		return fmt.Errorf("runtime.wal_retention must be positive, got %d", c.Runtime.WALRetention)
	}
	if c.Runtime.WALBuffer <= 0 {
		return fmt.Errorf("runtime.wal_buffer must be positive, got %d", c.Runtime.WALBuffer)
	}
	if c.Runtime.ShutdownTimeout.Duration() <= 0 {
		return fmt.Errorf("runtime.shutdown_timeout must be positive")
	}
	return nil
}

// applyDefaults fills in zero values from the defaults.
func applyDefaults(cfg *Config) {
	def := NewDefaultConfig()

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}

	if cfg.Observability.Endpoint == "" {
		cfg.Observability.Endpoint = def.Observability.Endpoint
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = def.Observability.ServiceName
	}
	if cfg.Observability.ServiceVersion == "" {
		cfg.Observability.ServiceVersion = def.Observability.ServiceVersion
	}
	if cfg.Observability.SamplingRate == 0 {
		cfg.Observability.SamplingRate = def.Observability.SamplingRate
	}
	if cfg.Observability.ExportInterval == 0 {
		cfg.Observability.ExportInterval = def.Observability.ExportInterval
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = def.Store.Driver
	}
	if cfg.Store.Path == "" && cfg.Store.Driver == "sqlite" {
		cfg.Store.Path = def.Store.Path
	}

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = def.NATS.URL
	}

	if cfg.Runtime.WALRetention == 0 {
		cfg.Runtime.WALRetention = def.Runtime.WALRetention
	}
	if cfg.Runtime.WALBuffer == 0 {
		cfg.Runtime.WALBuffer = def.Runtime.WALBuffer
	}
	if cfg.Runtime.ShutdownTimeout == 0 {
		cfg.Runtime.ShutdownTimeout = def.Runtime.ShutdownTimeout
	}
}
