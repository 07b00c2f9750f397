package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 1000, cfg.Runtime.WALRetention)
	assert.False(t, cfg.Observability.Enabled)
	assert.False(t, cfg.NATS.Enabled)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"bad store driver", func(c *Config) { c.Store.Driver = "postgres" }},
		{"sqlite without path", func(c *Config) { c.Store.Path = "" }},
		{"zero retention", func(c *Config) { c.Runtime.WALRetention = -1 }},
		{"zero buffer", func(c *Config) { c.Runtime.WALBuffer = -1 }},
		{"nats enabled without url", func(c *Config) { c.NATS.Enabled = true; c.NATS.URL = "" }},
		{"observability without endpoint", func(c *Config) { c.Observability.Enabled = true; c.Observability.Endpoint = "" }},
		{"bad sampling rate", func(c *Config) { c.Observability.Enabled = true; c.Observability.SamplingRate = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadWithFile_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadWithFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
}

func TestLoadWithFile_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
logging:
  level: debug
  format: console
store:
  driver: memory
runtime:
  wal_retention: 50
  shutdown_timeout: 3s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 50, cfg.Runtime.WALRetention)
	assert.Equal(t, 3*time.Second, cfg.Runtime.ShutdownTimeout.Duration())
	// Unspecified values keep defaults.
	assert.Equal(t, 256, cfg.Runtime.WALBuffer)
}

func TestLoadWithFile_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0600))

	t.Setenv("INTENTD_LOGGING_LEVEL", "warn")
	t.Setenv("INTENTD_RUNTIME_WAL_RETENTION", "25")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 25, cfg.Runtime.WALRetention)
}

func TestLoadWithFile_InvalidConfigRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: postgres\n"), 0600))

	_, err := LoadWithFile(path)
	assert.ErrorContains(t, err, "store.driver")
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandHome("~/.local/share/intentd/intentd.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".local/share/intentd/intentd.db"), got)

	got, err = ExpandHome("/var/lib/intentd.db")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/intentd.db", got)
}
