package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg, DecodeHook()))
	return &cfg
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := defaultConfig(t)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 7*24*time.Hour, cfg.History.ResumeWindow.Duration())
	assert.Equal(t, 5.0, cfg.History.MinResumePosition)
	assert.Equal(t, 60.0, cfg.Remux.AssumedDurationSeconds)
	assert.Equal(t, 4.0, cfg.Remux.SegmentDurationSeconds)
	assert.Equal(t, MiB, cfg.Remux.ProbePrefixBytes)
	assert.Equal(t, 512*MiB, cfg.Playback.MaxResponseBytes)
	assert.True(t, cfg.Playback.Autoplay)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
logging:
  level: debug
  format: text
history:
  resume_window: 2w
  storage_key: custom-key
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 14*24*time.Hour, cfg.History.ResumeWindow.Duration())
	assert.Equal(t, "custom-key", cfg.History.StorageKey)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad driver", func(c *Config) { c.Database.Driver = "oracle" }},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"zero assumed duration", func(c *Config) { c.Remux.AssumedDurationSeconds = 0 }},
		{"zero segment duration", func(c *Config) { c.Remux.SegmentDurationSeconds = 0 }},
		{"zero probe prefix", func(c *Config) { c.Remux.ProbePrefixBytes = 0 }},
		{"zero resume window", func(c *Config) { c.History.ResumeWindow = 0 }},
		{"empty storage key", func(c *Config) { c.History.StorageKey = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestServerAddress(t *testing.T) {
	c := ServerConfig{Host: "127.0.0.1", Port: 8123}
	assert.Equal(t, "127.0.0.1:8123", c.Address())
}
