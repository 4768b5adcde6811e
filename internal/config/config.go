// Package config provides configuration management for playsink using
// Viper. It supports configuration from files, environment variables, and
// defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort       = 8080
	defaultServerTimeout    = 30 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
	defaultMaxOpenConns     = 25
	defaultMaxIdleConns     = 10
	defaultConnMaxIdleTime  = 30 * time.Minute
	defaultHTTPTimeout      = 60 * time.Second
	defaultRetryAttempts    = 3
	defaultRetryDelay       = 1 * time.Second
	defaultMinResumePos     = 5.0
	defaultSaveInterval     = 5.0
	defaultAssumedDuration  = 60.0
	defaultProbePrefixBytes = "1MiB"
	defaultMaxResponseBytes = "512MiB"
	defaultSegmentDuration  = 4.0
	defaultExecLoadTimeout  = 30 * time.Second
	defaultStorageKey       = "playsink-player-state"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Playback PlaybackConfig `mapstructure:"playback"`
	Remux    RemuxConfig    `mapstructure:"remux"`
	Executor ExecutorConfig `mapstructure:"executor"`
	History  HistoryConfig  `mapstructure:"history"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// PlaybackConfig holds session orchestration configuration.
type PlaybackConfig struct {
	// Autoplay attempts playback as soon as a session reaches ready.
	// An autoplay refusal is logged as a warning, never an error.
	Autoplay bool `mapstructure:"autoplay"`
	// HTTPTimeout bounds upstream fetches made on behalf of a session.
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	// RetryAttempts / RetryDelay configure upstream fetch retries.
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	// MaxResponseBytes caps upstream response bodies after decompression.
	// Supports human-readable values like "512MiB".
	MaxResponseBytes ByteSize `mapstructure:"max_response_bytes"`
}

// RemuxConfig holds remux pipeline configuration.
type RemuxConfig struct {
	// AssumedDurationSeconds is the progress-estimation fallback when the
	// true media duration is unknown.
	AssumedDurationSeconds float64 `mapstructure:"assumed_duration_seconds"`
	// SegmentDurationSeconds is the fixed segment length in segmented mode.
	SegmentDurationSeconds float64 `mapstructure:"segment_duration_seconds"`
	// ProbePrefixBytes is how much of the source the probe fetches when the
	// server supports range requests. Supports values like "1MiB".
	ProbePrefixBytes ByteSize `mapstructure:"probe_prefix_bytes"`
}

// ExecutorConfig holds transcode executor configuration.
type ExecutorConfig struct {
	// BinaryPath is the ffmpeg binary (empty = auto-detect on PATH).
	BinaryPath string `mapstructure:"binary_path"`
	// ScratchDir is the virtual-filesystem root (empty = os.TempDir).
	ScratchDir string `mapstructure:"scratch_dir"`
	// LoadTimeout bounds executor initialization.
	LoadTimeout time.Duration `mapstructure:"load_timeout"`
}

// HistoryConfig holds resume-history configuration.
type HistoryConfig struct {
	// ResumeWindow is how long a saved position stays eligible for resume.
	// Supports human-readable values like "7d" or "2w".
	ResumeWindow Duration `mapstructure:"resume_window"`
	// MinResumePosition is the minimum saved position (seconds) that is
	// worth resuming from.
	MinResumePosition float64 `mapstructure:"min_resume_position"`
	// SaveIntervalSeconds throttles position writes to one per elapsed
	// interval per URL.
	SaveIntervalSeconds float64 `mapstructure:"save_interval_seconds"`
	// StorageKey is the key the persisted state blob is stored under.
	StorageKey string `mapstructure:"storage_key"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and are
// prefixed with PLAYSINK_, using underscores for nesting.
// Example: PLAYSINK_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/playsink")
		v.AddConfigPath("$HOME/.playsink")
	}

	v.SetEnvPrefix("PLAYSINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - defaults and env vars apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, DecodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// Called before reading the config file so defaults are in place.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "playsink.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("playback.autoplay", true)
	v.SetDefault("playback.http_timeout", defaultHTTPTimeout)
	v.SetDefault("playback.retry_attempts", defaultRetryAttempts)
	v.SetDefault("playback.retry_delay", defaultRetryDelay)
	v.SetDefault("playback.max_response_bytes", defaultMaxResponseBytes)

	v.SetDefault("remux.assumed_duration_seconds", defaultAssumedDuration)
	v.SetDefault("remux.segment_duration_seconds", defaultSegmentDuration)
	v.SetDefault("remux.probe_prefix_bytes", defaultProbePrefixBytes)

	v.SetDefault("executor.binary_path", "")
	v.SetDefault("executor.scratch_dir", "")
	v.SetDefault("executor.load_timeout", defaultExecLoadTimeout)

	v.SetDefault("history.resume_window", "7d")
	v.SetDefault("history.min_resume_position", defaultMinResumePos)
	v.SetDefault("history.save_interval_seconds", defaultSaveInterval)
	v.SetDefault("history.storage_key", defaultStorageKey)
}

// DecodeHook returns the viper decoder option used for config unmarshaling.
// It extends the default hooks with TextUnmarshaler support so custom types
// like Duration decode from their string forms.
func DecodeHook() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	))
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Remux.AssumedDurationSeconds <= 0 {
		return fmt.Errorf("remux.assumed_duration_seconds must be positive")
	}
	if c.Remux.SegmentDurationSeconds <= 0 {
		return fmt.Errorf("remux.segment_duration_seconds must be positive")
	}
	if c.Remux.ProbePrefixBytes < 1 {
		return fmt.Errorf("remux.probe_prefix_bytes must be at least 1")
	}
	if c.Playback.MaxResponseBytes < 0 {
		return fmt.Errorf("playback.max_response_bytes must not be negative")
	}

	if c.History.ResumeWindow.Duration() <= 0 {
		return fmt.Errorf("history.resume_window must be positive")
	}
	if c.History.StorageKey == "" {
		return fmt.Errorf("history.storage_key is required")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
