// Package cmd implements the CLI commands for playsink.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/playsink/playsink/internal/config"
	"github.com/playsink/playsink/internal/observability"
	"github.com/playsink/playsink/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "playsink",
	Short:   "Media playback backend selection and orchestration service",
	Version: version.Short(),
	Long: `playsink classifies stream URLs by container and protocol, picks the
right playback backend (native, adaptive, or remux-then-native), drives
an external executor to rewrite unplayable containers into fragmented
MP4, and remembers playback positions for resume.`,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., ./configs, /etc/playsink, $HOME/.playsink)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
}

// loadConfig loads configuration and applies CLI flag overrides.
// Priority: CLI flag > env var > config file > default; the flags are not
// bound to viper so an unset flag never shadows env or file values.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	overrideString(rootCmd.PersistentFlags(), "log-level", &cfg.Logging.Level)
	overrideString(rootCmd.PersistentFlags(), "log-format", &cfg.Logging.Format)
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
	if cfg.Logging.Level == "warning" {
		cfg.Logging.Level = "warn"
	}

	return cfg, nil
}

// overrideString copies a string flag into dst only when the user set it,
// so an unset flag never shadows env or file values.
func overrideString(fs *pflag.FlagSet, name string, dst *string) {
	if fs.Changed(name) {
		*dst, _ = fs.GetString(name)
	}
}

// overrideInt is overrideString for integer flags.
func overrideInt(fs *pflag.FlagSet, name string, dst *int) {
	if fs.Changed(name) {
		*dst, _ = fs.GetInt(name)
	}
}

// initLogger builds the redacting logger and installs it as the default.
func initLogger(cfg *config.Config) *slog.Logger {
	logger := observability.NewLoggerWithWriter(cfg.Logging, os.Stderr)
	observability.SetDefault(logger)
	return logger
}
