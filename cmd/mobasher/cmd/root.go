// Package cmd implements the CLI commands for mobasher.
package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mobasher/mobasher/internal/config"
	"github.com/mobasher/mobasher/internal/observability"
	"github.com/mobasher/mobasher/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "mobasher",
	Short:   "Broadcast monitoring pipeline for Arabic news channels",
	Version: version.Short(),
	Long: `mobasher captures live TV channels with ffmpeg, slices them into
processing segments and hourly archives, and feeds the segments through
transcription, vision and dictionary-matching workers into TimescaleDB.

The CLI drives every piece of the pipeline: capture supervisors, stage
workers and schedulers, the read API, and operational maintenance.`,
	SilenceUsage:  true,
	SilenceErrors: false,
	// PersistentPreRunE is set in init() to avoid an initialization cycle.
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Set PersistentPreRunE here to avoid an initialization cycle
	// (initLogging references rootCmd.PersistentFlags).
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initLogging()
	}

	// These flags are NOT bound to viper. We check Changed() and only then
	// override the config/env values, preserving the priority:
	// CLI flag > env var > config > default.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., ./configs, /etc/mobasher, $HOME/.mobasher)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}

// loadConfig reads the full configuration for commands that need it.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// initLogging configures the default slog logger.
//
// Priority order (highest to lowest):
//  1. CLI flags (--log-level, --log-format), only if explicitly provided
//  2. Environment variables (MOBASHER_LOGGING_LEVEL, MOBASHER_LOGGING_FORMAT)
//  3. Config file values
//  4. Built-in defaults (info, json)
func initLogging() error {
	logCfg := config.LoggingConfig{Level: "info", Format: "json"}
	if cfg, err := loadConfig(); err == nil {
		logCfg = cfg.Logging
	}

	if rootCmd.PersistentFlags().Changed("log-level") {
		logCfg.Level, _ = rootCmd.PersistentFlags().GetString("log-level")
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		logCfg.Format, _ = rootCmd.PersistentFlags().GetString("log-format")
	}
	logCfg.Level = strings.ToLower(logCfg.Level)
	if logCfg.Level == "warning" {
		logCfg.Level = "warn"
	}

	logger := observability.NewLoggerWithWriter(logCfg, os.Stderr)
	observability.SetDefault(logger)
	return nil
}
