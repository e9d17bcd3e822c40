package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/fitlink/pkg/config"
)

// loadConfig reads the config named by --config and applies the global
// flags on top of it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("simulate") {
		cfg.Simulate, _ = cmd.Flags().GetBool("simulate")
	}
	return cfg, nil
}

// configureLogger creates a logger with the appropriate log level based on flags.
// --log-level takes precedence over --verbose, which takes precedence over
// the configured level. Returns an error if the log-level is invalid.
func configureLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	level := cfg.LogLevel

	if logLevelStr, _ := cmd.Flags().GetString("log-level"); logLevelStr != "" {
		if _, err := config.ParseLogLevel(logLevelStr); err != nil {
			return nil, err
		}
		level = logLevelStr
	} else if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = logrus.DebugLevel.String()
	}

	c := *cfg
	c.LogLevel = level
	logger := c.NewLogger()
	logger.SetOutput(cmd.ErrOrStderr())
	return logger, nil
}

// setup loads the config and builds the logger for a command.
func setup(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
