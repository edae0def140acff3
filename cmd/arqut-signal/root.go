package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tphan267/arqut-signal/pkg/config"
	"github.com/tphan267/arqut-signal/pkg/logger"
	"github.com/tphan267/arqut-signal/pkg/utils"
)

var (
	flagConfig   string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:     "arqut-signal",
	Short:   "Room signaling client and relay for WebRTC peer sessions",
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", utils.Env("ARQUT_CONFIG", "config.yaml"), "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "loglevel", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(joinCmd, relayCmd, eventsCmd)
}

// loadConfig reads the configuration and builds a logger at its level
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(version, flagConfig, flagLogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, appLogger, nil
}

func newLogger(level string) (*logger.Logger, error) {
	parsed, err := logger.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	appLogger := logger.NewDefault("ARQUT")
	appLogger.SetLevel(parsed)
	return appLogger, nil
}
