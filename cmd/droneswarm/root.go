package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"droneswarm/internal/config"
	"droneswarm/internal/logging"
)

var (
	configPath string
	schemaPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:          "droneswarm",
	Short:        "Leader/follower drone swarm controller",
	Long:         "droneswarm connects to a fleet of vehicles and keeps followers in formation around a leader, driven by commands over TCP, websocket or scenario files.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to swarm configuration YAML (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "", "Path to CUE schema file (built-in schema when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	rootCmd.AddCommand(serveCmd, runCmd, replayCmd, validateCmd, scenariosCmd, dashboardCmd)
}

// loadConfig reads the configuration and builds the process logger from it.
func loadConfig(ctx context.Context) (*config.Config, context.Context, error) {
	cfg, err := config.Load(configPath, schemaPath)
	if err != nil {
		return nil, ctx, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	log := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	slog.SetDefault(log)
	return cfg, logging.NewContext(ctx, log), nil
}
