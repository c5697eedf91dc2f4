package main

import (
	"github.com/ProfessorAbraham/chereka-customer-support/internal/config"
	clog "github.com/ProfessorAbraham/chereka-customer-support/internal/log"

	"github.com/spf13/cobra"
)

var (
	configFile string
	dbDriver   string
	dbDSN      string
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "chatd",
	Short: "Real-time helpdesk chat server",
	Long: `chatd serves the live chat side of the helpdesk: customer support rooms,
agent claiming, message history and presence over WebSocket and HTTP.

Configuration comes from an optional YAML file and environment variables
(APP_PORT, DATABASE_DSN, JWT_SECRET, REDIS_ADDR, KAFKA_BROKERS, ...).`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVar(&dbDriver, "db-driver", "", "database driver: postgres or sqlite")
	rootCmd.PersistentFlags().StringVar(&dbDSN, "db-dsn", "", "database DSN")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd)
}

// loadConfig resolves configuration: file, then environment, then flags.
func loadConfig() (config.Config, error) {
	var cfg config.Config
	if configFile != "" {
		base, err := config.LoadFile(configFile)
		if err != nil {
			return cfg, err
		}
		cfg = config.Overlay(base)
	} else {
		cfg = config.Load()
	}
	if dbDriver != "" {
		cfg.DatabaseDriver = dbDriver
	}
	if dbDSN != "" {
		cfg.DatabaseDSN = dbDSN
	}
	if err := config.Validate(cfg); err != nil {
		return cfg, err
	}
	clog.Init(cfg.Env, cfg.LogLevel)
	return cfg, nil
}
