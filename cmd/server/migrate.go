package main

import (
	"github.com/ProfessorAbraham/chereka-customer-support/internal/db"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the chat schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		gdb, err := db.Connect(cfg.DatabaseDriver, cfg.DatabaseDSN)
		if err != nil {
			return err
		}
		if err := db.Migrate(gdb); err != nil {
			return err
		}
		log.Info().Str("driver", cfg.DatabaseDriver).Msg("schema migrated")
		return nil
	},
}
