package main

import (
	"github.com/spf13/cobra"

	"github.com/yungbote/docforge-backend/internal/app"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and current partitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()
			return app.RunMigrations(cmd.Context(), log, cfg)
		},
	}
}
