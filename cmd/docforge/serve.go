package main

import (
	"github.com/spf13/cobra"

	"github.com/yungbote/docforge-backend/internal/app"
)

func serveCmd() *cobra.Command {
	var noPoller bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, generation poller and partition maintenance",
		Long: `Run the HTTP API together with the generation poller and, on Postgres,
the scheduled partition maintenance.

Examples:
  docforge serve
  HTTP_ADDR=:9090 docforge serve --no-poller`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()
			if noPoller {
				cfg.Poller.Enabled = false
			}

			a, err := app.New(cmd.Context(), log, cfg, Version)
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&noPoller, "no-poller", false, "serve the API without claiming generation requests")
	return cmd
}
