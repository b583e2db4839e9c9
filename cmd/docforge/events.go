package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/yungbote/docforge-backend/internal/notify"
)

func eventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Print generation lifecycle events from Redis as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()

			enc := json.NewEncoder(cmd.OutOrStdout())
			return notify.Subscribe(cmd.Context(), log, cfg.Redis, func(ev notify.Event) {
				if err := enc.Encode(ev); err != nil {
					log.Warn("write event", "error", err)
				}
			})
		},
	}
}
