package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/docforge-backend/internal/app"
)

func partitionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "partitions",
		Short: "Run one partition maintenance pass and exit",
		Long: `Create the monthly partitions inside the lookahead window and drop the ones
older than the retention window, for every partitioned table.

The pass is idempotent. A table that fails is reported and does not stop the
others.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()

			rep, err := app.RunPartitions(cmd.Context(), log, cfg)
			for _, name := range rep.Created {
				fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", name)
			}
			for _, name := range rep.Dropped {
				fmt.Fprintf(cmd.OutOrStdout(), "dropped %s\n", name)
			}
			return err
		},
	}
}
