package main

import (
	"github.com/spf13/cobra"

	"github.com/datanex/staycohort/internal/shared/database"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the results database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			db, err := database.New(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			return database.Migrate(cmd.Context(), db.Pool, log)
		},
	}
}
