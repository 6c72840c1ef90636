package cmd

import (
	"context"
	"fmt"
	"time"

	mongoMigration "medislot/internal/migrations/mongo"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var timeout time.Duration

	c := &cobra.Command{
		Use:   "migrate",
		Short: "Create collections, validators and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := connect()
			defer cfg.GracefulShutdown()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			cfg.Log.Info("Starting Mongo migration job")
			db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
			if err := mongoMigration.RunMigration(ctx, db, cfg.Log); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Migration completed successfully.")
			return nil
		},
	}

	c.Flags().DurationVar(&timeout, "timeout", 120*time.Second, "overall migration deadline")
	return c
}
