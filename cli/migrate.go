package cli

import (
	"fmt"

	"github.com/compozy/blockgate/engine/infra/postgres"
	"github.com/compozy/blockgate/pkg/config"
	"github.com/compozy/blockgate/pkg/logger"
	"github.com/spf13/cobra"
)

func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			dsn := postgres.ConfigFromApp(&config.FromContext(ctx).Database).DSN()
			if err := postgres.ApplyMigrationsWithLock(ctx, dsn); err != nil {
				return err
			}
			logger.FromContext(ctx).Info("Migrations applied")
			return nil
		},
	}
	cmd.Flags().String("db-url", "", "Postgres connection string")
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			dsn := postgres.ConfigFromApp(&config.FromContext(ctx).Database).DSN()
			version, err := postgres.MigrationStatus(ctx, dsn)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d\n", version)
			return err
		},
	})
	return cmd
}
