package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/rajivgeraev/flippy-swap/internal/app"
)

// NewMigrateCommand применяет схему для настроенного STORAGE_DRIVER
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Long: `Apply the swap schema for the configured storage driver.

Running it again is safe: every statement is CREATE ... IF NOT EXISTS.

Example:
  STORAGE_DRIVER=sqlite SQLITE_PATH=./flippy.db swap-service migrate
  swap-service migrate --config ./config.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := rootOpts.load()
			if err != nil {
				return err
			}
			defer func() {
				_ = log.Sync()
			}()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return app.Migrate(ctx, *cfg, log)
		},
	}
}
