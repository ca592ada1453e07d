package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kevin07696/mpesa-checkout/internal/adapters/postgres"
)

func migrateCmd() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations",
		Long: `Apply the embedded schema migrations to DATABASE_URL (or DB_* settings).

Migrations are idempotent; running them twice is safe.

Examples:
  ordersctl migrate
  ordersctl migrate --list`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := postgres.MigrationNames()
			if err != nil {
				return err
			}
			if list {
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return nil
			}

			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			if err := postgres.RunMigrations(cmd.Context(), e.db.Pool()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migrations\n", len(names))
			return nil
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "print migration names without connecting")
	return cmd
}
