package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pawtrail/internal/app"
	"pawtrail/internal/config"
	"pawtrail/internal/db"
)

func migrateCommand() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if url == "" {
				if err := config.ResolveSecrets(app.SecretProvider()); err != nil {
					return err
				}
				url = os.Getenv("DATABASE_URL")
			}
			if url == "" {
				return errors.New("no database: pass --database-url or set DATABASE_URL")
			}
			pool, err := db.Connect(cmd.Context(), url, 2)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := db.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return err
		},
	}
	cmd.Flags().StringVar(&url, "database-url", "", "Postgres URL (default $DATABASE_URL)")
	return cmd
}
