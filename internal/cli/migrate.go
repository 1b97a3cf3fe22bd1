package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/echodoc-ai/echodoc/internal/dotenv"
	"github.com/echodoc-ai/echodoc/pkg/sessions/migrations"
	"github.com/echodoc-ai/echodoc/pkg/sessions/postgres"
)

var errNoDatabase = errors.New("database url is required (--database-url or ECHODOC_DATABASE_URL)")

func newMigrateCmd() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the session store schema",
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Postgres URL (default: ECHODOC_DATABASE_URL)")

	resolve := func() (string, error) {
		if err := dotenv.LoadDefaults(); err != nil {
			return "", err
		}
		url := strings.TrimSpace(databaseURL)
		if url == "" {
			url = envOrDefault("ECHODOC_DATABASE_URL", "")
		}
		if url == "" {
			return "", errNoDatabase
		}
		return url, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := resolve()
			if err != nil {
				return err
			}
			store, err := postgres.Open(cmd.Context(), url)
			if err != nil {
				return err
			}
			defer store.Close()
			db := store.DB()
			defer db.Close()

			version, err := migrations.Up(cmd.Context(), db, stderrLogger(cmd))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := resolve()
			if err != nil {
				return err
			}
			store, err := postgres.Open(cmd.Context(), url)
			if err != nil {
				return err
			}
			defer store.Close()
			db := store.DB()
			defer db.Close()

			if err := migrations.Down(cmd.Context(), db); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "rolled back one migration")
			return err
		},
	})

	return cmd
}
