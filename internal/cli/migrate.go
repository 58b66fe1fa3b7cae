package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/bissquit/incident-impact/internal/pkg/postgres"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var (
		databaseURL string
		path        string
		steps       int
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
	}

	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("IMPACT_DATABASE__URL"), "PostgreSQL URL")
	cmd.PersistentFlags().StringVar(&path, "path", "migrations", "directory holding migration files")
	cmd.PersistentFlags().IntVar(&steps, "steps", 0, "number of migrations to apply, 0 for all")

	run := func(direction postgres.Direction) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			if databaseURL == "" {
				return errors.New("--database-url or IMPACT_DATABASE__URL is required")
			}
			if steps < 0 {
				return errors.New("--steps must not be negative")
			}

			version, err := postgres.Migrate(databaseURL, path, direction, steps)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d\n", version)
			return nil
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE:  run(postgres.Up),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE:  run(postgres.Down),
	})

	return cmd
}
