package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mochimo/internal/migrations"
)

var migrateCheckOnly bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Apply every embedded migration newer than the schema version recorded in
the database. All pending migrations run in a single transaction.

With --check the command only reports whether the schema is current and
exits non-zero when it is not.`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateCheckOnly, "check", false, "Only check the schema version")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, pool, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	runner, err := migrations.NewRunner(pool, log)
	if err != nil {
		return err
	}

	if migrateCheckOnly {
		if err := runner.Check(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema is current (version %d)\n", runner.Latest())
		return nil
	}

	applied, err := runner.Upgrade(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s), schema version %d\n", applied, runner.Latest())
	return nil
}
