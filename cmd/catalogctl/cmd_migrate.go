package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ipu-results/result-engine/internal/infrastructure/persistence/postgres"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATE COMMAND
// ══════════════════════════════════════════════════════════════════════════════

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back or inspect catalog schema migrations",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMigration(cmd, opts, func(m *postgres.Migrator, cmd *cobra.Command) error {
					n, err := m.Migrate(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMigration(cmd, opts, func(m *postgres.Migrator, cmd *cobra.Command) error {
					if err := m.Rollback(cmd.Context()); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "rolled back one migration")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List migrations and whether they are applied",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMigration(cmd, opts, func(m *postgres.Migrator, cmd *cobra.Command) error {
					status, err := m.Status(cmd.Context())
					if err != nil {
						return err
					}
					return printMigrations(cmd, status)
				})
			},
		},
	)
	return cmd
}

func runMigration(cmd *cobra.Command, opts *rootOptions, fn func(*postgres.Migrator, *cobra.Command) error) error {
	ctx, cancel := opts.context(cmd)
	defer cancel()

	conn, _, err := opts.openStore(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	cmd.SetContext(ctx)
	return fn(postgres.NewMigrator(conn), cmd)
}

func printMigrations(cmd *cobra.Command, migrations []postgres.Migration) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED AT")
	for _, m := range migrations {
		applied := "pending"
		if m.IsApplied {
			applied = m.AppliedAt.UTC().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", m.Version, m.Name, applied)
	}
	return tw.Flush()
}
