package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"distributor.app/internal/migrate"
	"distributor.app/internal/store/pg"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect the embedded PostgreSQL schema.",
	}
	withMigrator := func(action func(cmd *cobra.Command, m *migrate.Migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			dsn, err := requireDSN()
			if err != nil {
				return err
			}
			m, err := migrate.New(dsn)
			if err != nil {
				return err
			}
			defer m.Close()
			return action(cmd, m)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations.",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(cmd *cobra.Command, m *migrate.Migrator) error {
				ctx, cancel := commandContext(cmd)
				defer cancel()
				return m.Up(ctx)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration.",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(cmd *cobra.Command, m *migrate.Migrator) error {
				ctx, cancel := commandContext(cmd)
				defer cancel()
				return m.Down(ctx)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the applied schema version.",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(cmd *cobra.Command, m *migrate.Migrator) error {
				st, err := m.Status()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch {
				case !st.Applied:
					fmt.Fprintf(out, "no migrations applied (latest %d)\n", st.Latest)
				case st.Dirty:
					fmt.Fprintf(out, "version %d of %d (dirty)\n", st.Version, st.Latest)
				default:
					fmt.Fprintf(out, "version %d of %d\n", st.Version, st.Latest)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Insert the default roles.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				dsn, err := requireDSN()
				if err != nil {
					return err
				}
				st, err := pg.Open(dsn)
				if err != nil {
					return fmt.Errorf("open db: %w", err)
				}
				defer st.Close()
				ctx, cancel := commandContext(cmd)
				defer cancel()
				return migrate.Seed(ctx, st.DB())
			},
		},
	)
	return cmd
}
