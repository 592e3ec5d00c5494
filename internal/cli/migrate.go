package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"dailyalchemy/internal/database"
)

// NewMigrateCommand creates the migrate command group.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect schema migrations",
	}
	cmd.AddCommand(
		newMigrateStep(opts, "up", "Apply all pending migrations", (*database.Migrator).Up),
		newMigrateStep(opts, "down", "Roll back every migration", (*database.Migrator).Down),
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(commandContext(cmd), opts, func(m *database.Migrator) error {
					version, dirty, err := m.Version()
					if err != nil {
						return WrapExitError(ExitCommandError, "failed to read version", err)
					}
					out := map[string]any{"version": version, "dirty": dirty}
					return emit(cmd, opts, out, func(w io.Writer) {
						fmt.Fprintf(w, "version %d (dirty: %t)\n", version, dirty)
					})
				})
			},
		},
	)
	return cmd
}

func newMigrateStep(opts *RootOptions, use, short string, step func(*database.Migrator) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(commandContext(cmd), opts, func(m *database.Migrator) error {
				if err := step(m); err != nil {
					return WrapExitError(ExitCommandError, "migrate "+use+" failed", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: ok\n", use)
				return nil
			})
		},
	}
}

// withMigrator opens the database without applying migrations.
func withMigrator(ctx context.Context, opts *RootOptions, fn func(m *database.Migrator) error) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	db, err := database.InitializeWithConfig(ctx, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer db.Close()

	m, err := db.NewMigrator(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create migrator", err)
	}
	defer m.Close()
	return fn(m)
}
