// Package cli implements alchemyctl, the operator command line for the
// combination engine.
package cli

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"dailyalchemy/internal/app"
	"dailyalchemy/internal/config"
	"dailyalchemy/internal/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	DBPath     string
	Verbose    bool
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for alchemyctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "alchemyctl",
		Short: "Daily Alchemy operator tool",
		Long:  "Manage the combination catalog, daily puzzles and schema of a Daily Alchemy deployment.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", os.Getenv("CONFIG_FILE"), "path to TOML config file")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "SQLite database path (overrides config)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewCatalogCommand(opts))
	cmd.AddCommand(NewPathsCommand(opts))
	cmd.AddCommand(NewPuzzlesCommand(opts))
	cmd.AddCommand(NewCombinationsCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFrom(o.ConfigFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if o.DBPath != "" {
		cfg.DatabaseType = "sqlite"
		cfg.DatabasePath = o.DBPath
	}
	return cfg, nil
}

func (o *RootOptions) logger() *logger.Logger {
	if !o.Verbose {
		return logger.NewNop()
	}
	l, err := logger.New("development", logger.Options{})
	if err != nil {
		return logger.NewNop()
	}
	return l
}

// openApp builds the full service graph. Callers must Close the result.
func (o *RootOptions) openApp(ctx context.Context) (*app.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, o.logger())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return a, nil
}
