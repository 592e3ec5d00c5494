package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// NewCatalogCommand creates the catalog command group.
func NewCatalogCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Export or import the combination catalog as YAML",
	}
	cmd.AddCommand(newCatalogExportCommand(opts), newCatalogImportCommand(opts))
	return cmd
}

func newCatalogExportCommand(opts *RootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every combination to a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if output == "-" {
				return a.Backup.ExportToWriter(ctx, cmd.OutOrStdout())
			}
			if output == "" {
				output = fmt.Sprintf("catalog_%s.yaml", time.Now().Format("20060102_150405"))
			}
			if err := a.Backup.Export(ctx, output); err != nil {
				return WrapExitError(ExitCommandError, "export failed", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Catalog exported to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", `output file ("-" for stdout, default catalog_YYYYMMDD_HHMMSS.yaml)`)
	return cmd
}

func newCatalogImportCommand(opts *RootOptions) *cobra.Command {
	var (
		input string
		actor string
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Insert combinations from a YAML export; existing keys are kept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(input); err != nil {
				return WrapExitError(ExitCommandError, "cannot read input", err)
			}
			ctx := commandContext(cmd)
			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Backup.Import(ctx, input, actor)
			if err != nil {
				return operationError("import failed", err)
			}
			return emit(cmd, opts, res, func(w io.Writer) {
				fmt.Fprintf(w, "Imported %s: %d created, %d skipped, %d conflicts\n",
					input, res.Created, res.Skipped, len(res.Conflicts))
				for _, c := range res.Conflicts {
					fmt.Fprintf(w, "  conflict %s: kept %q, file has %q\n", c.Key, c.Existing, c.Requested)
				}
			})
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "YAML file to import (required)")
	_ = cmd.MarkFlagRequired("input")
	cmd.Flags().StringVar(&actor, "actor", "alchemyctl", "actor recorded in the audit log")
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
