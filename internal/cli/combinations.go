package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewCombinationsCommand creates the combinations command group.
func NewCombinationsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "combinations",
		Short: "Moderate individual catalog entries",
	}
	cmd.AddCommand(newCombinationsDeleteCommand(opts), newCombinationsAuditCommand(opts))
	return cmd
}

func newCombinationsDeleteCommand(opts *RootOptions) *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "delete <key>",
		Short: `Delete a combination by key, e.g. "fire|water"`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.Catalog.AdminDelete(ctx, args[0], actor)
			if err != nil {
				return operationError("delete failed", err)
			}
			return emit(cmd, opts, rec, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted %s (%s %s)\n", rec.Key, rec.ResultEmoji, rec.ResultName)
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "alchemyctl", "actor recorded in the audit log")
	return cmd
}

func newCombinationsAuditCommand(opts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent catalog maintenance events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			events, err := a.Catalog.RecentAudit(ctx, limit)
			if err != nil {
				return operationError("audit failed", err)
			}
			return emit(cmd, opts, events, func(w io.Writer) {
				for _, ev := range events {
					fmt.Fprintf(w, "%s  %-6s %-30s %s %s\n",
						ev.CreatedAt.Format("2006-01-02 15:04:05"), ev.Action, ev.Key, ev.Actor, ev.Detail)
				}
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of events")
	return cmd
}
