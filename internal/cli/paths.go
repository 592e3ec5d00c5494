package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"dailyalchemy/internal/models"
)

// NewPathsCommand creates the paths command group.
func NewPathsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "paths",
		Short: "Plan and save combination paths",
	}
	cmd.AddCommand(newPathsGenerateCommand(opts), newPathsSaveCommand(opts))
	return cmd
}

func newPathsGenerateCommand(opts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "generate <target>",
		Short: "Find paths from the starter elements to a target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Paths.Generate(ctx, args[0], limit)
			if err != nil {
				return operationError("path generation failed", err)
			}
			return emit(cmd, opts, res, func(w io.Writer) {
				fmt.Fprintf(w, "%d path(s) to %s over %d combinations\n", len(res.Paths), args[0], res.ExistingCombinationsCount)
				for i, p := range res.Paths {
					fmt.Fprintf(w, "\nPath %d (%d steps)\n", i+1, len(p.Steps))
					writeSteps(w, p.Steps)
				}
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of paths (default 3)")
	return cmd
}

// pathFile is the YAML layout accepted by "paths save".
type pathFile struct {
	Target models.Element `yaml:"target"`
	Steps  []models.Step  `yaml:"steps"`
}

func newPathsSaveCommand(opts *RootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save a path's steps into the catalog",
		Long: `Save every step of a path into the catalog. Existing combinations are never
overwritten; steps that disagree with the catalog are reported as conflicts.

The file is YAML:

  target: {name: Lava, emoji: "🌋"}
  steps:
    - {a: fire, b: earth, resultName: Stone, resultEmoji: "🪨"}
    - {a: fire, b: stone, resultName: Lava}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var pf pathFile
			if err := readYAML(file, &pf); err != nil {
				return err
			}
			ctx := commandContext(cmd)
			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Paths.SavePath(ctx, pf.Target, models.Path{Steps: pf.Steps})
			if err != nil {
				return operationError("save failed", err)
			}
			return emit(cmd, opts, res, func(w io.Writer) {
				fmt.Fprintf(w, "%d created, %d skipped\n", res.Created, res.Skipped)
				for _, c := range res.Conflicts {
					fmt.Fprintf(w, "  conflict %s: catalog has %q, path wants %q\n", c.Key, c.Existing, c.Requested)
				}
				for _, e := range res.Errors {
					fmt.Fprintf(w, "  step %d: %s\n", e.Index, e.Message)
				}
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML path file (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func writeSteps(w io.Writer, steps []models.Step) {
	for _, s := range steps {
		mark := ""
		if s.Provisional {
			mark = " (new)"
		}
		fmt.Fprintf(w, "  %s + %s = %s %s%s\n", s.A, s.B, s.ResultEmoji, s.ResultName, mark)
	}
}

func readYAML(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot read input", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return WrapExitError(ExitCommandError, "invalid YAML in "+path, err)
	}
	return nil
}
