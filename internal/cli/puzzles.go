package cli

import (
	"fmt"
	"io"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"dailyalchemy/internal/models"
	"dailyalchemy/internal/service"
)

// NewPuzzlesCommand creates the puzzles command group.
func NewPuzzlesCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "puzzles",
		Short: "Publish and list daily puzzles",
	}
	cmd.AddCommand(newPuzzlesCreateCommand(opts), newPuzzlesListCommand(opts))
	return cmd
}

// puzzleFile is the YAML layout accepted by "puzzles create".
type puzzleFile struct {
	Date       string            `yaml:"date"`
	Target     models.Element    `yaml:"target"`
	ParMoves   int               `yaml:"parMoves"`
	Difficulty models.Difficulty `yaml:"difficulty"`
	Published  bool              `yaml:"published"`
	Solution   []models.Step     `yaml:"solution"`
}

type puzzleSummary struct {
	PuzzleNumber     int               `json:"puzzleNumber"`
	Date             string            `json:"date"`
	Target           models.Element    `json:"target"`
	ParMoves         int               `json:"parMoves"`
	Difficulty       models.Difficulty `json:"difficulty"`
	Published        bool              `json:"published"`
	SolutionPathHash string            `json:"solutionPathHash"`
}

func newPuzzlesCreateCommand(opts *RootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a daily puzzle from a YAML file",
		Long: `Create a daily puzzle. The solution must replay from the starter elements
using only catalog combinations and end on the target.

  date: "2026-03-09"
  target: {name: Lava, emoji: "🌋"}
  parMoves: 3
  difficulty: medium
  published: true
  solution:
    - {a: fire, b: earth, resultName: Stone}
    - {a: fire, b: stone, resultName: Lava}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var pf puzzleFile
			if err := readYAML(file, &pf); err != nil {
				return err
			}
			date, err := civil.ParseDate(pf.Date)
			if err != nil {
				return WrapExitError(ExitFailure, "invalid date", err)
			}

			ctx := commandContext(cmd)
			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.Puzzles.Create(ctx, service.CreatePuzzleInput{
				Date:         date,
				Target:       pf.Target,
				ParMoves:     pf.ParMoves,
				SolutionPath: models.Path{Steps: pf.Solution},
				Difficulty:   pf.Difficulty,
				Published:    pf.Published,
			})
			if err != nil {
				return operationError("create failed", err)
			}
			sum := summarize(a.Puzzles, p)
			return emit(cmd, opts, sum, func(w io.Writer) {
				fmt.Fprintf(w, "Created puzzle #%d for %s: %s %s (par %d)\n",
					sum.PuzzleNumber, sum.Date, p.TargetEmoji, p.TargetName, p.ParMoves)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML puzzle file (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newPuzzlesListCommand(opts *RootOptions) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List puzzles in a date range, unpublished ones included",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fromDate, err := civil.ParseDate(from)
			if err != nil {
				return WrapExitError(ExitFailure, "invalid --from", err)
			}
			toDate, err := civil.ParseDate(to)
			if err != nil {
				return WrapExitError(ExitFailure, "invalid --to", err)
			}

			ctx := commandContext(cmd)
			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			puzzles, err := a.Puzzles.GetRange(ctx, fromDate, toDate, service.Access{Admin: true})
			if err != nil {
				return operationError("list failed", err)
			}
			out := make([]puzzleSummary, 0, len(puzzles))
			for i := range puzzles {
				out = append(out, summarize(a.Puzzles, &puzzles[i]))
			}
			return emit(cmd, opts, out, func(w io.Writer) {
				for _, s := range out {
					state := "draft"
					if s.Published {
						state = "published"
					}
					fmt.Fprintf(w, "#%-4d %s  %s %-20s par %-2d %-6s %s\n",
						s.PuzzleNumber, s.Date, s.Target.Emoji, s.Target.Name, s.ParMoves, s.Difficulty, state)
				}
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first date, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&to, "to", "", "last date, YYYY-MM-DD (required)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func summarize(puzzles *service.PuzzleService, p *models.DailyPuzzle) puzzleSummary {
	return puzzleSummary{
		PuzzleNumber:     p.PuzzleNumber,
		Date:             p.Date.String(),
		Target:           p.Target(),
		ParMoves:         p.ParMoves,
		Difficulty:       p.Difficulty,
		Published:        p.Published,
		SolutionPathHash: puzzles.SolutionHash(p),
	}
}
