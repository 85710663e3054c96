package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/signalnine/papertune/internal/evaluation"
	"github.com/signalnine/papertune/internal/grader"
	"github.com/signalnine/papertune/internal/report"
)

func newRegradeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regrade [run-dir]",
		Short: "Re-score stored rollouts with the current grader",
		Long:  "Walk a run directory, grade every rollout.json again, and rebuild each evaluation's report.json from the new scores.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runDir, err := resolveRunDir(args)
			if err != nil {
				return err
			}
			changes, reports, err := evaluation.Regrade(runDir, grader.DefaultWeights, app.log)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			changed := 0
			for _, c := range changes {
				if c.Before == c.After {
					continue
				}
				changed++
				rel, err := filepath.Rel(runDir, c.Path)
				if err != nil {
					rel = c.Path
				}
				fmt.Fprintf(w, "  %s: %.3f → %.3f\n", rel, c.Before, c.After)
			}
			fmt.Fprintf(w, "Regraded %d rollouts (%d changed) in %d evaluations.\n\n", len(changes), changed, len(reports))
			return report.Generate(runDir, report.FormatTable, w)
		},
	}
}
