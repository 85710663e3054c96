package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/signalnine/papertune/internal/report"
)

var (
	flagFormat string
	flagOut    string
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [run-dir]",
		Short: "Generate summary from stored results",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runDir, err := resolveRunDir(args)
			if err != nil {
				return err
			}
			if flagFormat == report.FormatXLSX && flagOut == "" {
				return fmt.Errorf("--format xlsx needs --out")
			}
			var w io.Writer = cmd.OutOrStdout()
			if flagOut != "" {
				f, err := os.Create(flagOut)
				if err != nil {
					return fmt.Errorf("creating %s: %w", flagOut, err)
				}
				defer f.Close()
				w = f
			}
			return report.Generate(runDir, flagFormat, w)
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json, html, xlsx)")
	cmd.Flags().StringVar(&flagOut, "out", "", "write to a file instead of stdout")
	return cmd
}

// resolveRunDir returns the run given as the first argument, or the latest
// run under results.dir.
func resolveRunDir(args []string) (string, error) {
	runDir := filepath.Join(app.cfg.Results.Dir, "latest")
	if len(args) > 0 {
		runDir = args[0]
	}
	resolved, err := filepath.EvalSymlinks(runDir)
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	return resolved, nil
}
