package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/signalnine/papertune/internal/prompt"
)

const baselineArg = "baseline"

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <a> <b>",
		Short: "Compare two prompt files (\"baseline\" names the built-in prompt)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadPromptArg(args[0])
			if err != nil {
				return err
			}
			b, err := loadPromptArg(args[1])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "a: %s (%s)\nb: %s (%s)\n", args[0], prompt.Short(prompt.Fingerprint(a)), args[1], prompt.Short(prompt.Fingerprint(b)))
			printComparison(w, prompt.Compare(a, b))
			return nil
		},
	}
}

func loadPromptArg(arg string) (string, error) {
	if arg == baselineArg {
		return prompt.Baseline(), nil
	}
	text, found, err := prompt.Load(arg)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("prompt file %s does not exist", arg)
	}
	return text, nil
}

func printComparison(w io.Writer, c prompt.Comparison) {
	fmt.Fprintln(w, "\n--- Prompt changes ---")
	fmt.Fprintf(w, "Length:  %d → %d chars (%+.1f%%), %d → %d lines\n",
		c.BaselineChars, c.CandidateChars, c.LengthChange*100, c.BaselineLines, c.CandidateLines)
	fmt.Fprintf(w, "Overlap: %.0f%% of keywords kept\n", c.Overlap*100)
	if len(c.AddedWords) > 0 {
		fmt.Fprintf(w, "Added:   %s\n", strings.Join(c.AddedWords, ", "))
	}
	if len(c.RemovedWords) > 0 {
		fmt.Fprintf(w, "Removed: %s\n", strings.Join(c.RemovedWords, ", "))
	}
	for _, l := range c.Changed {
		fmt.Fprintf(w, "  line %d:\n    - %s\n    + %s\n", l.Line, l.Baseline, l.Candidate)
	}
}
