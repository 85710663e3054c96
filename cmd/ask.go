package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/signalnine/papertune/internal/dataset"
	"github.com/signalnine/papertune/internal/prompt"
)

var flagAskPrompt string

func newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Answer one question with the persisted prompt (or the baseline)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger := app.cfg, app.log
			path := flagAskPrompt
			if path == "" {
				path = cfg.Optimize.Output
			}
			text, found, err := prompt.Load(path)
			if err != nil {
				return err
			}
			source := path
			if !found {
				source = "baseline"
			}

			st, err := newStack(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			task := dataset.Task{Query: strings.Join(args, " ")}
			out := st.executor.Run(ctx, text, "", 0, task)
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Prompt: %s (%s)\n\n", source, prompt.Short(prompt.Fingerprint(text)))
			for _, inv := range out.Trace {
				forced := ""
				if inv.Forced {
					forced = " (forced)"
				}
				fmt.Fprintf(w, "[%d] %s %q -> %s%s\n", inv.Order, inv.ToolName, inv.Input, inv.Status, forced)
			}
			if len(out.Trace) > 0 {
				fmt.Fprintln(w)
			}
			if out.Failed {
				return errors.New(out.FailureReason)
			}
			fmt.Fprintln(w, out.FinalAnswer)
			fmt.Fprintf(w, "\n%d tokens, $%.4f, %dms\n", out.Usage.Total(), out.CostUSD, out.WallTimeMS)
			return nil
		},
	}
	cmd.Flags().StringVar(&flagAskPrompt, "prompt", "", "prompt file (default: optimize.output, then the baseline)")
	return cmd
}
