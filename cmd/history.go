package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/signalnine/papertune/internal/history"
	"github.com/signalnine/papertune/internal/prompt"
)

var (
	flagRun   string
	flagLimit int
	flagBest  string
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded prompt evaluations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if app.cfg.History.Disabled {
				return fmt.Errorf("history is disabled in the config")
			}
			store, err := history.Open(ctx, app.cfg.History.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			var entries []history.Entry
			if flagBest != "" {
				e, ok, err := store.Best(ctx, flagBest)
				if err != nil {
					return err
				}
				if ok {
					entries = append(entries, e)
				}
			} else {
				entries, err = store.List(ctx, flagRun, flagLimit)
				if err != nil {
					return err
				}
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No evaluations recorded.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RECORDED\tRUN\tITER\tLABEL\tPROMPT\tPARTITION\tMEAN\tFAILED\tACCEPTED\tCOST")
			for _, e := range entries {
				accepted := ""
				if e.Accepted {
					accepted = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%.3f\t%d/%d\t%s\t$%.4f\n",
					e.RecordedAt.Local().Format("2006-01-02 15:04:05"), shortRun(e.RunID), e.Iteration, e.Label,
					prompt.Short(e.Fingerprint), e.Partition, e.Mean, e.Failures, e.Tasks, accepted, e.CostUSD)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&flagRun, "run", "", "only show one run ID")
	cmd.Flags().IntVar(&flagLimit, "limit", 20, "maximum entries, 0 for all")
	cmd.Flags().StringVar(&flagBest, "best", "", "show only the best evaluation on a partition")
	return cmd
}

func shortRun(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
