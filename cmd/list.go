package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/signalnine/papertune/internal/dataset"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the training and validation tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := dataset.Load(app.cfg.Dataset.Paths)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for i, p := range []dataset.Partition{dataset.Training, dataset.Validation} {
				tasks, err := data.Tasks(p)
				if err != nil {
					return err
				}
				if i > 0 {
					fmt.Fprintln(w)
				}
				fmt.Fprintf(w, "%s (%d):\n", p, data.Len(p))
				for j, t := range tasks {
					fmt.Fprintf(w, "  %2d. %s", j, t.Query)
					if len(t.ExpectedToolUsage) > 0 {
						fmt.Fprintf(w, " [%s]", strings.Join(t.ExpectedToolUsage, ", "))
					}
					fmt.Fprintln(w)
				}
			}
			return nil
		},
	}
}
