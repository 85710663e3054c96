package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalnine/papertune/internal/config"
	"github.com/signalnine/papertune/internal/dataset"
	"github.com/signalnine/papertune/internal/history"
	"github.com/signalnine/papertune/internal/prompt"
	"github.com/signalnine/papertune/internal/report"
	"github.com/signalnine/papertune/internal/result"
)

var (
	flagPartition string
	flagPrompt    string
	flagParallel  int
	flagTasks     int
)

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate a prompt on a dataset partition",
		Args:  cobra.NoArgs,
		RunE:  runEval,
	}
	cmd.Flags().StringVar(&flagPartition, "partition", "training", "partition to evaluate (training, validation)")
	cmd.Flags().StringVar(&flagPrompt, "prompt", "", "prompt file to evaluate (default: built-in baseline)")
	cmd.Flags().IntVar(&flagParallel, "parallel", 0, "max concurrent rollouts (default: evaluation.workers)")
	cmd.Flags().IntVar(&flagTasks, "tasks", 0, "evaluate only the first N tasks")
	return cmd
}

func runEval(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, logger := evalConfig(app.cfg), app.log
	part, err := dataset.ParsePartition(flagPartition)
	if err != nil {
		return err
	}
	data, err := dataset.Load(cfg.Dataset.Paths)
	if err != nil {
		return err
	}
	text, found, err := prompt.Load(flagPrompt)
	if err != nil {
		return err
	}
	if flagPrompt != "" && !found {
		return fmt.Errorf("prompt file %s does not exist", flagPrompt)
	}

	st, err := newStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	runDir, err := result.CreateRunDir(cfg.Results.Dir)
	if err != nil {
		return err
	}
	runID := history.NewRunID()
	fmt.Fprintf(cmd.OutOrStdout(), "Run directory: %s\n", runDir)

	label := "baseline"
	if flagPrompt != "" {
		label = prompt.Short(prompt.Fingerprint(text))
	}
	rep, err := newEvaluator(cfg, data, st.executor, runDir, runID, logger).RunLabeled(ctx, label, text, part)
	if err != nil {
		return err
	}

	store, err := openHistory(ctx, cfg)
	if err != nil {
		logger.Warn("opening history", zap.Error(err))
	} else if store != nil {
		if _, err := store.Record(ctx, runID, 0, false, rep); err != nil {
			logger.Warn("recording history", zap.Error(err))
		}
		store.Close()
	}

	fmt.Fprintln(cmd.OutOrStdout(), "\n--- Results ---")
	return report.Generate(runDir, report.FormatTable, cmd.OutOrStdout())
}

// evalConfig applies the command flags to a copy of the loaded config.
func evalConfig(base *config.Config) *config.Config {
	cfg := *base
	if flagParallel > 0 {
		cfg.Evaluation.Workers = flagParallel
	}
	if flagTasks > 0 {
		cfg.Evaluation.MaxTasks = flagTasks
	}
	return &cfg
}
