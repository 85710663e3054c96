package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalnine/papertune/internal/config"
	"github.com/signalnine/papertune/internal/dataset"
	"github.com/signalnine/papertune/internal/history"
	"github.com/signalnine/papertune/internal/optimize"
	"github.com/signalnine/papertune/internal/prompt"
	"github.com/signalnine/papertune/internal/result"
)

var (
	flagIterations    int
	flagPatience      int
	flagProposer      string
	flagVariants      string
	flagUseValidation bool
	flagOutput        string
	flagStart         string
)

func newOptimizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Search for a better system prompt and persist the best one",
		Args:  cobra.NoArgs,
		RunE:  runOptimize,
	}
	cmd.Flags().IntVar(&flagIterations, "iterations", 0, "optimization iterations (default: optimize.iterations)")
	cmd.Flags().IntVar(&flagPatience, "patience", -1, "stop after N iterations without improvement, 0 disables (default: optimize.patience)")
	cmd.Flags().StringVar(&flagProposer, "proposer", "", "candidate strategy: template, files or llm")
	cmd.Flags().StringVar(&flagVariants, "variants", "", "directory of prompt variants for the files proposer")
	cmd.Flags().BoolVar(&flagUseValidation, "use-validation", false, "check the best prompt on the validation partition")
	cmd.Flags().StringVar(&flagOutput, "output", "", "where to save the best prompt (default: optimize.output)")
	cmd.Flags().StringVar(&flagStart, "prompt", "", "starting prompt file (default: built-in baseline)")
	return cmd
}

func runOptimize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, logger := optimizeConfig(app.cfg), app.log

	data, err := dataset.Load(cfg.Dataset.Paths)
	if err != nil {
		return err
	}
	training, err := data.Tasks(dataset.Training)
	if err != nil {
		return err
	}
	start, found, err := prompt.Load(flagStart)
	if err != nil {
		return err
	}
	if flagStart != "" && !found {
		return fmt.Errorf("prompt file %s does not exist", flagStart)
	}

	st, err := newStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	proposer, err := newProposer(cfg, st.client)
	if err != nil {
		return err
	}

	runDir, err := result.CreateRunDir(cfg.Results.Dir)
	if err != nil {
		return err
	}
	runID := history.NewRunID()
	fmt.Fprintf(cmd.OutOrStdout(), "Run directory: %s\n", runDir)

	opts := optimize.Options{
		Iterations:      cfg.Optimize.Iterations,
		Candidates:      cfg.Optimize.Candidates,
		Patience:        cfg.Optimize.Patience,
		UseValidation:   cfg.Optimize.UseValidation,
		ValidationEvery: cfg.Optimize.ValidationEvery,
		Output:          cfg.Optimize.Output,
		Tasks:           training,
		RunID:           runID,
		Logger:          logger,
	}
	store, err := openHistory(ctx, cfg)
	if err != nil {
		logger.Warn("history disabled for this run", zap.Error(err))
	} else if store != nil {
		defer store.Close()
		opts.Recorder = store
	}
	mirror, err := newMirror(ctx, cfg)
	if err != nil {
		logger.Warn("s3 mirror disabled for this run", zap.Error(err))
	} else if mirror != nil {
		opts.Mirror = mirror
	}

	eval := newEvaluator(cfg, data, st.executor, runDir, runID, logger)
	res, err := optimize.New(eval, proposer, opts).Run(ctx, start)
	if err != nil {
		return err
	}
	printOptimization(cmd.OutOrStdout(), res)
	return nil
}

func printOptimization(w io.Writer, res *optimize.Result) {
	fmt.Fprintln(w, "\n--- Optimization ---")
	fmt.Fprintf(w, "Stopped:     %s after %d iterations (%d accepted)\n", res.Stopped, res.Iterations, res.Accepted)
	fmt.Fprintf(w, "Baseline:    %.3f  %s\n", res.Baseline.Mean(), prompt.Short(res.Baseline.Fingerprint))
	fmt.Fprintf(w, "Best:        %.3f  %s (%s)\n", res.Best.Mean(), prompt.Short(res.Best.Fingerprint), res.Best.Label)
	fmt.Fprintf(w, "Improvement: %+.3f\n", res.Improvement())
	for _, v := range res.Validation {
		fmt.Fprintf(w, "Validation:  iteration %d training %.3f validation %.3f gap %+.3f\n",
			v.Iteration, v.TrainingMean, v.ValidationMean, v.Gap)
	}
	if res.Persisted != "" {
		fmt.Fprintf(w, "Saved:       %s\n", res.Persisted)
	}
	if res.Best.Fingerprint != res.Baseline.Fingerprint {
		printComparison(w, prompt.Compare(res.Baseline.Text, res.Best.Text))
	}
}

// optimizeConfig applies the command flags to a copy of the loaded config.
func optimizeConfig(base *config.Config) *config.Config {
	cfg := *base
	if flagIterations > 0 {
		cfg.Optimize.Iterations = flagIterations
	}
	if flagPatience >= 0 {
		cfg.Optimize.Patience = flagPatience
	}
	if flagProposer != "" {
		cfg.Optimize.Proposer = flagProposer
	}
	if flagVariants != "" {
		cfg.Optimize.VariantsDir = flagVariants
	}
	if flagUseValidation {
		cfg.Optimize.UseValidation = true
	}
	if flagOutput != "" {
		cfg.Optimize.Output = flagOutput
	}
	return &cfg
}
