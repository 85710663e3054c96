// Package evaluation runs a prompt over a dataset partition and aggregates the
// graded outcomes into a report.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/signalnine/papertune/internal/dataset"
	"github.com/signalnine/papertune/internal/grader"
	"github.com/signalnine/papertune/internal/logging"
	"github.com/signalnine/papertune/internal/prompt"
	"github.com/signalnine/papertune/internal/result"
	"github.com/signalnine/papertune/internal/runner"
	"github.com/signalnine/papertune/internal/telemetry"
)

// Rollouts runs one task and always returns an outcome.
type Rollouts interface {
	Run(ctx context.Context, systemPrompt string, p dataset.Partition, index int, task dataset.Task) *result.Outcome
}

type Options struct {
	Workers int
	// MaxTasks evaluates only the first MaxTasks tasks of a partition when > 0.
	MaxTasks int
	// RunDir, when set, receives every outcome and report.
	RunDir  string
	RunID   string
	Weights grader.Weights
	Logger  *zap.Logger
}

type Evaluator struct {
	data *dataset.Dataset
	exec Rollouts
	opts Options
	log  *zap.Logger
}

func New(data *dataset.Dataset, exec Rollouts, opts Options) *Evaluator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Weights == (grader.Weights{}) {
		opts.Weights = grader.DefaultWeights
	}
	return &Evaluator{data: data, exec: exec, opts: opts, log: logging.OrNop(opts.Logger)}
}

// Run evaluates systemPrompt on p, labeling the results with the prompt's
// short fingerprint.
func (e *Evaluator) Run(ctx context.Context, systemPrompt string, p dataset.Partition) (*result.Report, error) {
	return e.RunLabeled(ctx, prompt.Short(prompt.Fingerprint(systemPrompt)), systemPrompt, p)
}

// RunLabeled evaluates systemPrompt on p. Individual rollout failures are
// scored, never returned; an error means the evaluation could not start.
func (e *Evaluator) RunLabeled(ctx context.Context, label, systemPrompt string, p dataset.Partition) (*result.Report, error) {
	tasks, err := e.data.Tasks(p)
	if err != nil {
		return nil, err
	}
	if e.opts.MaxTasks > 0 && len(tasks) > e.opts.MaxTasks {
		tasks = tasks[:e.opts.MaxTasks]
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("partition %s has no tasks", p)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log := e.log.With(zap.String("label", label), zap.String("partition", string(p)))
	log.Info("evaluation started", zap.Int("tasks", len(tasks)), zap.Int("workers", e.opts.Workers))
	started := time.Now().UTC()

	outcomes := make([]*result.Outcome, len(tasks))
	jobs := make([]runner.Job, len(tasks))
	for i, task := range tasks {
		jobs[i] = func(ctx context.Context) error {
			o := e.exec.Run(ctx, systemPrompt, p, i, task)
			s := grader.GradeWeighted(o, e.opts.Weights)
			o.Scores = &s
			outcomes[i] = o
			log.Debug("rollout graded",
				zap.Int("index", i),
				zap.Float64("total", s.Total),
				zap.Strings("tools", o.ToolNames()),
				zap.Bool("failed", o.Failed))
			if e.opts.RunDir == "" {
				return nil
			}
			return result.WriteOutcome(result.RolloutDir(e.opts.RunDir, label, p, i), o)
		}
	}
	for _, err := range runner.RunPool(ctx, e.opts.Workers, jobs) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			continue
		}
		log.Warn("rollout job error", zap.Error(err))
	}

	report := result.NewReport(label, prompt.Fingerprint(systemPrompt), p, outcomes)
	report.RunID = e.opts.RunID
	report.Started = started
	report.Finished = time.Now().UTC()

	telemetry.Metrics().EvaluationMean.Record(ctx, report.Mean,
		metric.WithAttributes(attribute.String("partition", string(p))))
	log.Info("evaluation finished",
		zap.Float64("mean", report.Mean),
		zap.Float64("min", report.Min),
		zap.Float64("max", report.Max),
		zap.Int("failures", report.Failures),
		zap.Duration("elapsed", report.Finished.Sub(started)))

	if e.opts.RunDir != "" {
		if err := result.WriteReport(result.EvalDir(e.opts.RunDir, label, p), report); err != nil {
			log.Warn("writing report", zap.Error(err))
		}
	}
	return report, nil
}
