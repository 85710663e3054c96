// Package optimize searches for a better agent system prompt: it evaluates
// proposed variants against the best prompt so far and keeps strict
// improvements.
package optimize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/signalnine/papertune/internal/dataset"
	"github.com/signalnine/papertune/internal/history"
	"github.com/signalnine/papertune/internal/logging"
	"github.com/signalnine/papertune/internal/prompt"
	"github.com/signalnine/papertune/internal/result"
)

// Evaluator scores a prompt on a partition.
type Evaluator interface {
	RunLabeled(ctx context.Context, label, systemPrompt string, p dataset.Partition) (*result.Report, error)
}

// Recorder stores every evaluation the loop makes.
type Recorder interface {
	Record(ctx context.Context, runID string, iteration int, accepted bool, r *result.Report) (history.Entry, error)
}

// Mirror receives a copy of the persisted prompt and its report.
type Mirror interface {
	Upload(ctx context.Context, text string, report []byte) error
}

type Options struct {
	Iterations int
	// Candidates is how many variants are requested per iteration.
	Candidates int
	// Patience stops the loop after this many iterations without
	// improvement. Zero disables it.
	Patience        int
	UseValidation   bool
	ValidationEvery int
	// Output is where the best prompt is saved. Empty skips persistence.
	Output string
	// Tasks are the training tasks, aligned with report PerTask entries, for
	// proposers that inspect weak tasks.
	Tasks    []dataset.Task
	RunID    string
	Recorder Recorder
	Mirror   Mirror
	Logger   *zap.Logger
}

type State int

const (
	StateBaselineEval State = iota
	StatePropose
	StateCandidateEval
	StateCompare
	StateAccept
	StateReject
	StateTerminate
)

func (s State) String() string {
	switch s {
	case StateBaselineEval:
		return "baseline_eval"
	case StatePropose:
		return "propose"
	case StateCandidateEval:
		return "candidate_eval"
	case StateCompare:
		return "compare"
	case StateAccept:
		return "accept"
	case StateReject:
		return "reject"
	case StateTerminate:
		return "terminate"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Stop reasons.
const (
	StopBudget    = "budget"
	StopPatience  = "patience"
	StopExhausted = "exhausted"
	StopCanceled  = "canceled"
)

// Candidate is a prompt text with its training evaluation.
type Candidate struct {
	Label       string         `json:"label"`
	Text        string         `json:"-"`
	Fingerprint string         `json:"fingerprint"`
	Source      string         `json:"source,omitempty"`
	Report      *result.Report `json:"report,omitempty"`
}

func (c Candidate) Mean() float64 {
	if c.Report == nil {
		return 0
	}
	return c.Report.Mean
}

// ValidationCheck is one re-evaluation of the best prompt on validation.
type ValidationCheck struct {
	Iteration      int     `json:"iteration"`
	Fingerprint    string  `json:"fingerprint"`
	TrainingMean   float64 `json:"training_mean"`
	ValidationMean float64 `json:"validation_mean"`
	Gap            float64 `json:"gap"`
}

// Step records the decision made for one evaluated candidate.
type Step struct {
	Iteration   int     `json:"iteration"`
	Label       string  `json:"label"`
	Fingerprint string  `json:"fingerprint"`
	Source      string  `json:"source,omitempty"`
	Mean        float64 `json:"mean"`
	BestBefore  float64 `json:"best_before"`
	Accepted    bool    `json:"accepted"`
}

type Result struct {
	Baseline    Candidate         `json:"baseline"`
	Best        Candidate         `json:"best"`
	Iterations  int               `json:"iterations"`
	Accepted    int               `json:"accepted"`
	Stopped     string            `json:"stopped"`
	Steps       []Step            `json:"steps"`
	Validation  []ValidationCheck `json:"validation,omitempty"`
	Persisted   string            `json:"persisted,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt time.Time         `json:"completed_at"`
}

// Improvement is the best mean minus the baseline mean.
func (r *Result) Improvement() float64 {
	return r.Best.Mean() - r.Baseline.Mean()
}

type Loop struct {
	eval     Evaluator
	proposer Proposer
	opts     Options
	log      *zap.Logger
}

func New(eval Evaluator, proposer Proposer, opts Options) *Loop {
	if opts.Candidates < 1 {
		opts.Candidates = 1
	}
	if opts.ValidationEvery < 1 {
		opts.ValidationEvery = 1
	}
	return &Loop{eval: eval, proposer: proposer, opts: opts, log: logging.OrNop(opts.Logger)}
}

// run is the mutable state of one Run.
type run struct {
	res       *Result
	best      Candidate
	seen      map[string]bool
	pending   []Candidate
	evaluated []Candidate
	winner    Candidate
	iteration int
	stale     int
	err       error
}

// Run drives the state machine from the baseline prompt until the iteration
// budget, patience or the proposer runs out. The best prompt is persisted
// only when the loop terminates without cancellation.
func (l *Loop) Run(ctx context.Context, baseline string) (*Result, error) {
	r := &run{
		res:  &Result{StartedAt: time.Now().UTC()},
		seen: make(map[string]bool),
	}
	state := StateBaselineEval
	for state != StateTerminate {
		if ctx.Err() != nil {
			r.res.Stopped = StopCanceled
			break
		}
		l.log.Debug("optimize state", zap.Stringer("state", state), zap.Int("iteration", r.iteration))
		switch state {
		case StateBaselineEval:
			state = l.baselineEval(ctx, r, baseline)
		case StatePropose:
			state = l.propose(ctx, r)
		case StateCandidateEval:
			state = l.candidateEval(ctx, r)
		case StateCompare:
			state = l.compare(ctx, r)
		case StateAccept:
			l.log.Info("candidate accepted",
				zap.String("label", r.winner.Label),
				zap.Float64("previous", r.best.Mean()),
				zap.Float64("mean", r.winner.Mean()))
			r.best = r.winner
			r.res.Accepted++
			r.stale = 0
			state = l.next(ctx, r)
		case StateReject:
			r.stale++
			state = l.next(ctx, r)
		}
		if r.err != nil {
			return nil, r.err
		}
	}

	res := r.res
	res.Best = r.best
	res.Iterations = r.iteration
	res.CompletedAt = time.Now().UTC()
	if err := ctx.Err(); err != nil {
		res.Stopped = StopCanceled
		l.log.Warn("optimization canceled, nothing persisted", zap.Int("iterations", r.iteration))
		return res, err
	}
	if l.opts.UseValidation && (len(res.Validation) == 0 || res.Validation[len(res.Validation)-1].Fingerprint != r.best.Fingerprint) {
		l.validate(ctx, r)
	}
	l.log.Info("optimization finished",
		zap.String("stopped", res.Stopped),
		zap.Int("iterations", res.Iterations),
		zap.Int("accepted", res.Accepted),
		zap.Float64("baseline", res.Baseline.Mean()),
		zap.Float64("best", res.Best.Mean()))
	if l.opts.Output != "" {
		if err := l.persist(ctx, res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (l *Loop) baselineEval(ctx context.Context, r *run, text string) State {
	c := Candidate{Label: "baseline", Text: text, Fingerprint: prompt.Fingerprint(text), Source: "baseline"}
	rep, err := l.eval.RunLabeled(ctx, c.Label, text, dataset.Training)
	if err != nil {
		r.err = fmt.Errorf("evaluating baseline: %w", err)
		return StateTerminate
	}
	c.Report = rep
	r.best = c
	r.res.Baseline = c
	r.seen[c.Fingerprint] = true
	l.record(ctx, 0, true, rep)
	return StatePropose
}

func (l *Loop) propose(ctx context.Context, r *run) State {
	if r.iteration >= l.opts.Iterations {
		r.res.Stopped = StopBudget
		return StateTerminate
	}
	r.iteration++
	fb := Feedback{
		Iteration: r.iteration,
		Best:      r.best.Text,
		Report:    r.best.Report,
		Tasks:     l.opts.Tasks,
		Evaluated: func(text string) bool { return r.seen[prompt.Fingerprint(text)] },
	}
	proposals, err := l.proposer.Propose(ctx, fb, l.opts.Candidates)
	switch {
	case errors.Is(err, ErrNoNewCandidates):
		l.log.Info("proposer returned only known candidates", zap.String("proposer", l.proposer.Name()), zap.Int("iteration", r.iteration))
		return StateReject
	case err != nil:
		l.log.Warn("proposer failed", zap.String("proposer", l.proposer.Name()), zap.Int("iteration", r.iteration), zap.Error(err))
		return StateReject
	}
	if len(proposals) == 0 {
		r.res.Stopped = StopExhausted
		return StateTerminate
	}

	r.pending = r.pending[:0]
	for _, p := range proposals {
		fp := prompt.Fingerprint(p.Text)
		if r.seen[fp] {
			l.log.Debug("skipping already evaluated candidate", zap.String("fingerprint", prompt.Short(fp)))
			continue
		}
		r.seen[fp] = true
		r.pending = append(r.pending, Candidate{
			Label:       fmt.Sprintf("iter_%04d_c%02d", r.iteration, len(r.pending)+1),
			Text:        p.Text,
			Fingerprint: fp,
			Source:      p.Source,
		})
	}
	if len(r.pending) == 0 {
		return StateReject
	}
	return StateCandidateEval
}

func (l *Loop) candidateEval(ctx context.Context, r *run) State {
	r.evaluated = r.evaluated[:0]
	for _, c := range r.pending {
		rep, err := l.eval.RunLabeled(ctx, c.Label, c.Text, dataset.Training)
		if ctx.Err() != nil {
			return StateTerminate
		}
		if err != nil {
			l.log.Warn("candidate evaluation failed", zap.String("label", c.Label), zap.Error(err))
			continue
		}
		c.Report = rep
		r.evaluated = append(r.evaluated, c)
	}
	return StateCompare
}

// compare picks the iteration's strongest candidate; only a strictly higher
// mean than the best so far is accepted.
func (l *Loop) compare(ctx context.Context, r *run) State {
	bestBefore := r.best.Mean()
	winner := -1
	for i, c := range r.evaluated {
		if c.Mean() > bestBefore && (winner < 0 || c.Mean() > r.evaluated[winner].Mean()) {
			winner = i
		}
	}
	for i, c := range r.evaluated {
		accepted := i == winner
		r.res.Steps = append(r.res.Steps, Step{
			Iteration:   r.iteration,
			Label:       c.Label,
			Fingerprint: c.Fingerprint,
			Source:      c.Source,
			Mean:        c.Mean(),
			BestBefore:  bestBefore,
			Accepted:    accepted,
		})
		l.record(ctx, r.iteration, accepted, c.Report)
		if !accepted {
			l.log.Info("candidate rejected",
				zap.String("label", c.Label),
				zap.Float64("mean", c.Mean()),
				zap.Float64("best", bestBefore))
		}
	}
	if winner < 0 {
		return StateReject
	}
	r.winner = r.evaluated[winner]
	return StateAccept
}

// next runs the periodic validation check and decides whether to keep going.
func (l *Loop) next(ctx context.Context, r *run) State {
	if l.opts.UseValidation && r.iteration > 0 && r.iteration%l.opts.ValidationEvery == 0 {
		l.validate(ctx, r)
	}
	if l.opts.Patience > 0 && r.stale >= l.opts.Patience {
		l.log.Info("no improvement, stopping early", zap.Int("patience", l.opts.Patience))
		r.res.Stopped = StopPatience
		return StateTerminate
	}
	return StatePropose
}

func (l *Loop) validate(ctx context.Context, r *run) {
	rep, err := l.eval.RunLabeled(ctx, r.best.Label, r.best.Text, dataset.Validation)
	if err != nil {
		l.log.Warn("validation check failed", zap.Error(err))
		return
	}
	check := ValidationCheck{
		Iteration:      r.iteration,
		Fingerprint:    r.best.Fingerprint,
		TrainingMean:   r.best.Mean(),
		ValidationMean: rep.Mean,
		Gap:            r.best.Mean() - rep.Mean,
	}
	r.res.Validation = append(r.res.Validation, check)
	l.record(ctx, r.iteration, false, rep)
	l.log.Info("validation check",
		zap.String("label", r.best.Label),
		zap.Float64("training", check.TrainingMean),
		zap.Float64("validation", check.ValidationMean),
		zap.Float64("gap", check.Gap))
}

func (l *Loop) record(ctx context.Context, iteration int, accepted bool, rep *result.Report) {
	if l.opts.Recorder == nil || rep == nil {
		return
	}
	if rep.RunID == "" {
		rep.RunID = l.opts.RunID
	}
	if _, err := l.opts.Recorder.Record(ctx, l.opts.RunID, iteration, accepted, rep); err != nil {
		l.log.Warn("recording history", zap.Error(err))
	}
}
