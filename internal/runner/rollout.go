package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/signalnine/papertune/internal/agent"
	"github.com/signalnine/papertune/internal/dataset"
	"github.com/signalnine/papertune/internal/logging"
	"github.com/signalnine/papertune/internal/pricing"
	"github.com/signalnine/papertune/internal/result"
	"github.com/signalnine/papertune/internal/telemetry"
	"github.com/signalnine/papertune/internal/tool"
)

// Failure reasons recorded on outcomes.
const (
	ReasonTimeout  = "timeout"
	ReasonCanceled = "canceled"
	ReasonAgent    = "agent_failure"
	ReasonPanic    = "panic"
)

// Answerer is the agent as the executor sees it.
type Answerer interface {
	Answer(ctx context.Context, systemPrompt, query string, tools *tool.Set) (agent.Response, error)
}

type ExecutorOptions struct {
	Timeout  time.Duration
	Model    string
	Provider string
	Pricing  *pricing.Table
	Logger   *zap.Logger
}

// Executor runs one task through the agent and always produces an outcome.
type Executor struct {
	agent Answerer
	tools *tool.Set
	opts  ExecutorOptions
	log   *zap.Logger
}

func NewExecutor(a Answerer, tools *tool.Set, opts ExecutorOptions) *Executor {
	if opts.Provider == "" {
		opts.Provider = "openai"
	}
	return &Executor{agent: a, tools: tools, opts: opts, log: logging.OrNop(opts.Logger)}
}

// Run executes one rollout. It never returns nil and never panics: timeouts,
// cancellation, agent failures and panics become failed outcomes that keep
// whatever tool trace was recorded before the failure.
func (e *Executor) Run(ctx context.Context, systemPrompt string, p dataset.Partition, index int, task dataset.Task) *result.Outcome {
	out := &result.Outcome{
		ID:        uuid.NewString(),
		Partition: p,
		Index:     index,
		Task:      task,
		Model:     e.opts.Model,
	}

	ctx, span := telemetry.Tracer().Start(ctx, "rollout",
		trace.WithAttributes(
			attribute.String("partition", string(p)),
			attribute.Int("index", index),
		))
	defer span.End()

	runCtx := ctx
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	rec := &recorder{}
	tools := e.tools.Wrap(rec.wrap)
	start := time.Now()
	resp, err := e.answer(runCtx, systemPrompt, task.Query, tools)
	out.WallTimeMS = time.Since(start).Milliseconds()
	out.Trace = rec.snapshot()
	out.Usage = result.Usage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens}
	out.CostUSD = e.opts.Pricing.Cost(e.opts.Provider, e.opts.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)

	if err != nil {
		out.Failed = true
		out.FailureReason = classify(runCtx, ctx, err)
		span.SetStatus(codes.Error, out.FailureReason)
		e.log.Warn("rollout failed",
			zap.String("partition", string(p)),
			zap.Int("index", index),
			zap.String("reason", out.FailureReason),
			zap.Int("tool_calls", len(out.Trace)))
	} else {
		out.FinalAnswer = resp.Text
	}

	span.SetAttributes(
		attribute.Int("tool_calls", len(out.Trace)),
		attribute.Int("steps", resp.Steps),
		attribute.Int("forced_calls", resp.Forced),
		attribute.Bool("failed", out.Failed),
	)
	e.record(ctx, out)
	return out
}

// answer calls the agent and converts a panic into an error.
func (e *Executor) answer(ctx context.Context, systemPrompt, query string, tools *tool.Set) (resp agent.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return e.agent.Answer(ctx, systemPrompt, query, tools)
}

type panicError struct{ value any }

func (p *panicError) Error() string { return fmt.Sprintf("%s: %v", ReasonPanic, p.value) }

// classify maps a rollout error to a failure reason. runCtx carries the
// rollout timeout and parent is the caller's context.
func classify(runCtx, parent context.Context, err error) string {
	var pe *panicError
	var af *agent.Failure
	switch {
	case errors.As(err, &pe):
		return pe.Error()
	case parent.Err() != nil:
		return ReasonCanceled
	case errors.Is(runCtx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	case errors.As(err, &af):
		return fmt.Sprintf("%s: %v", ReasonAgent, af.Cause)
	default:
		return fmt.Sprintf("%s: %v", ReasonAgent, err)
	}
}

func (e *Executor) record(ctx context.Context, out *result.Outcome) {
	m := telemetry.Metrics()
	part := attribute.String("partition", string(out.Partition))
	m.Rollouts.Add(ctx, 1, metric.WithAttributes(part))
	m.RolloutDuration.Record(ctx, float64(out.WallTimeMS), metric.WithAttributes(part))
	if out.Failed {
		m.RolloutFailures.Add(ctx, 1, metric.WithAttributes(part, attribute.String("reason", reasonKind(out.FailureReason))))
	}
	for _, inv := range out.Trace {
		m.ToolCalls.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool", inv.ToolName),
			attribute.String("status", string(inv.Status)),
		))
	}
}

// reasonKind strips the detail from a failure reason for use as a metric label.
func reasonKind(reason string) string {
	for _, k := range []string{ReasonTimeout, ReasonCanceled, ReasonAgent, ReasonPanic} {
		if strings.HasPrefix(reason, k) {
			return k
		}
	}
	return "other"
}

// recorder captures every tool invocation of one rollout in call order,
// independent of what the agent later reports.
type recorder struct {
	mu    sync.Mutex
	trace []result.ToolInvocation
}

func (r *recorder) wrap(t tool.Tool) tool.Tool {
	return &recordedTool{inner: t, rec: r}
}

func (r *recorder) append(inv result.ToolInvocation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv.Order = len(r.trace)
	r.trace = append(r.trace, inv)
}

func (r *recorder) snapshot() []result.ToolInvocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]result.ToolInvocation, len(r.trace))
	copy(out, r.trace)
	return out
}

type recordedTool struct {
	inner tool.Tool
	rec   *recorder
}

func (t *recordedTool) Definition() tool.Definition { return t.inner.Definition() }

func (t *recordedTool) Invoke(ctx context.Context, call tool.Call) tool.Result {
	def := t.inner.Definition()
	ctx, span := telemetry.Tracer().Start(ctx, "tool."+def.Name)
	defer span.End()

	res := t.inner.Invoke(ctx, call)
	inv := result.ToolInvocation{
		ToolName: def.Name,
		Input:    call.Query,
		Output:   tool.Render(def, res),
		Status:   res.Status,
		Forced:   tool.IsForced(ctx),
	}
	for _, h := range res.Hits {
		inv.Citations = append(inv.Citations, result.Citation{Title: h.Title, Identifier: h.Identifier})
	}
	t.rec.append(inv)
	span.SetAttributes(attribute.String("status", string(res.Status)), attribute.Int("hits", len(res.Hits)))
	return res
}
