package runner_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/signalnine/papertune/internal/agent"
	"github.com/signalnine/papertune/internal/dataset"
	"github.com/signalnine/papertune/internal/llm"
	"github.com/signalnine/papertune/internal/pricing"
	"github.com/signalnine/papertune/internal/runner"
	"github.com/signalnine/papertune/internal/tool"
)

type answerFunc func(ctx context.Context, systemPrompt, query string, tools *tool.Set) (agent.Response, error)

func (f answerFunc) Answer(ctx context.Context, systemPrompt, query string, tools *tool.Set) (agent.Response, error) {
	return f(ctx, systemPrompt, query, tools)
}

type staticTool struct {
	name       string
	capability tool.Capability
	res        tool.Result
}

func (s staticTool) Definition() tool.Definition {
	return tool.Definition{Name: s.name, Capability: s.capability, Marker: strings.ToUpper(s.name)}
}

func (s staticTool) Invoke(context.Context, tool.Call) tool.Result { return s.res }

func toolSet(t *testing.T) *tool.Set {
	t.Helper()
	s, err := tool.NewSet(
		staticTool{name: "corpus_search", capability: tool.CapabilitySimilarity, res: tool.Found([]tool.Hit{{Title: "Deep RL", Identifier: "2401.00001"}})},
		staticTool{name: "live_search", capability: tool.CapabilityLive, res: tool.Empty()},
	)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func call(ctx context.Context, tools *tool.Set, name string) tool.Result {
	t, _ := tools.Get(name)
	return t.Invoke(ctx, tool.Call{Query: "reinforcement learning"})
}

var task = dataset.Task{Query: "What is reinforcement learning?"}

func TestRolloutRecordsTrace(t *testing.T) {
	a := answerFunc(func(ctx context.Context, _, _ string, tools *tool.Set) (agent.Response, error) {
		call(tool.WithForced(ctx), tools, "corpus_search")
		call(ctx, tools, "live_search")
		return agent.Response{Text: "TOOL_LOG:\n\nANSWER:\nDeep RL", Usage: llm.Usage{InputTokens: 1000, OutputTokens: 1000}}, nil
	})
	ex := runner.NewExecutor(a, toolSet(t), runner.ExecutorOptions{Model: "gpt-4o-mini", Pricing: pricing.Default()})

	out := ex.Run(context.Background(), "prompt", dataset.Training, 3, task)
	if out.Failed {
		t.Fatalf("unexpected failure: %s", out.FailureReason)
	}
	if out.ID == "" || out.Index != 3 || out.Partition != dataset.Training {
		t.Errorf("identity not set: %+v", out)
	}
	if len(out.Trace) != 2 {
		t.Fatalf("expected 2 invocations, got %d", len(out.Trace))
	}
	first, second := out.Trace[0], out.Trace[1]
	if first.ToolName != "corpus_search" || first.Order != 0 || !first.Forced || first.Status != tool.StatusFound {
		t.Errorf("unexpected first invocation: %+v", first)
	}
	if len(first.Citations) != 1 || first.Citations[0].Identifier != "2401.00001" {
		t.Errorf("citations not captured: %+v", first.Citations)
	}
	if second.Status != tool.StatusEmpty || !strings.HasPrefix(second.Output, "LIVE_SEARCH_EMPTY") || second.Forced {
		t.Errorf("unexpected second invocation: %+v", second)
	}
	if out.FinalAnswer != "TOOL_LOG:\n\nANSWER:\nDeep RL" {
		t.Errorf("final answer = %q", out.FinalAnswer)
	}
	if out.Usage.Total() != 2000 || out.CostUSD <= 0 {
		t.Errorf("usage/cost not recorded: %+v %v", out.Usage, out.CostUSD)
	}
}

func TestRolloutTimeoutKeepsPartialTrace(t *testing.T) {
	a := answerFunc(func(ctx context.Context, _, _ string, tools *tool.Set) (agent.Response, error) {
		call(ctx, tools, "corpus_search")
		<-ctx.Done()
		return agent.Response{}, ctx.Err()
	})
	ex := runner.NewExecutor(a, toolSet(t), runner.ExecutorOptions{Timeout: 20 * time.Millisecond})

	out := ex.Run(context.Background(), "prompt", dataset.Training, 0, task)
	if !out.Failed || out.FailureReason != runner.ReasonTimeout {
		t.Fatalf("expected timeout failure, got failed=%v reason=%q", out.Failed, out.FailureReason)
	}
	if len(out.Trace) != 1 || out.Trace[0].ToolName != "corpus_search" {
		t.Errorf("partial trace lost: %+v", out.Trace)
	}
	if out.FinalAnswer != "" {
		t.Errorf("failed rollout should have no answer")
	}
}

func TestRolloutFailureReasons(t *testing.T) {
	tests := []struct {
		name   string
		answer answerFunc
		cancel bool
		want   string
	}{
		{
			name: "agent failure",
			answer: func(context.Context, string, string, *tool.Set) (agent.Response, error) {
				return agent.Response{}, &agent.Failure{Cause: errors.New("502 bad gateway"), Step: 1}
			},
			want: "agent_failure: 502 bad gateway",
		},
		{
			name: "plain error",
			answer: func(context.Context, string, string, *tool.Set) (agent.Response, error) {
				return agent.Response{}, errors.New("no scripted response")
			},
			want: "agent_failure: no scripted response",
		},
		{
			name: "panic",
			answer: func(context.Context, string, string, *tool.Set) (agent.Response, error) {
				panic("kaboom")
			},
			want: "panic: kaboom",
		},
		{
			name:   "parent canceled",
			cancel: true,
			answer: func(ctx context.Context, _, _ string, _ *tool.Set) (agent.Response, error) {
				return agent.Response{}, ctx.Err()
			},
			want: "canceled",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.cancel {
				cancel()
			}
			ex := runner.NewExecutor(tt.answer, toolSet(t), runner.ExecutorOptions{Timeout: time.Minute})
			out := ex.Run(ctx, "prompt", dataset.Validation, 1, task)
			if !out.Failed || out.FailureReason != tt.want {
				t.Errorf("got failed=%v reason=%q, want %q", out.Failed, out.FailureReason, tt.want)
			}
		})
	}
}

func TestRolloutsDoNotShareTraces(t *testing.T) {
	a := answerFunc(func(ctx context.Context, _, _ string, tools *tool.Set) (agent.Response, error) {
		call(ctx, tools, "corpus_search")
		return agent.Response{Text: "ok"}, nil
	})
	ex := runner.NewExecutor(a, toolSet(t), runner.ExecutorOptions{})
	for i := 0; i < 3; i++ {
		if out := ex.Run(context.Background(), "prompt", dataset.Training, i, task); len(out.Trace) != 1 {
			t.Fatalf("rollout %d saw %d invocations", i, len(out.Trace))
		}
	}
}
