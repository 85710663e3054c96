// Package agent implements the tool-orchestration policy: it drives a
// language model through the corpus and live search tools and guarantees the
// two-section answer format, whatever the model decides.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/signalnine/papertune/internal/answer"
	"github.com/signalnine/papertune/internal/llm"
	"github.com/signalnine/papertune/internal/logging"
	"github.com/signalnine/papertune/internal/tool"
)

const DefaultMaxSteps = 10

type Options struct {
	// MaxSteps bounds the model turns that may request tools.
	MaxSteps int
	// RawFormat returns the model text untouched instead of rebuilding a
	// response that lacks the TOOL_LOG/ANSWER sections.
	RawFormat bool
	// Order is the capability fallback order. Nil means tool.DefaultOrder.
	Order  []tool.Capability
	Logger *zap.Logger
}

type Agent struct {
	client llm.Client
	opts   Options
	logger *zap.Logger
}

func New(client llm.Client, opts Options) *Agent {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if len(opts.Order) == 0 {
		opts.Order = tool.DefaultOrder
	}
	return &Agent{client: client, opts: opts, logger: logging.OrNop(opts.Logger)}
}

// Response is the agent's final answer plus what it cost to produce.
type Response struct {
	Text  string
	Usage llm.Usage
	// Steps is the number of model completions made.
	Steps int
	// Forced counts tool calls issued by the policy rather than the model.
	Forced int
}

// Answer runs one conversation. A language-model failure is returned as a
// *Failure; context errors are returned unwrapped. The partial Response is
// returned alongside any error.
func (a *Agent) Answer(ctx context.Context, systemPrompt, query string, tools *tool.Set) (Response, error) {
	var resp Response
	if tools == nil || tools.Len() == 0 {
		return resp, &Failure{Cause: errors.New("no tools registered")}
	}
	st := newState(tools, a.opts.Order)
	defs := tools.Definitions()
	msgs := []llm.Message{{Role: llm.RoleUser, Content: query}}
	malformed := 0

	for step := 0; step < a.opts.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return resp, err
		}
		out, err := a.complete(ctx, &resp, llm.Request{System: systemPrompt, Messages: msgs, Tools: defs})
		if err != nil {
			return resp, err
		}

		if len(out.ToolCalls) == 0 {
			if next := st.pending(); next != nil {
				msgs = a.force(ctx, &resp, st, next, query, out.Content, msgs)
				continue
			}
			return a.finish(&resp, st, out.Content), nil
		}

		malformed = 0
		msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: out.Content, ToolCalls: out.ToolCalls})
		for _, call := range out.ToolCalls {
			content, ok := a.dispatch(ctx, st, call, query)
			if !ok {
				malformed++
			}
			msgs = append(msgs, llm.Message{Role: llm.RoleTool, Content: content, ToolCallID: call.ID})
		}
	}

	if err := ctx.Err(); err != nil {
		return resp, err
	}
	if malformed > 0 && st.calls == 0 {
		return resp, &Failure{Cause: fmt.Errorf("%w: no valid tool call within %d steps", llm.ErrMalformed, a.opts.MaxSteps), Step: resp.Steps}
	}
	for next := st.pending(); next != nil; next = st.pending() {
		msgs = a.force(ctx, &resp, st, next, query, "", msgs)
		if err := ctx.Err(); err != nil {
			return resp, err
		}
	}

	a.logger.Debug("step budget exhausted, requesting final answer", zap.Int("steps", resp.Steps))
	out, err := a.complete(ctx, &resp, llm.Request{System: systemPrompt, Messages: msgs})
	if err != nil {
		return resp, err
	}
	return a.finish(&resp, st, out.Content), nil
}

func (a *Agent) complete(ctx context.Context, resp *Response, req llm.Request) (llm.Response, error) {
	out, err := a.client.Complete(ctx, req)
	resp.Steps++
	resp.Usage.Add(out.Usage)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return out, cerr
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return out, err
		}
		return out, &Failure{Cause: err, Step: resp.Steps}
	}
	return out, nil
}

// force issues a policy-mandated call with the user query and threads it into
// the conversation as if the model had requested it.
func (a *Agent) force(ctx context.Context, resp *Response, st *state, t tool.Tool, query, content string, msgs []llm.Message) []llm.Message {
	def := t.Definition()
	resp.Forced++
	args, _ := json.Marshal(tool.Call{Query: query})
	call := llm.ToolCall{ID: fmt.Sprintf("forced_%d", resp.Forced), Name: def.Name, Arguments: string(args)}
	a.logger.Debug("forcing tool call",
		zap.String("tool", def.Name),
		zap.String("capability", string(def.Capability)),
		zap.Bool("anti_bypass", st.calls == 0))

	msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: content, ToolCalls: []llm.ToolCall{call}})
	rendered := st.invoke(tool.WithForced(ctx), t, tool.Call{Query: query})
	return append(msgs, llm.Message{Role: llm.RoleTool, Content: rendered, ToolCallID: call.ID})
}

// dispatch runs one model-requested call. ok is false when the call named an
// unknown tool or carried unreadable arguments; the model is told so and the
// call does not count as an attempt.
func (a *Agent) dispatch(ctx context.Context, st *state, call llm.ToolCall, query string) (string, bool) {
	t, found := st.tools.Get(call.Name)
	if !found {
		a.logger.Warn("model requested unknown tool", zap.String("tool", call.Name))
		return fmt.Sprintf("error: unknown tool %q", call.Name), false
	}
	c, err := parseCall(call.Arguments)
	if err != nil {
		a.logger.Warn("unreadable tool arguments", zap.String("tool", call.Name), zap.Error(err))
		return fmt.Sprintf("error: arguments for %s are not valid JSON: %v", call.Name, err), false
	}
	if strings.TrimSpace(c.Query) == "" {
		c.Query = query
	}
	return st.invoke(ctx, t, c), true
}

func parseCall(raw string) (tool.Call, error) {
	var c tool.Call
	if strings.TrimSpace(raw) == "" {
		return c, errors.New("empty arguments")
	}
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return c, err
	}
	return c, nil
}

func (a *Agent) finish(resp *Response, st *state, text string) Response {
	entries := st.entries()
	switch {
	case !st.found:
		resp.Text = answer.Compose(entries, answer.NoInformation(entries))
	case a.opts.RawFormat || answer.WellFormed(text):
		resp.Text = text
	default:
		resp.Text = answer.Compose(entries, stripLog(text))
	}
	return *resp
}

// stripLog drops a stray answer marker so Compose does not nest sections.
func stripLog(text string) string {
	text = strings.TrimSpace(text)
	if _, at := answer.MarkerPositions(text); at >= 0 && at+len(answer.AnswerMarker) <= len(text) {
		return text[at+len(answer.AnswerMarker):]
	}
	return text
}
