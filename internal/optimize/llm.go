package optimize

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/signalnine/papertune/internal/llm"
)

const rewriteSystem = `You improve system prompts for a research assistant agent that answers questions about academic papers with two tools: corpus_search (an ingested arXiv knowledge base) and live_search (the arXiv API).

Each answer is scored on tool usage, a strict TOOL_LOG:/ANSWER: output format, covering the expected content, and citing only what the tools returned.

Rewrite the prompt you are given so the weak tasks would score higher. Keep the tool names, the marker vocabulary (RAG_EMPTY, RAG_ERROR, ARXIV_EMPTY, ARXIV_ERROR) and the output format. Return only the new prompt between <prompt> and </prompt>.`

var promptTag = regexp.MustCompile(`(?s)<prompt>\s*(.*?)\s*</prompt>`)

// LLMProposer asks a language model to rewrite the best prompt, showing it
// the weakest tasks of the last evaluation.
type LLMProposer struct {
	client llm.Client
	// Weakest is how many low-scoring tasks go into the request.
	Weakest int
}

func NewLLMProposer(client llm.Client) *LLMProposer {
	return &LLMProposer{client: client, Weakest: 5}
}

func (p *LLMProposer) Name() string { return "llm" }

func (p *LLMProposer) Propose(ctx context.Context, fb Feedback, n int) ([]Proposal, error) {
	msg := p.request(fb)
	var out []Proposal
	var lastErr error
	for i := 0; i < n; i++ {
		resp, err := p.client.Complete(ctx, llm.Request{
			System:   rewriteSystem,
			Messages: []llm.Message{{Role: llm.RoleUser, Content: msg}},
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		text := extractPrompt(resp.Content)
		if text == "" || fb.evaluated(text) {
			continue
		}
		out = append(out, Proposal{Text: text, Source: fmt.Sprintf("llm:%s", p.client.Model())})
	}
	if len(out) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("rewriting prompt: %w", lastErr)
		}
		return nil, ErrNoNewCandidates
	}
	return out, nil
}

func (p *LLMProposer) request(fb Feedback) string {
	var b strings.Builder
	b.WriteString("Current prompt:\n<prompt>\n")
	b.WriteString(fb.Best)
	b.WriteString("\n</prompt>\n\n")
	if fb.Report != nil {
		fmt.Fprintf(&b, "Training mean %.3f (min %.3f, max %.3f, %d failed rollouts).\n",
			fb.Report.Mean, fb.Report.Min, fb.Report.Max, fb.Report.Failures)
		means := fb.dimensionMeans()
		fmt.Fprintf(&b, "Sub-score means: tool_usage %.2f, format %.2f, completeness %.2f, quality %.2f.\n\n",
			means[dimToolUsage], means[dimFormat], means[dimCompleteness], means[dimQuality])
	}
	if weak := fb.Weakest(p.Weakest); len(weak) > 0 {
		b.WriteString("Weakest tasks:\n")
		for _, w := range weak {
			fmt.Fprintf(&b, "- %q total %.2f (tools %.2f, format %.2f, completeness %.2f, quality %.2f)",
				w.Task.Query, w.Scores.Total, w.Scores.ToolUsage, w.Scores.FormatCompliance, w.Scores.Completeness, w.Scores.Quality)
			if len(w.Task.ExpectedToolUsage) > 0 {
				fmt.Fprintf(&b, "; expected tools %s", strings.Join(w.Task.ExpectedToolUsage, ", "))
			}
			if len(w.Task.ExpectedOutputContains) > 0 {
				fmt.Fprintf(&b, "; answer should mention %s", strings.Join(w.Task.ExpectedOutputContains, ", "))
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func extractPrompt(content string) string {
	if m := promptTag.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(content)
}
