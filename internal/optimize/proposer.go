package optimize

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/signalnine/papertune/internal/dataset"
	"github.com/signalnine/papertune/internal/result"
)

// Proposal is a candidate prompt text and where it came from.
type Proposal struct {
	Text   string
	Source string
}

// Feedback is what a proposer may look at when generating variants.
type Feedback struct {
	Iteration int
	Best      string
	Report    *result.Report
	Tasks     []dataset.Task
	// Evaluated reports whether a text was already scored in this run.
	Evaluated func(text string) bool
}

func (fb Feedback) evaluated(text string) bool {
	return fb.Evaluated != nil && fb.Evaluated(text)
}

// ErrNoNewCandidates is returned by proposers that are not exhaustible when a
// round produced nothing new. The loop counts it as a rejected iteration.
var ErrNoNewCandidates = errors.New("no new candidates this round")

// Proposer generates up to n candidate prompts. Returning no proposals and
// no error means the strategy has nothing left to offer.
type Proposer interface {
	Name() string
	Propose(ctx context.Context, fb Feedback, n int) ([]Proposal, error)
}

// TaskScore pairs a task with its score in the best report.
type TaskScore struct {
	Index  int
	Task   dataset.Task
	Scores result.Scores
}

// Weakest returns up to k tasks with the lowest totals, lowest first.
func (fb Feedback) Weakest(k int) []TaskScore {
	if fb.Report == nil {
		return nil
	}
	var out []TaskScore
	for i, s := range fb.Report.PerTask {
		if i >= len(fb.Tasks) {
			break
		}
		out = append(out, TaskScore{Index: i, Task: fb.Tasks[i], Scores: s})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Scores.Total < out[j].Scores.Total })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// dimensionMeans averages each sub-score across the best report.
func (fb Feedback) dimensionMeans() map[string]float64 {
	means := map[string]float64{}
	if fb.Report == nil || len(fb.Report.PerTask) == 0 {
		return means
	}
	for _, s := range fb.Report.PerTask {
		means[dimToolUsage] += s.ToolUsage
		means[dimFormat] += s.FormatCompliance
		means[dimCompleteness] += s.Completeness
		means[dimQuality] += s.Quality
	}
	n := float64(len(fb.Report.PerTask))
	for k := range means {
		means[k] /= n
	}
	return means
}

const (
	dimToolUsage    = "tool_usage"
	dimFormat       = "format_compliance"
	dimCompleteness = "completeness"
	dimQuality      = "quality"
)

// edit is a paragraph appended to the prompt to shore up one sub-score.
type edit struct {
	name      string
	dimension string
	text      string
}

var edits = []edit{
	{
		name:      "fallback-rule",
		dimension: dimToolUsage,
		text: "## Fallback Rule\n\nIf corpus_search returns RAG_EMPTY or RAG_ERROR, call live_search with the same question before writing anything. " +
			"Never finish with only one tool attempted when the first one found nothing.",
	},
	{
		name:      "recency-routing",
		dimension: dimToolUsage,
		text: "## Recent Work\n\nWhen the question mentions recent, latest, newest, new, a year such as 2024, or asks to search arXiv, " +
			"call live_search first and use corpus_search only for background.",
	},
	{
		name:      "format-reminder",
		dimension: dimFormat,
		text: "## Format Reminder\n\nYour reply MUST begin with the line TOOL_LOG: followed by one line per tool, and MUST contain a line ANSWER: " +
			"after the log. Replies without both sections are discarded.",
	},
	{
		name:      "coverage",
		dimension: dimCompleteness,
		text: "## Coverage\n\nName the key concepts of the question explicitly in the answer and restate the main terms the user asked about, " +
			"so that every part of the question is addressed.",
	},
	{
		name:      "citations",
		dimension: dimQuality,
		text: "## Citations\n\nQuote the exact paper title and arXiv ID for every claim, exactly as the tool returned them. " +
			"Do not mention any arXiv ID that did not appear in a tool result.",
	},
	{
		name:      "no-information",
		dimension: dimQuality,
		text: "## Nothing Found\n\nIf every tool returned an empty or error marker, answer with \"No information found\" and list which tools you tried. " +
			"Do not answer from memory.",
	},
}

// TemplateProposer appends fixed guidance paragraphs to the best prompt,
// targeting the weakest sub-scores first. It is deterministic.
type TemplateProposer struct{}

func (TemplateProposer) Name() string { return "template" }

func (TemplateProposer) Propose(_ context.Context, fb Feedback, n int) ([]Proposal, error) {
	means := fb.dimensionMeans()
	order := make([]edit, len(edits))
	copy(order, edits)
	sort.SliceStable(order, func(i, j int) bool {
		return means[order[i].dimension] < means[order[j].dimension]
	})

	var out []Proposal
	for _, e := range order {
		if len(out) >= n {
			break
		}
		if strings.Contains(fb.Best, e.text) {
			continue
		}
		text := strings.TrimRight(fb.Best, "\n") + "\n\n" + e.text + "\n"
		if fb.evaluated(text) {
			continue
		}
		out = append(out, Proposal{Text: text, Source: "template:" + e.name})
	}
	return out, nil
}
