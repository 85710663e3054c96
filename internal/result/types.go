package result

import (
	"time"

	"github.com/signalnine/papertune/internal/dataset"
	"github.com/signalnine/papertune/internal/tool"
)

// ToolInvocation is one recorded tool call. Output holds the rendered text the
// agent saw; Status distinguishes real output from the empty and error markers.
type ToolInvocation struct {
	Order     int         `json:"order"`
	ToolName  string      `json:"tool_name"`
	Input     string      `json:"input"`
	Output    string      `json:"output"`
	Status    tool.Status `json:"status"`
	Citations []Citation  `json:"citations,omitempty"`
	Forced    bool        `json:"forced,omitempty"`
}

// Citation is a title/identifier pair that a tool returned and an answer may echo.
type Citation struct {
	Title      string `json:"title,omitempty"`
	Identifier string `json:"identifier,omitempty"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

type Outcome struct {
	ID            string            `json:"id"`
	Partition     dataset.Partition `json:"partition"`
	Index         int               `json:"index"`
	Task          dataset.Task      `json:"task"`
	FinalAnswer   string            `json:"final_answer"`
	Trace         []ToolInvocation  `json:"tool_trace"`
	WallTimeMS    int64             `json:"wall_time_ms"`
	Failed        bool              `json:"failed"`
	FailureReason string            `json:"failure_reason,omitempty"`
	Model         string            `json:"model,omitempty"`
	Usage         Usage             `json:"usage"`
	CostUSD       float64           `json:"cost_usd,omitempty"`
	Scores        *Scores           `json:"scores,omitempty"`
}

// ToolNames returns the distinct tool names in the trace, in first-call order.
func (o *Outcome) ToolNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, inv := range o.Trace {
		if !seen[inv.ToolName] {
			seen[inv.ToolName] = true
			names = append(names, inv.ToolName)
		}
	}
	return names
}

type Scores struct {
	ToolUsage        float64 `json:"tool_usage"`
	FormatCompliance float64 `json:"format_compliance"`
	Completeness     float64 `json:"completeness"`
	Quality          float64 `json:"quality"`
	Total            float64 `json:"total"`
	FirstToolMatch   *bool   `json:"first_tool_match,omitempty"`
}

// Report is the aggregate of one evaluation of one prompt on one partition.
type Report struct {
	RunID             string            `json:"run_id,omitempty"`
	Label             string            `json:"label"`
	PromptFingerprint string            `json:"prompt_fingerprint"`
	Partition         dataset.Partition `json:"partition"`
	PerTask           []Scores          `json:"per_task_scores"`
	Mean              float64           `json:"mean"`
	Min               float64           `json:"min"`
	Max               float64           `json:"max"`
	Failures          int               `json:"failures"`
	FirstToolMatches  int               `json:"first_tool_matches"`
	FirstToolChecked  int               `json:"first_tool_checked"`
	TotalTokens       int               `json:"total_tokens"`
	TotalCostUSD      float64           `json:"total_cost_usd"`
	Started           time.Time         `json:"started"`
	Finished          time.Time         `json:"finished"`
	// Dir is where the report was read from; it is not stored.
	Dir string `json:"-"`
}

// NewReport aggregates graded outcomes in order. Outcomes without scores count
// as zero. The aggregate does not depend on outcome order.
func NewReport(label, fingerprint string, p dataset.Partition, outcomes []*Outcome) *Report {
	r := &Report{
		Label:             label,
		PromptFingerprint: fingerprint,
		Partition:         p,
		PerTask:           make([]Scores, len(outcomes)),
	}
	for i, o := range outcomes {
		var s Scores
		if o != nil && o.Scores != nil {
			s = *o.Scores
		}
		r.PerTask[i] = s
		if o == nil {
			r.Failures++
			continue
		}
		if o.Failed {
			r.Failures++
		}
		if s.FirstToolMatch != nil {
			r.FirstToolChecked++
			if *s.FirstToolMatch {
				r.FirstToolMatches++
			}
		}
		r.TotalTokens += o.Usage.Total()
		r.TotalCostUSD += o.CostUSD
	}
	r.Mean, r.Min, r.Max = Aggregate(r.PerTask)
	return r
}

// Aggregate returns mean, min and max of the totals. Empty input yields zeros.
func Aggregate(scores []Scores) (mean, min, max float64) {
	if len(scores) == 0 {
		return 0, 0, 0
	}
	min, max = scores[0].Total, scores[0].Total
	var sum float64
	for _, s := range scores {
		sum += s.Total
		if s.Total < min {
			min = s.Total
		}
		if s.Total > max {
			max = s.Total
		}
	}
	return sum / float64(len(scores)), min, max
}

func (r *Report) PassRate() float64 {
	if len(r.PerTask) == 0 {
		return 0
	}
	return float64(len(r.PerTask)-r.Failures) / float64(len(r.PerTask))
}

func (r *Report) FirstToolRate() float64 {
	if r.FirstToolChecked == 0 {
		return 0
	}
	return float64(r.FirstToolMatches) / float64(r.FirstToolChecked)
}
