package report

import (
	"sort"
	"strings"

	"github.com/signalnine/papertune/internal/arxiv"
	"github.com/signalnine/papertune/internal/result"
)

// recencyKeywords mark a query as asking for recent work.
var recencyKeywords = []string{"recent", "latest", "new", "newest", "search arxiv", "2024", "2023", "published in"}

// IsRecency reports whether a query asks for recent work.
func IsRecency(query string) bool {
	q := strings.ToLower(query)
	for _, k := range recencyKeywords {
		if strings.Contains(q, k) {
			return true
		}
	}
	return false
}

// Behavior describes how the agent chose tools across rollouts.
type Behavior struct {
	Rollouts int `json:"rollouts"`
	// FirstTool counts rollouts by the tool they called first; "none" for
	// rollouts that called nothing.
	FirstTool map[string]int `json:"first_tool"`
	// BothTools counts rollouts that called more than one distinct tool.
	BothTools    int `json:"both_tools"`
	RecencyTasks int `json:"recency_tasks"`
	LiveFirst    int `json:"live_first"`
}

func (b Behavior) LiveFirstRate() float64 {
	if b.RecencyTasks == 0 {
		return 0
	}
	return float64(b.LiveFirst) / float64(b.RecencyTasks)
}

// Analyze tallies tool choice over outcomes.
func Analyze(outcomes []*result.Outcome) Behavior {
	b := Behavior{FirstTool: map[string]int{}}
	for _, o := range outcomes {
		b.Rollouts++
		first := "none"
		if len(o.Trace) > 0 {
			first = o.Trace[0].ToolName
		}
		b.FirstTool[first]++
		if len(o.ToolNames()) > 1 {
			b.BothTools++
		}
		if IsRecency(o.Task.Query) {
			b.RecencyTasks++
			if first == arxiv.ToolName {
				b.LiveFirst++
			}
		}
	}
	return b
}

// firstTools lists FirstTool entries by descending count, then name.
func (b Behavior) firstTools() []string {
	names := make([]string, 0, len(b.FirstTool))
	for n := range b.FirstTool {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		if b.FirstTool[names[i]] != b.FirstTool[names[j]] {
			return b.FirstTool[names[i]] > b.FirstTool[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}
