// Package grader scores rollout outcomes. Grading is a pure function of the
// outcome: no I/O, no randomness, and no errors.
package grader

import (
	"strings"

	"github.com/signalnine/papertune/internal/answer"
	"github.com/signalnine/papertune/internal/result"
	"github.com/signalnine/papertune/internal/tool"
)

// MissingPenalty is subtracted from completeness for each expected substring
// absent from the answer.
const MissingPenalty = 0.25

const (
	citedQuality       = 0.8
	noFabricationBonus = 0.2
	unclearEmptyScore  = 0.5
)

// minTitleLen keeps very short titles from matching by accident.
const minTitleLen = 4

// Grade scores an outcome with DefaultWeights.
func Grade(o *result.Outcome) result.Scores {
	return GradeWeighted(o, DefaultWeights)
}

func GradeWeighted(o *result.Outcome, w Weights) result.Scores {
	if o == nil {
		return result.Scores{}
	}
	s := result.Scores{FirstToolMatch: firstToolMatch(o)}
	// A failed rollout's partial trace is diagnostic only.
	if !o.Failed {
		s.ToolUsage = ToolUsage(o)
		s.FormatCompliance = FormatCompliance(o.FinalAnswer)
		s.Completeness = Completeness(false, o.FinalAnswer, o.Task.ExpectedOutputContains)
		s.Quality = Quality(o.Trace, o.FinalAnswer)
	}
	s.Total = CompositeScore(s, w)
	return s
}

// ToolUsage is the fraction of expected tools present in the trace. With no
// expectation any tool call scores 1; no tool call always scores 0.
func ToolUsage(o *result.Outcome) float64 {
	if len(o.Trace) == 0 {
		return 0
	}
	used := make(map[string]bool)
	for _, name := range o.ToolNames() {
		used[answer.Fold(strings.TrimSpace(name))] = true
	}
	expected := make(map[string]bool)
	for _, name := range o.Task.ExpectedToolUsage {
		if name = strings.TrimSpace(name); name != "" {
			expected[answer.Fold(name)] = true
		}
	}
	if len(expected) == 0 {
		return 1
	}
	var hit int
	for name := range expected {
		if used[name] {
			hit++
		}
	}
	return float64(hit) / float64(len(expected))
}

func FormatCompliance(text string) float64 {
	logAt, answerAt := answer.MarkerPositions(text)
	switch {
	case logAt >= 0 && answerAt > logAt:
		return 1
	case logAt >= 0 || answerAt >= 0:
		return 0.5
	}
	return 0
}

func Completeness(failed bool, text string, expected []string) float64 {
	if failed || strings.TrimSpace(text) == "" {
		return 0
	}
	folded := answer.Fold(text)
	score := 1.0
	for _, want := range expected {
		want = strings.TrimSpace(want)
		if want == "" {
			continue
		}
		if !strings.Contains(folded, answer.Fold(want)) {
			score -= MissingPenalty
		}
	}
	return clamp(score)
}

// Quality rewards citing what the tools returned and penalizes identifiers
// that no tool returned. When nothing was found, an explicit no-information
// statement is the correct answer.
func Quality(trace []result.ToolInvocation, text string) float64 {
	if len(trace) == 0 || strings.TrimSpace(text) == "" {
		return 0
	}
	folded := answer.Fold(text)

	known := make(map[string]bool)
	var anyFound, cited bool
	for _, inv := range trace {
		for _, id := range answer.Identifiers(inv.Output) {
			known[id] = true
		}
		if inv.Status != tool.StatusFound {
			continue
		}
		anyFound = true
		for _, c := range inv.Citations {
			if id := answer.NormalizeIdentifier(c.Identifier); id != "" {
				known[id] = true
				if strings.Contains(folded, answer.Fold(id)) {
					cited = true
				}
			}
			title := strings.TrimSpace(c.Title)
			if len(title) >= minTitleLen && strings.Contains(folded, answer.Fold(title)) {
				cited = true
			}
		}
	}

	fabricated := false
	for _, id := range answer.Identifiers(text) {
		if !known[id] {
			fabricated = true
			break
		}
	}

	if anyFound {
		if !cited {
			return 0
		}
		if fabricated {
			return citedQuality
		}
		return citedQuality + noFabricationBonus
	}
	switch {
	case fabricated:
		return 0
	case answer.StatesNoInformation(text):
		return 1
	}
	return unclearEmptyScore
}

func firstToolMatch(o *result.Outcome) *bool {
	if o.Task.PreferredFirstTool == "" {
		return nil
	}
	match := len(o.Trace) > 0 && answer.Fold(o.Trace[0].ToolName) == answer.Fold(o.Task.PreferredFirstTool)
	return &match
}
