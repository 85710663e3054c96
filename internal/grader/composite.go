package grader

import (
	"math"

	"github.com/signalnine/papertune/internal/result"
)

type Weights struct {
	ToolUsage        float64
	FormatCompliance float64
	Completeness     float64
	Quality          float64
}

var DefaultWeights = Weights{
	ToolUsage:        0.30,
	FormatCompliance: 0.20,
	Completeness:     0.30,
	Quality:          0.20,
}

// CompositeScore is the normalized weighted sum of the four sub-scores,
// clamped to [0,1]. Zero weights fall back to DefaultWeights.
func CompositeScore(s result.Scores, w Weights) float64 {
	if w == (Weights{}) {
		w = DefaultWeights
	}
	total := w.ToolUsage + w.FormatCompliance + w.Completeness + w.Quality
	if total <= 0 {
		return 0
	}
	return clamp((s.ToolUsage*w.ToolUsage +
		s.FormatCompliance*w.FormatCompliance +
		s.Completeness*w.Completeness +
		s.Quality*w.Quality) / total)
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
