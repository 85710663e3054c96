package evaluation

import (
	"fmt"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/signalnine/papertune/internal/grader"
	"github.com/signalnine/papertune/internal/logging"
	"github.com/signalnine/papertune/internal/result"
)

// Change is the before/after total of one regraded outcome.
type Change struct {
	Path   string
	Before float64
	After  float64
}

// Regrade rescores every stored outcome under runDir with w, rewrites the
// outcome files and rebuilds each evaluation's report.
func Regrade(runDir string, w grader.Weights, logger *zap.Logger) ([]Change, []*result.Report, error) {
	log := logging.OrNop(logger)
	if w == (grader.Weights{}) {
		w = grader.DefaultWeights
	}

	groups := make(map[string][]*result.Outcome)
	var changes []Change
	err := result.Walk(runDir, func(path string, o *result.Outcome) error {
		var before float64
		if o.Scores != nil {
			before = o.Scores.Total
		}
		s := grader.GradeWeighted(o, w)
		o.Scores = &s
		if err := result.WriteOutcome(filepath.Dir(path), o); err != nil {
			log.Warn("rewriting outcome", zap.String("path", path), zap.Error(err))
			return nil
		}
		changes = append(changes, Change{Path: path, Before: before, After: s.Total})
		evalDir := filepath.Dir(filepath.Dir(path))
		groups[evalDir] = append(groups[evalDir], o)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walking run dir: %w", err)
	}
	if len(changes) == 0 {
		return nil, nil, fmt.Errorf("no %s files found in %s", result.OutcomeFile, runDir)
	}

	dirs := make([]string, 0, len(groups))
	for d := range groups {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)

	reports := make([]*result.Report, 0, len(dirs))
	for _, dir := range dirs {
		outcomes := groups[dir]
		sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Index < outcomes[j].Index })

		prev, _ := result.ReadReport(filepath.Join(dir, result.ReportFile))
		r := result.NewReport(filepath.Base(filepath.Dir(dir)), "", outcomes[0].Partition, outcomes)
		if prev != nil {
			r.Label, r.PromptFingerprint, r.RunID = prev.Label, prev.PromptFingerprint, prev.RunID
			r.Started, r.Finished = prev.Started, prev.Finished
		}
		if err := result.WriteReport(dir, r); err != nil {
			log.Warn("writing report", zap.String("dir", dir), zap.Error(err))
			continue
		}
		reports = append(reports, r)
	}
	return changes, reports, nil
}
