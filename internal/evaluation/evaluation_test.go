package evaluation_test

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/signalnine/papertune/internal/answer"
	"github.com/signalnine/papertune/internal/dataset"
	"github.com/signalnine/papertune/internal/evaluation"
	"github.com/signalnine/papertune/internal/grader"
	"github.com/signalnine/papertune/internal/result"
	"github.com/signalnine/papertune/internal/tool"
)

// fakeRollouts answers every task from a canned trace and fails the indexes
// listed in fail.
type fakeRollouts struct {
	mu      sync.Mutex
	fail    map[int]bool
	prompts []string
}

func (f *fakeRollouts) Run(_ context.Context, systemPrompt string, p dataset.Partition, index int, task dataset.Task) *result.Outcome {
	f.mu.Lock()
	f.prompts = append(f.prompts, systemPrompt)
	f.mu.Unlock()

	o := &result.Outcome{Partition: p, Index: index, Task: task}
	o.Trace = []result.ToolInvocation{{
		ToolName:  "corpus_search",
		Input:     task.Query,
		Status:    tool.StatusFound,
		Citations: []result.Citation{{Title: fmt.Sprintf("Paper %d", index)}},
	}}
	if f.fail[index] {
		o.Failed = true
		o.FailureReason = "timeout"
		return o
	}
	entries := []answer.LogEntry{{Tool: "corpus_search", Used: true, Status: tool.StatusFound}}
	o.FinalAnswer = answer.Compose(entries, fmt.Sprintf("See Paper %d on %s.", index, task.Query))
	return o
}

func newDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	var training []dataset.Task
	for i := 0; i < 6; i++ {
		training = append(training, dataset.Task{Query: fmt.Sprintf("topic %d", i), ExpectedToolUsage: []string{"corpus_search"}})
	}
	d, err := dataset.New(training, []dataset.Task{{Query: "held out"}})
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestRunContinuesAfterFailures(t *testing.T) {
	runDir := t.TempDir()
	fake := &fakeRollouts{fail: map[int]bool{1: true, 4: true}}
	ev := evaluation.New(newDataset(t), fake, evaluation.Options{Workers: 3, RunDir: runDir})

	report, err := ev.RunLabeled(context.Background(), "baseline", "the prompt", dataset.Training)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.PerTask) != 6 || report.Failures != 2 {
		t.Fatalf("expected 6 tasks with 2 failures, got %d and %d", len(report.PerTask), report.Failures)
	}
	if report.PerTask[1].Total != 0 || report.PerTask[4].Total != 0 {
		t.Errorf("failed rollouts should score zero: %+v", report.PerTask)
	}
	if report.PerTask[0].Total != 1 {
		t.Errorf("clean rollout should score 1, got %+v", report.PerTask[0])
	}
	if report.Min != 0 || report.Max != 1 || math.Abs(report.Mean-4.0/6.0) > 1e-9 {
		t.Errorf("unexpected aggregate mean=%v min=%v max=%v", report.Mean, report.Min, report.Max)
	}
	for _, p := range fake.prompts {
		if p != "the prompt" {
			t.Fatalf("rollout saw prompt %q", p)
		}
	}

	for i := 0; i < 6; i++ {
		path := filepath.Join(result.RolloutDir(runDir, "baseline", dataset.Training, i), result.OutcomeFile)
		o, err := result.ReadOutcome(path)
		if err != nil {
			t.Fatalf("outcome %d not persisted: %v", i, err)
		}
		if o.Scores == nil || o.Index != i {
			t.Errorf("outcome %d stored without scores", i)
		}
	}
	stored, err := result.ReadReport(filepath.Join(result.EvalDir(runDir, "baseline", dataset.Training), result.ReportFile))
	if err != nil {
		t.Fatal(err)
	}
	if stored.Mean != report.Mean || stored.PromptFingerprint == "" {
		t.Errorf("stored report differs: %+v", stored)
	}
}

func TestRunMaxTasks(t *testing.T) {
	ev := evaluation.New(newDataset(t), &fakeRollouts{}, evaluation.Options{MaxTasks: 2})
	report, err := ev.Run(context.Background(), "p", dataset.Training)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.PerTask) != 2 {
		t.Errorf("expected 2 tasks, got %d", len(report.PerTask))
	}
}

func TestRunErrors(t *testing.T) {
	ev := evaluation.New(newDataset(t), &fakeRollouts{}, evaluation.Options{})
	if _, err := ev.Run(context.Background(), "p", dataset.Partition("test")); err == nil {
		t.Error("expected error for unknown partition")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ev.Run(ctx, "p", dataset.Training); err == nil {
		t.Error("expected error for a context cancelled before work")
	}
}

func TestRegrade(t *testing.T) {
	runDir := t.TempDir()
	ev := evaluation.New(newDataset(t), &fakeRollouts{fail: map[int]bool{2: true}}, evaluation.Options{RunDir: runDir})
	before, err := ev.RunLabeled(context.Background(), "candidate-1", "p", dataset.Training)
	if err != nil {
		t.Fatal(err)
	}

	changes, reports, err := evaluation.Regrade(runDir, grader.DefaultWeights, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 6 || len(reports) != 1 {
		t.Fatalf("expected 6 changes and 1 report, got %d and %d", len(changes), len(reports))
	}
	for _, c := range changes {
		if c.Before != c.After {
			t.Errorf("regrading with the same weights changed %s: %v -> %v", c.Path, c.Before, c.After)
		}
	}
	if reports[0].Mean != before.Mean || reports[0].Label != "candidate-1" || reports[0].PromptFingerprint != before.PromptFingerprint {
		t.Errorf("rebuilt report differs: %+v", reports[0])
	}

	if _, _, err := evaluation.Regrade(t.TempDir(), grader.DefaultWeights, nil); err == nil {
		t.Error("expected error for a run dir without outcomes")
	}
}
