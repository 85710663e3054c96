package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/signalnine/papertune/internal/dataset"
	"github.com/signalnine/papertune/internal/result"
)

func report(label string, mean float64, p dataset.Partition) *result.Report {
	return &result.Report{Label: label, PromptFingerprint: label + "-fp", Partition: p, Mean: mean, Min: mean, Max: mean, PerTask: make([]result.Scores, 5)}
}

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "sub", "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	run := NewRunID()
	if _, err := s.Record(ctx, run, 0, true, report("baseline", 0.55, dataset.Training)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Record(ctx, run, 1, true, report("candidate-1", 0.70, dataset.Training)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Record(ctx, NewRunID(), 0, false, report("other", 0.90, dataset.Validation)); err != nil {
		t.Fatal(err)
	}

	entries, err := s.List(ctx, run, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries for run, got %d", len(entries))
	}
	if entries[0].Label != "candidate-1" || !entries[0].Accepted || entries[0].Tasks != 5 {
		t.Errorf("unexpected newest entry: %+v", entries[0])
	}
	if entries[1].RecordedAt.IsZero() {
		t.Error("recorded_at not parsed")
	}

	all, err := s.List(ctx, "", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("limit ignored, got %d", len(all))
	}

	best, ok, err := s.Best(ctx, string(dataset.Training))
	if err != nil || !ok {
		t.Fatalf("best: %v %v", ok, err)
	}
	if best.Label != "candidate-1" {
		t.Errorf("expected candidate-1 as best training entry, got %s", best.Label)
	}
}
