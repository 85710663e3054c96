package pricing_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/signalnine/papertune/internal/pricing"
)

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func TestLoadPricing(t *testing.T) {
	dir := t.TempDir()
	content := `openai:
  gpt-4o:
    input: 0.0025
    output: 0.01
`
	path := filepath.Join(dir, "pricing.yaml")
	os.WriteFile(path, []byte(content), 0o644)

	table, err := pricing.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cost := table.Cost("openai", "gpt-4o", 1000, 500)
	want := 0.0075
	if abs(cost-want) > 0.0001 {
		t.Errorf("got %f, want %f", cost, want)
	}
}

func TestCostUnknownModel(t *testing.T) {
	table := &pricing.Table{}
	cost := table.Cost("unknown", "unknown", 1000, 500)
	if cost != 0 {
		t.Errorf("expected 0 for unknown model, got %f", cost)
	}
	var nilTable *pricing.Table
	if nilTable.Cost("openai", "gpt-4o", 1, 1) != 0 {
		t.Error("expected 0 for nil table")
	}
}

func TestCostDatedSnapshot(t *testing.T) {
	table := pricing.Default()
	got := table.Cost("openai", "gpt-4o-mini-2024-07-18", 2000, 1000)
	want := table.Cost("openai", "gpt-4o-mini", 2000, 1000)
	if want == 0 || abs(got-want) > 1e-12 {
		t.Errorf("snapshot cost %f, base cost %f", got, want)
	}
}

func TestLoadEmptyPathUsesDefault(t *testing.T) {
	table, err := pricing.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if table.Cost("openai", "gpt-4o-mini", 1000, 0) == 0 {
		t.Error("default table missing gpt-4o-mini")
	}
}
