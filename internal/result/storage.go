package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/signalnine/papertune/internal/dataset"
)

const (
	OutcomeFile = "rollout.json"
	ReportFile  = "report.json"
)

func CreateRunDir(baseDir string) (string, error) {
	runsDir := filepath.Join(baseDir, "runs")
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")
	runDir := filepath.Join(runsDir, stamp)
	runDir, err := filepath.Abs(runDir)
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

// EvalDir is where one candidate's evaluation on one partition is stored.
func EvalDir(runDir, label string, p dataset.Partition) string {
	return filepath.Join(runDir, label, string(p))
}

func RolloutDir(runDir, label string, p dataset.Partition, index int) string {
	return filepath.Join(EvalDir(runDir, label, p), strconv.Itoa(index))
}

func WriteOutcome(dir string, o *Outcome) error {
	return writeJSON(dir, OutcomeFile, o)
}

func ReadOutcome(path string) (*Outcome, error) {
	var o Outcome
	if err := readJSON(path, &o); err != nil {
		return nil, fmt.Errorf("reading outcome: %w", err)
	}
	return &o, nil
}

func WriteReport(dir string, r *Report) error {
	return writeJSON(dir, ReportFile, r)
}

func ReadReport(path string) (*Report, error) {
	var r Report
	if err := readJSON(path, &r); err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	r.Dir = filepath.Dir(path)
	return &r, nil
}

func writeJSON(dir, name string, v any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", name, err)
	}
	return os.WriteFile(filepath.Join(dir, name), data, 0o644)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// Walk calls fn for every stored outcome under root, in lexical path order.
// Unreadable outcome files are skipped.
func Walk(root string, fn func(path string, o *Outcome) error) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != OutcomeFile {
			return nil
		}
		o, err := ReadOutcome(path)
		if err != nil {
			return nil
		}
		return fn(path, o)
	})
}

// Reports returns every report stored under root.
func Reports(root string) ([]*Report, error) {
	var reports []*Report
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != ReportFile {
			return nil
		}
		r, err := ReadReport(path)
		if err != nil {
			return nil
		}
		reports = append(reports, r)
		return nil
	})
	return reports, err
}
