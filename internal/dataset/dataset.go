package dataset

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

type Partition string

const (
	Training   Partition = "training"
	Validation Partition = "validation"
)

func ParsePartition(s string) (Partition, error) {
	switch Partition(strings.ToLower(strings.TrimSpace(s))) {
	case Training, "train":
		return Training, nil
	case Validation, "val":
		return Validation, nil
	}
	return "", fmt.Errorf("unknown partition %q (want training or validation)", s)
}

type Task struct {
	Query                  string   `yaml:"query" json:"query"`
	ExpectedToolUsage      []string `yaml:"expected_tool_usage,omitempty" json:"expected_tool_usage,omitempty"`
	ExpectedOutputContains []string `yaml:"expected_output_contains,omitempty" json:"expected_output_contains,omitempty"`
	QualityScore           *float64 `yaml:"quality_score,omitempty" json:"quality_score,omitempty"`
	PreferredFirstTool     string   `yaml:"preferred_first_tool,omitempty" json:"preferred_first_tool,omitempty"`
}

func (t Task) clone() Task {
	t.ExpectedToolUsage = slices.Clone(t.ExpectedToolUsage)
	t.ExpectedOutputContains = slices.Clone(t.ExpectedOutputContains)
	if t.QualityScore != nil {
		q := *t.QualityScore
		t.QualityScore = &q
	}
	return t
}

type file struct {
	Training   []Task `yaml:"training"`
	Validation []Task `yaml:"validation"`
}

// Dataset holds the two task partitions. It is read-only after construction;
// every accessor returns copies.
type Dataset struct {
	training   []Task
	validation []Task
}

// New builds a dataset from the given partitions, rejecting blank queries,
// out-of-range quality scores, and queries shared between partitions.
func New(training, validation []Task) (*Dataset, error) {
	d := &Dataset{}
	for _, t := range training {
		d.training = append(d.training, t.clone())
	}
	for _, t := range validation {
		d.validation = append(d.validation, t.clone())
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dataset) validate() error {
	seen := make(map[string]Partition)
	check := func(p Partition, tasks []Task) error {
		for i, t := range tasks {
			q := strings.TrimSpace(t.Query)
			if q == "" {
				return fmt.Errorf("%s task %d: query is required", p, i)
			}
			if t.QualityScore != nil && (*t.QualityScore < 0 || *t.QualityScore > 1) {
				return fmt.Errorf("%s task %d: quality_score %v outside [0,1]", p, i, *t.QualityScore)
			}
			key := strings.ToLower(q)
			if prev, ok := seen[key]; ok && prev != p {
				return fmt.Errorf("query %q appears in both %s and %s", q, prev, p)
			}
			seen[key] = p
		}
		return nil
	}
	if err := check(Training, d.training); err != nil {
		return err
	}
	return check(Validation, d.validation)
}

// Tasks returns a copy of the partition in its fixed order.
func (d *Dataset) Tasks(p Partition) ([]Task, error) {
	var src []Task
	switch p {
	case Training:
		src = d.training
	case Validation:
		src = d.validation
	default:
		return nil, fmt.Errorf("unknown partition %q", p)
	}
	out := make([]Task, len(src))
	for i, t := range src {
		out[i] = t.clone()
	}
	return out, nil
}

func (d *Dataset) Len(p Partition) int {
	switch p {
	case Training:
		return len(d.training)
	case Validation:
		return len(d.validation)
	}
	return 0
}

// Default returns the built-in arXiv question set.
func Default() (*Dataset, error) {
	return parse(defaultYAML, "default.yaml")
}

func parse(data []byte, name string) (*Dataset, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing dataset %s: %w", name, err)
	}
	return New(f.Training, f.Validation)
}

// Load reads every file matched by the glob patterns and concatenates their
// partitions in pattern then lexical order. No patterns means the default set.
func Load(patterns []string) (*Dataset, error) {
	if len(patterns) == 0 {
		return Default()
	}
	var merged file
	matchedAny := false
	for _, pattern := range patterns {
		base, pat := doublestar.SplitPattern(filepath.ToSlash(pattern))
		matches, err := doublestar.Glob(os.DirFS(base), pat, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("matching %s: %w", pattern, err)
		}
		slices.Sort(matches)
		for _, m := range matches {
			path := filepath.Join(base, m)
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("reading dataset %s: %w", path, err)
			}
			var f file
			if err := yaml.Unmarshal(data, &f); err != nil {
				return nil, fmt.Errorf("parsing dataset %s: %w", path, err)
			}
			merged.Training = append(merged.Training, f.Training...)
			merged.Validation = append(merged.Validation, f.Validation...)
			matchedAny = true
		}
	}
	if !matchedAny {
		return nil, fmt.Errorf("no dataset files match %v", patterns)
	}
	return New(merged.Training, merged.Validation)
}
