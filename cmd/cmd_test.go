package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/papertune/internal/config"
	"github.com/signalnine/papertune/internal/dataset"
	"github.com/signalnine/papertune/internal/history"
	"github.com/signalnine/papertune/internal/result"
	"github.com/signalnine/papertune/internal/tool"
)

// writeConfig creates a config that needs no network and keeps every file
// under a temp dir.
func writeConfig(t *testing.T) (path, dir string) {
	t.Helper()
	dir = t.TempDir()
	path = filepath.Join(dir, "papertune.yaml")
	data := fmt.Sprintf(`corpus:
  backend: none
results:
  dir: %s
history:
  path: %s
log:
  level: error
secrets:
  env_file: missing.env
`, filepath.Join(dir, "results"), filepath.Join(dir, "history.db"))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path, dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestListCommand(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	out, err := execute(t, "--config", cfgPath, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "training (20):")
	assert.Contains(t, out, "validation (5):")
}

func TestMissingExplicitConfig(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "list")
	assert.Error(t, err)
}

func TestLoadConfigDefaultsWhenImplicitFileMissing(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), defaultConfigFile), false)
	require.NoError(t, err)
	assert.Equal(t, "template", cfg.Optimize.Proposer)
}

func TestDiffCommand(t *testing.T) {
	cfgPath, dir := writeConfig(t)
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("Search the corpus first.\nAnswer briefly."), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("Search the corpus first.\nAnswer with citations."), 0o644))

	out, err := execute(t, "--config", cfgPath, "diff", a, b)
	require.NoError(t, err)
	assert.Contains(t, out, "Added:   citations.")
	assert.Contains(t, out, "Removed: briefly.")
	assert.Contains(t, out, "line 2:")

	out, err = execute(t, "--config", cfgPath, "diff", "baseline", a)
	require.NoError(t, err)
	assert.Contains(t, out, "a: baseline")

	_, err = execute(t, "--config", cfgPath, "diff", a, filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

// storeRun writes one evaluation with one graded and one ungraded rollout.
func storeRun(t *testing.T, resultsDir string) string {
	t.Helper()
	runDir, err := result.CreateRunDir(resultsDir)
	require.NoError(t, err)
	outcomes := []*result.Outcome{
		{
			Partition:   dataset.Training,
			Index:       0,
			Task:        dataset.Task{Query: "What is attention?"},
			FinalAnswer: "TOOL_LOG:\n- corpus_search: found\n\nANSWER:\nAttention Is All You Need (1706.03762)",
			Trace: []result.ToolInvocation{{
				ToolName:  "corpus_search",
				Status:    tool.StatusFound,
				Output:    "Attention Is All You Need (1706.03762)",
				Citations: []result.Citation{{Title: "Attention Is All You Need", Identifier: "1706.03762"}},
			}},
			Scores: &result.Scores{Total: 0.1},
		},
		{
			Partition:     dataset.Training,
			Index:         1,
			Task:          dataset.Task{Query: "Latest diffusion papers"},
			Failed:        true,
			FailureReason: "timeout",
		},
	}
	for _, o := range outcomes {
		require.NoError(t, result.WriteOutcome(result.RolloutDir(runDir, "baseline", dataset.Training, o.Index), o))
	}
	rep := result.NewReport("baseline", "feedfacefeedfacefeedfacefeedface", dataset.Training, outcomes)
	require.NoError(t, result.WriteReport(result.EvalDir(runDir, "baseline", dataset.Training), rep))
	return runDir
}

func TestReportCommand(t *testing.T) {
	cfgPath, dir := writeConfig(t)
	storeRun(t, filepath.Join(dir, "results"))

	out, err := execute(t, "--config", cfgPath, "report")
	require.NoError(t, err)
	assert.Contains(t, out, "baseline")
	assert.Contains(t, out, "feedfacefeed")

	out, err = execute(t, "--config", cfgPath, "report", "--format", "markdown")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "| Label |"))

	htmlPath := filepath.Join(dir, "report.html")
	_, err = execute(t, "--config", cfgPath, "report", "--format", "html", "--out", htmlPath)
	require.NoError(t, err)
	data, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<table>")

	_, err = execute(t, "--config", cfgPath, "report", "--format", "xlsx")
	assert.Error(t, err, "xlsx needs --out")
}

func TestRegradeCommand(t *testing.T) {
	cfgPath, dir := writeConfig(t)
	runDir := storeRun(t, filepath.Join(dir, "results"))

	out, err := execute(t, "--config", cfgPath, "regrade", runDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Regraded 2 rollouts")

	o, err := result.ReadOutcome(filepath.Join(result.RolloutDir(runDir, "baseline", dataset.Training, 0), result.OutcomeFile))
	require.NoError(t, err)
	require.NotNil(t, o.Scores)
	assert.Greater(t, o.Scores.Total, 0.1)
}

func TestHistoryCommand(t *testing.T) {
	cfgPath, dir := writeConfig(t)

	out, err := execute(t, "--config", cfgPath, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No evaluations recorded.")

	ctx := context.Background()
	store, err := history.Open(ctx, filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	rep := &result.Report{Label: "iter_0001_c01", PromptFingerprint: "abcdefabcdefabcdef", Partition: dataset.Training, Mean: 0.72, PerTask: make([]result.Scores, 3)}
	_, err = store.Record(ctx, "run-1234567890", 1, true, rep)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	out, err = execute(t, "--config", cfgPath, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "iter_0001_c01")
	assert.Contains(t, out, "0.720")
	assert.Contains(t, out, "run-1234")

	out, err = execute(t, "--config", cfgPath, "history", "--best", "validation")
	require.NoError(t, err)
	assert.Contains(t, out, "No evaluations recorded.")
}

func TestNewProposer(t *testing.T) {
	tests := []struct {
		name     string
		proposer string
		variants string
		want     string
		wantErr  bool
	}{
		{"template", "template", "", "template", false},
		{"files", "files", "variants", "files", false},
		{"files without dir", "files", "", "", true},
		{"llm", "llm", "", "llm", false},
		{"unknown", "genetic", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Optimize: config.Optimize{Proposer: tt.proposer, VariantsDir: tt.variants}}
			p, err := newProposer(cfg, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Name())
		})
	}
}

func TestNewTools(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Corpus.Backend = "none"

	set, closeFn, err := newTools(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer closeFn()
	assert.Equal(t, 2, set.Len())
	_, ok := set.Get("live_search")
	assert.True(t, ok)

	cfg.LiveSearch.Disabled = true
	set, closeFn2, err := newTools(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer closeFn2()
	assert.Equal(t, 1, set.Len())
	corpusTool, ok := set.Get("corpus_search")
	require.True(t, ok)
	assert.Equal(t, tool.StatusError, corpusTool.Invoke(context.Background(), tool.Call{Query: "q"}).Status)
}

func TestFlagOverridesLeaveLoadedConfigAlone(t *testing.T) {
	base, err := config.Default()
	require.NoError(t, err)
	iterations, workers, output := base.Optimize.Iterations, base.Evaluation.Workers, base.Optimize.Output

	flagIterations, flagOutput, flagParallel = iterations+7, "elsewhere.txt", workers+3
	t.Cleanup(func() { flagIterations, flagOutput, flagParallel = 0, "", 0 })

	opt := optimizeConfig(base)
	assert.Equal(t, iterations+7, opt.Optimize.Iterations)
	assert.Equal(t, "elsewhere.txt", opt.Optimize.Output)
	ev := evalConfig(base)
	assert.Equal(t, workers+3, ev.Evaluation.Workers)

	assert.Equal(t, iterations, base.Optimize.Iterations)
	assert.Equal(t, output, base.Optimize.Output)
	assert.Equal(t, workers, base.Evaluation.Workers)
}
