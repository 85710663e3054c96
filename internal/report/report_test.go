package report_test

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/signalnine/papertune/internal/dataset"
	"github.com/signalnine/papertune/internal/report"
	"github.com/signalnine/papertune/internal/result"
)

func outcome(index int, query string, failed bool, total float64, tools ...string) *result.Outcome {
	o := &result.Outcome{
		Partition: dataset.Training,
		Index:     index,
		Task:      dataset.Task{Query: query},
		Failed:    failed,
		Usage:     result.Usage{InputTokens: 100, OutputTokens: 50},
		CostUSD:   0.01,
		Scores:    &result.Scores{Total: total},
	}
	for i, t := range tools {
		o.Trace = append(o.Trace, result.ToolInvocation{Order: i, ToolName: t})
	}
	return o
}

func writeEval(t *testing.T, runDir, label string, outcomes []*result.Outcome) {
	t.Helper()
	for _, o := range outcomes {
		require.NoError(t, result.WriteOutcome(result.RolloutDir(runDir, label, dataset.Training, o.Index), o))
	}
	r := result.NewReport(label, "0123456789abcdef0123456789abcdef", dataset.Training, outcomes)
	require.NoError(t, result.WriteReport(result.EvalDir(runDir, label, dataset.Training), r))
}

func setup(t *testing.T) string {
	t.Helper()
	runDir := filepath.Join(t.TempDir(), "runs", "test-run")
	writeEval(t, runDir, "baseline", []*result.Outcome{
		outcome(0, "What is a transformer?", false, 0.9, "corpus_search"),
		outcome(1, "Latest work on diffusion models", false, 0.5, "corpus_search", "live_search"),
		outcome(2, "Papers published in 2023 on RLHF", true, 0),
	})
	writeEval(t, runDir, "iter_0001_c01", []*result.Outcome{
		outcome(0, "What is a transformer?", false, 1, "corpus_search"),
		outcome(1, "Latest work on diffusion models", false, 0.8, "live_search"),
		outcome(2, "Papers published in 2023 on RLHF", false, 0.7, "live_search", "corpus_search"),
	})
	return runDir
}

func TestCollect(t *testing.T) {
	summaries, err := report.Collect(setup(t))
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	base, cand := summaries[0], summaries[1]
	assert.Equal(t, "baseline", base.Label)
	assert.Equal(t, 3, base.Tasks)
	assert.InDelta(t, 1.4/3, base.Mean, 1e-9)
	assert.InDelta(t, 2.0/3, base.PassRate, 1e-9)
	assert.InDelta(t, 150, base.MeanTokens, 1e-9)
	assert.Equal(t, 2, base.Behavior.RecencyTasks)
	assert.Equal(t, 0, base.Behavior.LiveFirst)
	assert.Equal(t, 1, base.Behavior.FirstTool["none"])
	assert.Equal(t, 1, base.Behavior.BothTools)

	assert.Equal(t, "iter_0001_c01", cand.Label)
	assert.Equal(t, 2, cand.Behavior.LiveFirst)
	assert.InDelta(t, 1, cand.Behavior.LiveFirstRate(), 1e-9)
}

func TestGenerateFormats(t *testing.T) {
	runDir := setup(t)

	var table bytes.Buffer
	require.NoError(t, report.Generate(runDir, "table", &table))
	assert.Contains(t, table.String(), "iter_0001_c01")
	assert.Contains(t, table.String(), "0123456789ab")
	assert.Contains(t, table.String(), "2/2")

	var md bytes.Buffer
	require.NoError(t, report.Generate(runDir, "markdown", &md))
	assert.True(t, strings.HasPrefix(md.String(), "| Label |"))

	var js bytes.Buffer
	require.NoError(t, report.Generate(runDir, "json", &js))
	var decoded []report.Summary
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	assert.Len(t, decoded, 2)

	var html bytes.Buffer
	require.NoError(t, report.Generate(runDir, "html", &html))
	assert.Contains(t, html.String(), "<table>")
	assert.Contains(t, html.String(), "<h3>baseline / training</h3>")
	assert.Contains(t, html.String(), "recency queries starting with live search: 2 of 2")

	var xlsx bytes.Buffer
	require.NoError(t, report.Generate(runDir, "xlsx", &xlsx))
	f, err := excelize.OpenReader(&xlsx)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Summary")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "baseline", rows[1][0])

	assert.Error(t, report.Generate(runDir, "pdf", &bytes.Buffer{}))
}

func TestGenerateMissingRunDir(t *testing.T) {
	err := report.Generate(filepath.Join(t.TempDir(), "missing"), "table", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestIsRecency(t *testing.T) {
	assert.True(t, report.IsRecency("Search arXiv for graph transformers"))
	assert.True(t, report.IsRecency("What are the NEWEST results?"))
	assert.False(t, report.IsRecency("Explain attention"))
}
