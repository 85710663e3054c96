// Package report summarizes stored evaluations of a run.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/signalnine/papertune/internal/result"
)

// Formats accepted by Generate.
const (
	FormatTable    = "table"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatHTML     = "html"
	FormatXLSX     = "xlsx"
)

// Summary is one evaluation (a prompt on a partition) as shown in reports.
type Summary struct {
	Label            string   `json:"label"`
	Partition        string   `json:"partition"`
	Fingerprint      string   `json:"prompt_fingerprint"`
	Tasks            int      `json:"tasks"`
	Mean             float64  `json:"mean"`
	Min              float64  `json:"min"`
	Max              float64  `json:"max"`
	PassRate         float64  `json:"pass_rate"`
	FirstToolRate    float64  `json:"first_tool_rate"`
	FirstToolChecked int      `json:"first_tool_checked"`
	MeanTokens       float64  `json:"mean_tokens"`
	TotalCostUSD     float64  `json:"total_cost_usd"`
	Behavior         Behavior `json:"behavior"`
}

// Generate reads the evaluations under runDir and writes a summary in the
// given format.
func Generate(runDir, format string, w io.Writer) error {
	summaries, err := Collect(runDir)
	if err != nil {
		return err
	}
	switch format {
	case FormatMarkdown:
		return writeMarkdown(summaries, w)
	case FormatJSON:
		return writeJSON(summaries, w)
	case FormatHTML:
		return writeHTML(summaries, w)
	case FormatXLSX:
		return writeXLSX(summaries, w)
	case FormatTable, "":
		return writeTable(summaries, w)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// Collect builds a summary for every report.json under runDir, analyzing
// the rollouts stored next to it.
func Collect(runDir string) ([]Summary, error) {
	if _, err := os.Stat(runDir); err != nil {
		return nil, fmt.Errorf("reading run dir: %w", err)
	}
	reports, err := result.Reports(runDir)
	if err != nil {
		return nil, err
	}
	summaries := make([]Summary, 0, len(reports))
	for _, r := range reports {
		var outcomes []*result.Outcome
		if err := result.Walk(r.Dir, func(_ string, o *result.Outcome) error {
			outcomes = append(outcomes, o)
			return nil
		}); err != nil {
			return nil, err
		}
		summaries = append(summaries, summarize(r, outcomes))
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Label != summaries[j].Label {
			return summaries[i].Label < summaries[j].Label
		}
		return summaries[i].Partition < summaries[j].Partition
	})
	return summaries, nil
}

func summarize(r *result.Report, outcomes []*result.Outcome) Summary {
	s := Summary{
		Label:            r.Label,
		Partition:        string(r.Partition),
		Fingerprint:      r.PromptFingerprint,
		Tasks:            len(r.PerTask),
		Mean:             r.Mean,
		Min:              r.Min,
		Max:              r.Max,
		PassRate:         r.PassRate(),
		FirstToolRate:    r.FirstToolRate(),
		FirstToolChecked: r.FirstToolChecked,
		TotalCostUSD:     r.TotalCostUSD,
		Behavior:         Analyze(outcomes),
	}
	if s.Tasks > 0 {
		s.MeanTokens = float64(r.TotalTokens) / float64(s.Tasks)
	}
	return s
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

func writeTable(summaries []Summary, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LABEL\tPARTITION\tPROMPT\tTASKS\tMEAN\tMIN\tMAX\tPASS RATE\tFIRST TOOL\tLIVE FIRST (RECENT)\tMEAN TOKENS\tCOST")
	fmt.Fprintln(tw, strings.Repeat("-", 120))
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.3f\t%.3f\t%.3f\t%.0f%%\t%s\t%s\t%.0f\t$%.4f\n",
			s.Label, s.Partition, short(s.Fingerprint), s.Tasks, s.Mean, s.Min, s.Max,
			s.PassRate*100, firstTool(s), liveFirst(s.Behavior), s.MeanTokens, s.TotalCostUSD)
	}
	return tw.Flush()
}

func firstTool(s Summary) string {
	if s.FirstToolChecked == 0 {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", s.FirstToolRate*100)
}

func liveFirst(b Behavior) string {
	if b.RecencyTasks == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d", b.LiveFirst, b.RecencyTasks)
}

func markdown(summaries []Summary) string {
	var b strings.Builder
	b.WriteString("| Label | Partition | Prompt | Tasks | Mean | Min | Max | Pass Rate | First Tool | Live First (recent) | Mean Tokens | Cost |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|---|---|---|---|\n")
	for _, s := range summaries {
		fmt.Fprintf(&b, "| %s | %s | `%s` | %d | %.3f | %.3f | %.3f | %.0f%% | %s | %s | %.0f | $%.4f |\n",
			s.Label, s.Partition, short(s.Fingerprint), s.Tasks, s.Mean, s.Min, s.Max,
			s.PassRate*100, firstTool(s), liveFirst(s.Behavior), s.MeanTokens, s.TotalCostUSD)
	}
	return b.String()
}

func writeMarkdown(summaries []Summary, w io.Writer) error {
	_, err := io.WriteString(w, markdown(summaries))
	return err
}

func writeJSON(summaries []Summary, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summaries)
}
