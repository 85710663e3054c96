package report

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// document renders the full report, summary table plus behavior analysis,
// as markdown.
func document(summaries []Summary) string {
	var b strings.Builder
	b.WriteString("# Evaluation report\n\n")
	b.WriteString(markdown(summaries))
	b.WriteString("\n## Tool behavior\n")
	for _, s := range summaries {
		fmt.Fprintf(&b, "\n### %s / %s\n\n", s.Label, s.Partition)
		if s.Behavior.Rollouts == 0 {
			b.WriteString("No rollouts stored.\n")
			continue
		}
		for _, name := range s.Behavior.firstTools() {
			n := s.Behavior.FirstTool[name]
			fmt.Fprintf(&b, "- first tool `%s`: %d of %d rollouts\n", name, n, s.Behavior.Rollouts)
		}
		fmt.Fprintf(&b, "- called more than one tool: %d of %d rollouts\n", s.Behavior.BothTools, s.Behavior.Rollouts)
		if s.Behavior.RecencyTasks > 0 {
			fmt.Fprintf(&b, "- recency queries starting with live search: %d of %d (%.0f%%)\n",
				s.Behavior.LiveFirst, s.Behavior.RecencyTasks, s.Behavior.LiveFirstRate()*100)
		}
	}
	return b.String()
}

func writeHTML(summaries []Summary, w io.Writer) error {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	var body bytes.Buffer
	if err := md.Convert([]byte(document(summaries)), &body); err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	_, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: right; }
th:first-child, td:first-child { text-align: left; }
</style>
</head>
<body>
%s</body>
</html>
`, html.EscapeString("papertune report"), body.String())
	return err
}
