// Package answer holds the two-section response contract shared by the agent
// that writes answers and the grader that scores them.
package answer

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/signalnine/papertune/internal/tool"
)

const (
	LogMarker    = "TOOL_LOG:"
	AnswerMarker = "ANSWER:"
)

// LogEntry is one line of the TOOL_LOG section.
type LogEntry struct {
	Tool   string
	Used   bool
	Status tool.Status
	Marker string
}

func (e LogEntry) String() string {
	if !e.Used {
		return fmt.Sprintf("- %s: NOT_USED", e.Tool)
	}
	status := string(e.Status)
	if e.Marker != "" && e.Status != tool.StatusFound {
		status = e.Marker
	}
	return fmt.Sprintf("- %s: USED (%s)", e.Tool, status)
}

// Compose renders a complete response with both sections.
func Compose(entries []LogEntry, body string) string {
	var b strings.Builder
	b.WriteString(LogMarker)
	b.WriteByte('\n')
	for _, e := range entries {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	b.WriteString("- llm_only: false\n\n")
	b.WriteString(AnswerMarker)
	b.WriteByte('\n')
	b.WriteString(strings.TrimSpace(body))
	return b.String()
}

// Fold case-folds s for caseless substring matching.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// MarkerPositions returns the caseless byte offsets of the two section markers
// in the folded text, or -1 when absent.
func MarkerPositions(text string) (logAt, answerAt int) {
	folded := Fold(text)
	return strings.Index(folded, Fold(LogMarker)), strings.Index(folded, Fold(AnswerMarker))
}

// WellFormed reports whether both markers are present in order.
func WellFormed(text string) bool {
	logAt, answerAt := MarkerPositions(text)
	return logAt >= 0 && answerAt > logAt
}

// NoInformation is the answer body used when no tool found anything.
func NoInformation(entries []LogEntry) string {
	var tried []string
	for _, e := range entries {
		if !e.Used {
			continue
		}
		status := string(e.Status)
		if e.Marker != "" {
			status = e.Marker
		}
		tried = append(tried, fmt.Sprintf("%s returned %s", e.Tool, status))
	}
	msg := "No information found for this question in the available sources."
	if len(tried) > 0 {
		msg += " Checked: " + strings.Join(tried, "; ") + "."
	}
	return msg + " Try rephrasing the query or ingesting relevant papers."
}

var noInfoPhrases = []string{
	"no information",
	"no relevant",
	"no results",
	"no matching",
	"no papers",
	"nothing was found",
	"found nothing",
	"could not find",
	"couldn't find",
	"unable to find",
	"did not find",
	"didn't find",
}

// StatesNoInformation reports whether the text explicitly says nothing was found.
func StatesNoInformation(text string) bool {
	folded := Fold(text)
	for _, p := range noInfoPhrases {
		if strings.Contains(folded, p) {
			return true
		}
	}
	return false
}

var identifierPattern = regexp.MustCompile(`(?i)\b(?:arxiv:\s*)?(\d{4}\.\d{4,5})(?:v\d+)?\b`)

// Identifiers extracts arXiv-style identifiers from text, without version
// suffixes, in order of first appearance.
func Identifiers(text string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, m := range identifierPattern.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			ids = append(ids, m[1])
		}
	}
	return ids
}

// NormalizeIdentifier strips URL prefixes and version suffixes from an arXiv id.
func NormalizeIdentifier(id string) string {
	if ids := Identifiers(id); len(ids) > 0 {
		return ids[0]
	}
	id = strings.TrimSpace(id)
	if i := strings.LastIndexByte(id, '/'); i >= 0 {
		id = id[i+1:]
	}
	return id
}
