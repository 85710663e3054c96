package prompt

import (
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// Comparison summarizes how a candidate prompt differs from a baseline.
type Comparison struct {
	BaselineChars  int
	CandidateChars int
	BaselineLines  int
	CandidateLines int
	// LengthChange is the relative character delta, e.g. 0.12 for +12%.
	LengthChange float64
	AddedWords   []string
	RemovedWords []string
	// Overlap is the share of baseline keywords that survive in the candidate.
	Overlap float64
	Changed []LineChange
}

type LineChange struct {
	Line      int
	Baseline  string
	Candidate string
}

const maxChangedLines = 10

// Compare diffs two prompts by keyword (words longer than three runes, case
// folded) and by line for the leading lines.
func Compare(baseline, candidate string) Comparison {
	c := Comparison{
		BaselineChars:  utf8.RuneCountInString(baseline),
		CandidateChars: utf8.RuneCountInString(candidate),
		BaselineLines:  lineCount(baseline),
		CandidateLines: lineCount(candidate),
	}
	if c.BaselineChars > 0 {
		c.LengthChange = float64(c.CandidateChars-c.BaselineChars) / float64(c.BaselineChars)
	}

	base, cand := keywords(baseline), keywords(candidate)
	shared := 0
	for w := range base {
		if cand[w] {
			shared++
		} else {
			c.RemovedWords = append(c.RemovedWords, w)
		}
	}
	for w := range cand {
		if !base[w] {
			c.AddedWords = append(c.AddedWords, w)
		}
	}
	slices.Sort(c.AddedWords)
	slices.Sort(c.RemovedWords)
	if len(base) > 0 {
		c.Overlap = float64(shared) / float64(len(base))
	}

	bl, cl := strings.Split(baseline, "\n"), strings.Split(candidate, "\n")
	for i := 0; i < len(bl) && i < len(cl) && len(c.Changed) < maxChangedLines; i++ {
		if bl[i] != cl[i] {
			c.Changed = append(c.Changed, LineChange{Line: i + 1, Baseline: bl[i], Candidate: cl[i]})
		}
	}
	return c
}

func keywords(s string) map[string]bool {
	fold := cases.Fold()
	out := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		if utf8.RuneCountInString(w) > 3 {
			out[fold.String(w)] = true
		}
	}
	return out
}

func lineCount(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(strings.TrimRight(s, "\n"), "\n") + 1
}
