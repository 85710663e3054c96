package tool

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const ellipsis = "..."

var arxivIDPattern = regexp.MustCompile(`\b(\d{4}\.\d{4,5}(v\d+)?|[a-z\-]+(\.[A-Z]{2})?/\d{7}(v\d+)?)\b`)

// Truncate cuts s to at most max bytes plus an ellipsis. The cut backs off so
// that it never lands inside a bracketed [..] group, an arXiv identifier, or a
// word. max <= 0 disables truncation.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	if open := strings.LastIndexByte(s[:cut], '['); open >= 0 && !strings.ContainsRune(s[open:cut], ']') {
		cut = open
	}
	for _, loc := range arxivIDPattern.FindAllStringIndex(s, -1) {
		if loc[0] < cut && cut < loc[1] {
			cut = loc[0]
			break
		}
	}
	if cut < len(s) && !isBoundary(s, cut) {
		// a first token longer than max leaves only the ellipsis
		cut = strings.LastIndexFunc(s[:cut], unicode.IsSpace)
		if cut < 0 {
			cut = 0
		}
	}
	return strings.TrimRightFunc(s[:cut], unicode.IsSpace) + ellipsis
}

func isBoundary(s string, i int) bool {
	prev, _ := utf8.DecodeLastRuneInString(s[:i])
	next, _ := utf8.DecodeRuneInString(s[i:])
	return unicode.IsSpace(prev) || unicode.IsSpace(next)
}
