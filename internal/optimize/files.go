package optimize

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// BestPlaceholder in a variant file is replaced by the current best prompt,
// so a variant can extend rather than replace it.
const BestPlaceholder = "{{best}}"

// FileProposer offers hand-written variants from a directory, in lexical
// order, each at most once.
type FileProposer struct {
	fsys    fs.FS
	pattern string
	next    int
}

// NewFileProposer reads variants matching **/*.{txt,md} under dir.
func NewFileProposer(dir string) *FileProposer {
	return NewFileProposerFS(os.DirFS(dir), "**/*.{txt,md}")
}

func NewFileProposerFS(fsys fs.FS, pattern string) *FileProposer {
	return &FileProposer{fsys: fsys, pattern: pattern}
}

func (p *FileProposer) Name() string { return "files" }

func (p *FileProposer) Propose(_ context.Context, fb Feedback, n int) ([]Proposal, error) {
	matches, err := doublestar.Glob(p.fsys, p.pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("matching variants: %w", err)
	}
	slices.Sort(matches)

	var out []Proposal
	for p.next < len(matches) && len(out) < n {
		name := matches[p.next]
		p.next++
		data, err := fs.ReadFile(p.fsys, name)
		if err != nil {
			return nil, fmt.Errorf("reading variant %s: %w", name, err)
		}
		text := strings.ReplaceAll(string(data), BestPlaceholder, fb.Best)
		if strings.TrimSpace(text) == "" || fb.evaluated(text) {
			continue
		}
		out = append(out, Proposal{Text: text, Source: "file:" + path.Clean(name)})
	}
	return out, nil
}
