package arxiv

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/signalnine/papertune/internal/logging"
	"github.com/signalnine/papertune/internal/tool"
)

const ToolName = "live_search"

type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Paper, error)
}

// Tool adapts a Searcher to the live-search capability.
type Tool struct {
	searcher   Searcher
	maxResults int
	maxSummary int
	logger     *zap.Logger
}

func NewTool(s Searcher, maxResults, maxSummary int, logger *zap.Logger) *Tool {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Tool{searcher: s, maxResults: maxResults, maxSummary: maxSummary, logger: logging.OrNop(logger)}
}

func (t *Tool) Definition() tool.Definition {
	return tool.Definition{
		Name:        ToolName,
		Description: fmt.Sprintf("Search arXiv directly for research papers, including recent papers not yet in the knowledge base. Returns titles, arXiv IDs and summaries, ARXIV_EMPTY when nothing matches, or ARXIV_ERROR when the search fails. limit defaults to %d.", t.maxResults),
		Capability:  tool.CapabilityLive,
		Marker:      "ARXIV",
		Parameters:  tool.QueryParameters(true),
	}
}

func (t *Tool) Invoke(ctx context.Context, call tool.Call) tool.Result {
	query := strings.TrimSpace(call.Query)
	if query == "" {
		return tool.Failed(errors.New("empty query"))
	}
	limit := call.Limit
	if limit <= 0 || limit > t.maxResults {
		limit = t.maxResults
	}
	papers, err := t.searcher.Search(ctx, query, limit)
	if err != nil {
		t.logger.Warn("arxiv search failed", zap.String("query", query), zap.Error(err))
		return tool.Failed(err)
	}
	hits := make([]tool.Hit, 0, len(papers))
	for _, p := range papers {
		snippet := tool.Truncate(p.Summary, t.maxSummary)
		if !p.Published.IsZero() {
			snippet = fmt.Sprintf("Published %s. %s", p.Published.Format("2006-01-02"), snippet)
		}
		hits = append(hits, tool.Hit{Title: p.Title, Identifier: p.ID, Snippet: snippet + "\n" + p.URL})
	}
	return tool.Found(hits)
}

var _ tool.Tool = (*Tool)(nil)
