// Package corpus implements the similarity-search tool over the ingested
// paper collection. Embedding and nearest-neighbor search are delegated to an
// Embedder and an Index; the tool only decides how results reach the agent.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/signalnine/papertune/internal/logging"
	"github.com/signalnine/papertune/internal/tool"
)

const ToolName = "corpus_search"

// Chunk is one stored passage with the metadata written at ingestion time.
type Chunk struct {
	Title  string
	Source string
	Text   string
	Score  float32
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Index interface {
	Nearest(ctx context.Context, vector []float32, limit int) ([]Chunk, error)
}

// ErrNoBackend is what Disabled returns for every search.
var ErrNoBackend = errors.New("no corpus backend configured")

// Disabled stands in for both Embedder and Index when corpus.backend is
// "none", so every corpus search reports an error and the agent falls back.
type Disabled struct{}

func (Disabled) Embed(context.Context, string) ([]float32, error) { return nil, ErrNoBackend }

func (Disabled) Nearest(context.Context, []float32, int) ([]Chunk, error) { return nil, ErrNoBackend }

type Options struct {
	Limit         int
	ChunkMaxChars int
	Logger        *zap.Logger
}

// Search is the corpus-search tool.
type Search struct {
	embedder Embedder
	index    Index
	limit    int
	maxChars int
	logger   *zap.Logger
}

func NewSearch(e Embedder, idx Index, opts Options) *Search {
	if opts.Limit <= 0 {
		opts.Limit = 4
	}
	return &Search{
		embedder: e,
		index:    idx,
		limit:    opts.Limit,
		maxChars: opts.ChunkMaxChars,
		logger:   logging.OrNop(opts.Logger),
	}
}

func (s *Search) Definition() tool.Definition {
	return tool.Definition{
		Name:        ToolName,
		Description: "Search the local knowledge base of ingested arXiv papers by semantic similarity. Returns matching passages with their paper titles, or RAG_EMPTY when nothing matches.",
		Capability:  tool.CapabilitySimilarity,
		Marker:      "RAG",
		Parameters:  tool.QueryParameters(false),
	}
}

func (s *Search) Invoke(ctx context.Context, call tool.Call) tool.Result {
	query := strings.TrimSpace(call.Query)
	if query == "" {
		return tool.Failed(fmt.Errorf("empty query"))
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return tool.Failed(fmt.Errorf("embedding query: %w", err))
	}
	limit := s.limit
	if call.Limit > 0 && call.Limit < limit {
		limit = call.Limit
	}
	chunks, err := s.index.Nearest(ctx, vec, limit)
	if err != nil {
		return tool.Failed(fmt.Errorf("vector search: %w", err))
	}
	s.logger.Debug("corpus search", zap.String("query", query), zap.Int("matches", len(chunks)))

	hits := make([]tool.Hit, 0, len(chunks))
	for _, c := range chunks {
		title := strings.TrimSpace(c.Title)
		if title == "" {
			title = "Untitled"
		}
		hits = append(hits, tool.Hit{
			Title:      title,
			Identifier: strings.TrimSpace(c.Source),
			Snippet:    tool.Truncate(strings.TrimSpace(c.Text), s.maxChars),
		})
	}
	return tool.Found(hits)
}

var _ tool.Tool = (*Search)(nil)
