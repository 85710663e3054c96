package corpus

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/qdrant/go-client/qdrant"
)

type QdrantConfig struct {
	URL        string // e.g. "http://localhost:6334" or "https://xyz.cloud.qdrant.io:6333"
	APIKey     string
	Collection string
}

// QdrantIndex reads chunks written by the ingestion pipeline: payload "text"
// holds the passage and payload "metadata" holds title and source.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
}

// parseQdrantURL extracts host, port, and TLS flag from a Qdrant URL. The REST
// port 6333 is mapped to the gRPC port 6334.
func parseQdrantURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("corpus: invalid qdrant URL: %q", rawURL)
	}
	useTLS = u.Scheme == "https"
	host = u.Hostname()
	port = 6334
	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("corpus: invalid port in qdrant URL: %q", portStr)
		}
		if p != 6333 {
			port = p
		}
	}
	return host, port, useTLS, nil
}

func NewQdrantIndex(cfg QdrantConfig) (*QdrantIndex, error) {
	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("corpus: connect to qdrant at %s:%d: %w", host, port, err)
	}
	return &QdrantIndex{client: client, collection: cfg.Collection}, nil
}

func (q *QdrantIndex) Nearest(ctx context.Context, vector []float32, limit int) ([]Chunk, error) {
	lim := uint64(limit) //nolint:gosec // limit is a small positive config value
	scored, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          &lim,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("corpus: qdrant query %s: %w", q.collection, err)
	}
	chunks := make([]Chunk, 0, len(scored))
	for _, sp := range scored {
		c := chunkFromPayload(sp.GetPayload())
		c.Score = sp.GetScore()
		chunks = append(chunks, c)
	}
	return chunks, nil
}

func chunkFromPayload(payload map[string]*qdrant.Value) Chunk {
	c := Chunk{Text: payload["text"].GetStringValue()}
	meta := payload["metadata"].GetStructValue().GetFields()
	c.Title = meta["title"].GetStringValue()
	c.Source = meta["source"].GetStringValue()
	if c.Title == "" {
		c.Title = payload["title"].GetStringValue()
	}
	if c.Source == "" {
		c.Source = payload["source"].GetStringValue()
	}
	return c
}

// Healthy returns nil if Qdrant is reachable.
func (q *QdrantIndex) Healthy(ctx context.Context) error {
	if _, err := q.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("corpus: qdrant unhealthy: %w", err)
	}
	return nil
}

func (q *QdrantIndex) Close() error {
	return q.client.Close()
}
