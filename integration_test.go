//go:build integration

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/signalnine/papertune/internal/corpus"
	"github.com/signalnine/papertune/internal/tool"
)

// fixedEmbedder maps every query to the same vector.
type fixedEmbedder []float32

func (f fixedEmbedder) Embed(context.Context, string) ([]float32, error) { return f, nil }

func skipUnlessIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv("PAPERTUNE_INTEGRATION") == "" {
		t.Skip("set PAPERTUNE_INTEGRATION=1 to run integration tests")
	}
}

func startContainer(t *testing.T, req testcontainers.ContainerRequest, port string) (string, int) {
	t.Helper()
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	mapped, err := c.MappedPort(ctx, nat.Port(port))
	require.NoError(t, err)
	p, err := strconv.Atoi(mapped.Port())
	require.NoError(t, err)
	return host, p
}

func TestQdrantCorpusSearch(t *testing.T) {
	skipUnlessIntegration(t)
	ctx := context.Background()
	host, port := startContainer(t, testcontainers.ContainerRequest{
		Image:        "qdrant/qdrant:v1.12.4",
		ExposedPorts: []string{"6334/tcp"},
		WaitingFor:   wait.ForListeningPort("6334/tcp").WithStartupTimeout(60 * time.Second),
	}, "6334")

	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	require.NoError(t, err)
	defer client.Close()

	for _, name := range []string{"arxiv_papers", "empty"} {
		require.NoError(t, client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     3,
				Distance: qdrant.Distance_Cosine,
			}),
		}))
	}
	_, err = client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: "arxiv_papers",
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDNum(1),
				Vectors: qdrant.NewVectorsDense([]float32{1, 0, 0}),
				Payload: qdrant.NewValueMap(map[string]any{
					"text": "The Transformer relies entirely on attention.",
					"metadata": map[string]any{
						"title":  "Attention Is All You Need",
						"source": "1706.03762",
					},
				}),
			},
			{
				Id:      qdrant.NewIDNum(2),
				Vectors: qdrant.NewVectorsDense([]float32{0, 1, 0}),
				Payload: qdrant.NewValueMap(map[string]any{
					"text":   "Denoising diffusion probabilistic models.",
					"title":  "DDPM",
					"source": "2006.11239",
				}),
			},
		},
	})
	require.NoError(t, err)

	url := fmt.Sprintf("http://%s:%d", host, port)
	idx, err := corpus.NewQdrantIndex(corpus.QdrantConfig{URL: url, Collection: "arxiv_papers"})
	require.NoError(t, err)
	defer idx.Close()
	require.NoError(t, idx.Healthy(ctx))

	search := corpus.NewSearch(fixedEmbedder{1, 0.1, 0}, idx, corpus.Options{Limit: 1})
	res := search.Invoke(ctx, tool.Call{Query: "attention"})
	require.Equal(t, tool.StatusFound, res.Status, "err: %v", res.Err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "Attention Is All You Need", res.Hits[0].Title)
	assert.Equal(t, "1706.03762", res.Hits[0].Identifier)

	empty, err := corpus.NewQdrantIndex(corpus.QdrantConfig{URL: url, Collection: "empty"})
	require.NoError(t, err)
	defer empty.Close()
	res = corpus.NewSearch(fixedEmbedder{1, 0, 0}, empty, corpus.Options{}).Invoke(ctx, tool.Call{Query: "attention"})
	assert.Equal(t, tool.StatusEmpty, res.Status)

	missing, err := corpus.NewQdrantIndex(corpus.QdrantConfig{URL: url, Collection: "missing"})
	require.NoError(t, err)
	defer missing.Close()
	res = corpus.NewSearch(fixedEmbedder{1, 0, 0}, missing, corpus.Options{}).Invoke(ctx, tool.Call{Query: "attention"})
	assert.Equal(t, tool.StatusError, res.Status)
}

func TestPGVectorCorpusSearch(t *testing.T) {
	skipUnlessIntegration(t)
	ctx := context.Background()
	host, port := startContainer(t, testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "papertune",
			"POSTGRES_PASSWORD": "papertune",
			"POSTGRES_DB":       "papertune",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}, "5432")
	dsn := fmt.Sprintf("postgres://papertune:papertune@%s:%d/papertune?sslmode=disable", host, port)

	conn, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	require.NoError(t, err)
	require.NoError(t, pgxvector.RegisterTypes(ctx, conn))
	_, err = conn.Exec(ctx, `CREATE TABLE paper_chunks (
		id SERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		source TEXT NOT NULL,
		text TEXT NOT NULL,
		embedding vector(3) NOT NULL
	)`)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, `INSERT INTO paper_chunks (title, source, text, embedding) VALUES ($1, $2, $3, $4), ($5, $6, $7, $8)`,
		"Attention Is All You Need", "1706.03762", "The Transformer relies entirely on attention.", pgvector.NewVector([]float32{1, 0, 0}),
		"DDPM", "2006.11239", "Denoising diffusion probabilistic models.", pgvector.NewVector([]float32{0, 1, 0}))
	require.NoError(t, err)
	require.NoError(t, conn.Close(ctx))

	idx, err := corpus.NewPGIndex(ctx, dsn, "paper_chunks")
	require.NoError(t, err)
	defer idx.Close()
	require.NoError(t, idx.Healthy(ctx))

	res := corpus.NewSearch(fixedEmbedder{0, 1, 0.1}, idx, corpus.Options{Limit: 1}).Invoke(ctx, tool.Call{Query: "diffusion"})
	require.Equal(t, tool.StatusFound, res.Status, "err: %v", res.Err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "DDPM", res.Hits[0].Title)
}
