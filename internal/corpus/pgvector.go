package corpus

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// PGIndex searches a Postgres table with columns title, source, text and a
// pgvector embedding, ordered by cosine distance.
type PGIndex struct {
	pool  *pgxpool.Pool
	query string
}

func NewPGIndex(ctx context.Context, databaseURL, table string) (*PGIndex, error) {
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("corpus: invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("corpus: parse database url: %w", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("corpus: connect to postgres: %w", err)
	}
	return &PGIndex{
		pool:  pool,
		query: fmt.Sprintf(`SELECT title, source, text, 1 - (embedding <=> $1) AS score
		   FROM %s
		  ORDER BY embedding <=> $1
		  LIMIT $2`, table),
	}, nil
}

func (p *PGIndex) Nearest(ctx context.Context, vector []float32, limit int) ([]Chunk, error) {
	rows, err := p.pool.Query(ctx, p.query, pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, fmt.Errorf("corpus: pgvector query: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var (
			c     Chunk
			score float64
		)
		if err := rows.Scan(&c.Title, &c.Source, &c.Text, &score); err != nil {
			return nil, fmt.Errorf("corpus: scan chunk: %w", err)
		}
		c.Score = float32(score)
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("corpus: iterate chunks: %w", err)
	}
	return chunks, nil
}

func (p *PGIndex) Healthy(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PGIndex) Close() error {
	p.pool.Close()
	return nil
}
