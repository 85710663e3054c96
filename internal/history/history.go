// Package history keeps a SQLite log of every prompt evaluation so runs can
// be compared across invocations.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/signalnine/papertune/internal/result"
)

const schema = `
CREATE TABLE IF NOT EXISTS evaluations (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	iteration   INTEGER NOT NULL,
	label       TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	partition   TEXT NOT NULL,
	mean        REAL NOT NULL,
	min         REAL NOT NULL,
	max         REAL NOT NULL,
	failures    INTEGER NOT NULL,
	tasks       INTEGER NOT NULL,
	accepted    INTEGER NOT NULL,
	tokens      INTEGER NOT NULL,
	cost_usd    REAL NOT NULL,
	recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS evaluations_run ON evaluations(run_id, iteration);
`

// Entry is one recorded evaluation.
type Entry struct {
	ID          string
	RunID       string
	Iteration   int
	Label       string
	Fingerprint string
	Partition   string
	Mean        float64
	Min         float64
	Max         float64
	Failures    int
	Tasks       int
	Accepted    bool
	Tokens      int
	CostUSD     float64
	RecordedAt  time.Time
}

// timeLayout sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating history: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// NewRunID returns an identifier grouping the evaluations of one invocation.
func NewRunID() string { return uuid.NewString() }

// Record stores the summary of a report.
func (s *Store) Record(ctx context.Context, runID string, iteration int, accepted bool, r *result.Report) (Entry, error) {
	e := Entry{
		ID:          uuid.NewString(),
		RunID:       runID,
		Iteration:   iteration,
		Label:       r.Label,
		Fingerprint: r.PromptFingerprint,
		Partition:   string(r.Partition),
		Mean:        r.Mean,
		Min:         r.Min,
		Max:         r.Max,
		Failures:    r.Failures,
		Tasks:       len(r.PerTask),
		Accepted:    accepted,
		Tokens:      r.TotalTokens,
		CostUSD:     r.TotalCostUSD,
		RecordedAt:  time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO evaluations
		(id, run_id, iteration, label, fingerprint, partition, mean, min, max, failures, tasks, accepted, tokens, cost_usd, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RunID, e.Iteration, e.Label, e.Fingerprint, e.Partition, e.Mean, e.Min, e.Max,
		e.Failures, e.Tasks, e.Accepted, e.Tokens, e.CostUSD, e.RecordedAt.Format(timeLayout))
	if err != nil {
		return Entry{}, fmt.Errorf("recording evaluation: %w", err)
	}
	return e, nil
}

// List returns entries newest first, optionally filtered to one run. limit
// <= 0 returns everything.
func (s *Store) List(ctx context.Context, runID string, limit int) ([]Entry, error) {
	q := `SELECT id, run_id, iteration, label, fingerprint, partition, mean, min, max,
		failures, tasks, accepted, tokens, cost_usd, recorded_at FROM evaluations`
	var args []any
	if runID != "" {
		q += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	q += ` ORDER BY recorded_at DESC, rowid DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var recorded string
		if err := rows.Scan(&e.ID, &e.RunID, &e.Iteration, &e.Label, &e.Fingerprint, &e.Partition,
			&e.Mean, &e.Min, &e.Max, &e.Failures, &e.Tasks, &e.Accepted, &e.Tokens, &e.CostUSD, &recorded); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		e.RecordedAt, _ = time.Parse(timeLayout, recorded)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Best returns the highest-mean entry for a partition, or false if none.
func (s *Store) Best(ctx context.Context, partition string) (Entry, bool, error) {
	entries, err := s.List(ctx, "", 0)
	if err != nil {
		return Entry{}, false, err
	}
	var best Entry
	found := false
	for _, e := range entries {
		if e.Partition == partition && (!found || e.Mean > best.Mean) {
			best, found = e, true
		}
	}
	return best, found, nil
}
