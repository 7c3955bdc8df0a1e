// Package ledger records campaign runs and their artifacts in SQLite so
// later runs can be listed and compared by digest.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/3jsLive/tasks/dbopen"
	"github.com/3jsLive/tasks/threeprof/result"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	total       INTEGER NOT NULL,
	failed      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS run_items (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq    INTEGER NOT NULL,
	url    TEXT NOT NULL,
	status TEXT NOT NULL,
	file   TEXT NOT NULL,
	digest TEXT NOT NULL,
	errors TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS run_items_url ON run_items(url);
`

// Ledger is a run store.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger at path.
func Open(path string) (*Ledger, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	return &Ledger{db: db}, nil
}

// New wraps an open database, applying the schema.
func New(ctx context.Context, db *sql.DB) (*Ledger, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("ledger: schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the database.
func (l *Ledger) Close() error { return l.db.Close() }

// Record stores a run and its artifacts atomically.
func (l *Ledger) Record(ctx context.Context, sum result.RunSummary) error {
	return dbopen.RunTx(ctx, l.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO runs (id, started_at, finished_at, total, failed) VALUES (?, ?, ?, ?, ?)`,
			sum.RunID, sum.StartedAt.UnixMilli(), sum.FinishedAt.UnixMilli(), sum.Total, sum.Failed)
		if err != nil {
			return fmt.Errorf("ledger: insert run: %w", err)
		}
		for i, a := range sum.Artifacts {
			errs, err := json.Marshal(nonNil(a.Errors))
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO run_items (run_id, seq, url, status, file, digest, errors) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				sum.RunID, i, a.URL, string(a.Status), a.File, a.Digest, string(errs))
			if err != nil {
				return fmt.Errorf("ledger: insert item %s: %w", a.URL, err)
			}
		}
		return nil
	})
}

// Run is a row of the runs table.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Total      int       `json:"total"`
	Failed     int       `json:"failed"`
}

// Runs lists the most recent runs first. limit <= 0 means 20.
func (l *Ledger) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, total, failed FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: runs: %w", err)
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		var r Run
		var started, finished int64
		if err := rows.Scan(&r.ID, &started, &finished, &r.Total, &r.Failed); err != nil {
			return nil, fmt.Errorf("ledger: scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started).UTC()
		r.FinishedAt = time.UnixMilli(finished).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Artifacts returns the artifacts of a run in write order.
func (l *Ledger) Artifacts(ctx context.Context, runID string) ([]result.Artifact, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT url, status, file, digest, errors FROM run_items WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("ledger: artifacts: %w", err)
	}
	defer rows.Close()

	out := []result.Artifact{}
	for rows.Next() {
		var a result.Artifact
		var status, errs string
		if err := rows.Scan(&a.URL, &status, &a.File, &a.Digest, &errs); err != nil {
			return nil, fmt.Errorf("ledger: scan artifact: %w", err)
		}
		a.Status = result.Status(status)
		if err := json.Unmarshal([]byte(errs), &a.Errors); err != nil {
			return nil, fmt.Errorf("ledger: decode errors: %w", err)
		}
		if len(a.Errors) == 0 {
			a.Errors = nil
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Changed lists URLs of runID whose digest differs from the most recent
// earlier run that recorded the same URL. URLs seen for the first time are
// included.
func (l *Ledger) Changed(ctx context.Context, runID string) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT cur.url FROM run_items cur
JOIN runs r ON r.id = cur.run_id
WHERE cur.run_id = ?
  AND cur.digest IS NOT (
	SELECT prev.digest FROM run_items prev
	JOIN runs pr ON pr.id = prev.run_id
	WHERE prev.url = cur.url AND prev.file = cur.file AND pr.started_at < r.started_at
	ORDER BY pr.started_at DESC LIMIT 1)
ORDER BY cur.seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("ledger: changed: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
