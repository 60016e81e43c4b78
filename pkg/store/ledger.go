package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/edp1096/mcspice/internal/ctxlog"
)

// LedgerName is the run ledger inside an output directory.
const LedgerName = "ledger.db"

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS batches (
	id         TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	source     TEXT NOT NULL,
	solver     TEXT NOT NULL,
	seed       INTEGER NOT NULL,
	trials     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
	batch_id   TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	ok         INTEGER NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	points     INTEGER NOT NULL DEFAULT 0,
	elapsed_ms REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (batch_id, name)
);
CREATE INDEX IF NOT EXISTS idx_runs_ok ON runs(batch_id, ok);
`

// Ledger records batches and the outcome of every run in SQLite.
type Ledger struct {
	conn *sql.DB
	path string
}

type Batch struct {
	ID        string
	CreatedAt time.Time
	Source    string
	Solver    string
	Seed      uint64
	Trials    int
}

type RunRecord struct {
	Name    string
	OK      bool
	Error   string
	Points  int
	Elapsed time.Duration
}

// OpenLedger opens or creates the ledger database at path.
func OpenLedger(ctx context.Context, path string) (*Ledger, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, ioErr("open", path, err)
	}
	// Pragmas are per connection.
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			conn.Close()
			return nil, ioErr("pragma", path, err)
		}
	}

	if _, err := conn.ExecContext(ctx, ledgerSchema); err != nil {
		conn.Close()
		return nil, ioErr("schema", path, err)
	}

	ctxlog.FromContext(ctx).Debug("ledger opened", "path", path)
	return &Ledger{conn: conn, path: path}, nil
}

func (l *Ledger) Close() error {
	if l.conn == nil {
		return nil
	}
	return ioErr("close", l.path, l.conn.Close())
}

// withTx runs fn in a transaction, rolling back when fn fails.
func (l *Ledger) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := l.conn.BeginTx(ctx, nil)
	if err != nil {
		return ioErr("begin", l.path, err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			ctxlog.FromContext(ctx).Error("ledger rollback failed", "error", err, "rollback_error", rbErr)
		}
		return err
	}

	return ioErr("commit", l.path, tx.Commit())
}

// RecordBatch inserts b, replacing any earlier batch with the same id.
func (l *Ledger) RecordBatch(ctx context.Context, b Batch) error {
	return l.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM batches WHERE id = ?`, b.ID); err != nil {
			return ioErr("delete batch", l.path, err)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO batches (id, created_at, source, solver, seed, trials) VALUES (?, ?, ?, ?, ?, ?)`,
			b.ID, b.CreatedAt.UTC().Format(time.RFC3339Nano), b.Source, b.Solver, int64(b.Seed), b.Trials)
		return ioErr("insert batch", l.path, err)
	})
}

// RecordRuns upserts the outcome of every run of a batch.
func (l *Ledger) RecordRuns(ctx context.Context, batchID string, runs []RunRecord) error {
	return l.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO runs (batch_id, name, ok, error, points, elapsed_ms) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(batch_id, name) DO UPDATE SET
				ok = excluded.ok, error = excluded.error,
				points = excluded.points, elapsed_ms = excluded.elapsed_ms`)
		if err != nil {
			return ioErr("prepare", l.path, err)
		}
		defer stmt.Close()

		for _, r := range runs {
			ms := float64(r.Elapsed) / float64(time.Millisecond)
			if _, err := stmt.ExecContext(ctx, batchID, r.Name, r.OK, r.Error, r.Points, ms); err != nil {
				return ioErr("insert run", l.path, fmt.Errorf("%s: %w", r.Name, err))
			}
		}
		return nil
	})
}

// Batch loads one batch by id.
func (l *Ledger) Batch(ctx context.Context, id string) (*Batch, error) {
	var (
		b       Batch
		created string
		seed    int64
	)
	err := l.conn.QueryRowContext(ctx,
		`SELECT id, created_at, source, solver, seed, trials FROM batches WHERE id = ?`, id,
	).Scan(&b.ID, &created, &b.Source, &b.Solver, &seed, &b.Trials)
	if err != nil {
		return nil, ioErr("query batch", l.path, err)
	}
	b.Seed = uint64(seed)
	if b.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, ioErr("query batch", l.path, err)
	}
	return &b, nil
}

// Runs lists the runs of a batch ordered by name.
func (l *Ledger) Runs(ctx context.Context, batchID string) ([]RunRecord, error) {
	rows, err := l.conn.QueryContext(ctx,
		`SELECT name, ok, error, points, elapsed_ms FROM runs WHERE batch_id = ? ORDER BY name`, batchID)
	if err != nil {
		return nil, ioErr("query runs", l.path, err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			r  RunRecord
			ms float64
		)
		if err := rows.Scan(&r.Name, &r.OK, &r.Error, &r.Points, &ms); err != nil {
			return nil, ioErr("scan run", l.path, err)
		}
		r.Elapsed = time.Duration(ms * float64(time.Millisecond))
		out = append(out, r)
	}
	return out, ioErr("query runs", l.path, rows.Err())
}

// Counts returns how many runs of a batch succeeded and failed.
func (l *Ledger) Counts(ctx context.Context, batchID string) (ok, failed int, err error) {
	err = l.conn.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(ok), 0), COALESCE(SUM(1 - ok), 0) FROM runs WHERE batch_id = ?`, batchID,
	).Scan(&ok, &failed)
	return ok, failed, ioErr("count runs", l.path, err)
}
