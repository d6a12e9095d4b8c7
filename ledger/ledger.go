// Package ledger persists engagement history in SQLite: which domains
// were already attempted, and the full outcome of every attempt. The
// attempted set is the dedup gate for batch runs — a domain is
// contacted once, whatever the result.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/formreach/formreach/dbopen"
	"github.com/formreach/formreach/engage"
)

// Schema is the ledger schema. Timestamps are epoch milliseconds.
const Schema = `
CREATE TABLE IF NOT EXISTS attempted_domains (
    domain           TEXT PRIMARY KEY,
    first_attempt_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS outcomes (
    attempt_id  TEXT PRIMARY KEY,
    domain      TEXT NOT NULL,
    url         TEXT NOT NULL,
    submitted   INTEGER NOT NULL,
    backend     TEXT NOT NULL DEFAULT '',
    tried       TEXT NOT NULL DEFAULT '',
    challenge   TEXT NOT NULL DEFAULT '',
    failure     TEXT NOT NULL DEFAULT '',
    signal      TEXT NOT NULL DEFAULT '',
    excerpt     TEXT NOT NULL DEFAULT '',
    elapsed_ms  INTEGER NOT NULL DEFAULT 0,
    recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outcomes_domain ON outcomes(domain);
CREATE INDEX IF NOT EXISTS idx_outcomes_time ON outcomes(recorded_at DESC);
`

// Stats summarizes the ledger.
type Stats struct {
	Domains   int            `json:"domains"`
	Attempts  int            `json:"attempts"`
	Submitted int            `json:"submitted"`
	Failures  map[string]int `json:"failures"`
}

// Ledger is a SQLite-backed engagement history. Writes are serialized
// through a mutex; SQLite allows one writer at a time anyway.
type Ledger struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the ledger at path.
func Open(path string) (*Ledger, error) {
	db, err := dbopen.Open(path,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	return &Ledger{db: db}, nil
}

// New wraps an already-opened database that has the Schema applied.
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// MarkAttempted records that a domain has been engaged. Idempotent: the
// first attempt time is kept on repeat calls.
func (l *Ledger) MarkAttempted(ctx context.Context, domain string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := dbopen.Exec(ctx, l.db,
		`INSERT OR IGNORE INTO attempted_domains (domain, first_attempt_at) VALUES (?, ?)`,
		domain, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("ledger: mark attempted: %w", err)
	}
	return nil
}

// Attempted reports whether a domain was already engaged.
func (l *Ledger) Attempted(ctx context.Context, domain string) (bool, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempted_domains WHERE domain = ?`, domain).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("ledger: attempted: %w", err)
	}
	return n > 0, nil
}

// RecordOutcome stores one attempt's outcome and marks its domain
// attempted in the same transaction.
func (l *Ledger) RecordOutcome(ctx context.Context, out *engage.Outcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UnixMilli()
	tried := make([]string, len(out.Tried))
	for i, b := range out.Tried {
		tried[i] = string(b)
	}

	err := dbopen.RunTx(ctx, l.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO attempted_domains (domain, first_attempt_at) VALUES (?, ?)`,
			out.Domain, now); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO outcomes
				(attempt_id, domain, url, submitted, backend, tried, challenge,
				 failure, signal, excerpt, elapsed_ms, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			out.AttemptID, out.Domain, out.URL, boolInt(out.Submitted),
			string(out.Backend), strings.Join(tried, ","), out.Challenge,
			string(out.Failure), out.Signal, out.Excerpt, out.ElapsedMs, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("ledger: record outcome: %w", err)
	}
	return nil
}

// Outcomes returns the most recent records, newest first. A
// non-positive limit defaults to 50.
func (l *Ledger) Outcomes(ctx context.Context, limit int) ([]engage.OutcomeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT attempt_id, domain, url, submitted, backend, tried, challenge,
		       failure, signal, excerpt, elapsed_ms, recorded_at
		FROM outcomes ORDER BY recorded_at DESC, attempt_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: outcomes: %w", err)
	}
	defer rows.Close()

	var records []engage.OutcomeRecord
	for rows.Next() {
		var r engage.OutcomeRecord
		var submitted int
		var backend, tried, failure string
		var recordedAt int64
		if err := rows.Scan(&r.Outcome.AttemptID, &r.Outcome.Domain, &r.Outcome.URL,
			&submitted, &backend, &tried, &r.Outcome.Challenge,
			&failure, &r.Outcome.Signal, &r.Outcome.Excerpt,
			&r.Outcome.ElapsedMs, &recordedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan outcome: %w", err)
		}
		r.Outcome.Submitted = submitted != 0
		r.Outcome.Backend = engage.Backend(backend)
		r.Outcome.Failure = engage.FailureKind(failure)
		if tried != "" {
			for _, b := range strings.Split(tried, ",") {
				r.Outcome.Tried = append(r.Outcome.Tried, engage.Backend(b))
			}
		}
		r.RecordedAt = time.UnixMilli(recordedAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Stats summarizes attempts, submissions, and failures by kind.
func (l *Ledger) Stats(ctx context.Context) (*Stats, error) {
	s := &Stats{Failures: make(map[string]int)}

	if err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempted_domains`).Scan(&s.Domains); err != nil {
		return nil, fmt.Errorf("ledger: stats: %w", err)
	}
	if err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(submitted), 0) FROM outcomes`).Scan(&s.Attempts, &s.Submitted); err != nil {
		return nil, fmt.Errorf("ledger: stats: %w", err)
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT failure, COUNT(*) FROM outcomes WHERE failure != '' GROUP BY failure`)
	if err != nil {
		return nil, fmt.Errorf("ledger: stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("ledger: stats: %w", err)
		}
		s.Failures[kind] = n
	}
	return s, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
