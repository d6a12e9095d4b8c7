package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Busy-retry policy for ledger writes. WAL mode plus the busy_timeout
// pragma already absorbs most lock contention; these retries cover the
// residual SQLITE_BUSY a concurrent writer can still surface.
const (
	busyAttempts = 3
	busyBackoff  = 100 * time.Millisecond // grows linearly per attempt
)

// IsBusy reports whether err is an SQLite lock-contention error worth
// retrying.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// Exec runs one statement, retrying on busy. Used for the ledger's
// standalone writes (marking a domain attempted).
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var result sql.Result
	err := withBusyRetry(ctx, func() error {
		var execErr error
		result, execErr = db.ExecContext(ctx, query, args...)
		return execErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RunTx runs fn inside a transaction, retrying the whole transaction on
// busy. fn must be safe to re-run; the ledger's outcome insert is.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	return withBusyRetry(ctx, func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("dbopen: begin tx: %w", err)
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("dbopen: commit: %w", err)
		}
		return nil
	})
}

// withBusyRetry runs fn up to busyAttempts times, sleeping 100/200/300ms
// between busy failures. Any other error returns immediately.
func withBusyRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= busyAttempts; attempt++ {
		err = fn()
		if err == nil || !IsBusy(err) {
			return err
		}
		if attempt == busyAttempts {
			break
		}
		wait := time.Duration(attempt) * busyBackoff
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("dbopen: context cancelled during retry: %w", ctx.Err())
		case <-timer.C:
			timer.Stop()
		}
	}
	return fmt.Errorf("dbopen: still busy after %d attempts: %w", busyAttempts, err)
}
