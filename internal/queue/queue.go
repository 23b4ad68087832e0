// Package queue is the durable offline mutation queue.
//
// Mutations are appended in causal order of local edits and stay in that
// order until removed; nothing here ever reorders unresolved entries. The
// queue is SQLite-backed so pending edits survive process restart. Only the
// sync manager mutates it.
package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roadbook/roadbook/internal/mutation"
)

//go:embed schema.sql
var schemaSQL string

// Keys in the sync_state table.
const (
	stateStatus     = "status"
	stateLastSyncAt = "last_sync_at"
	stateMessage    = "message"
)

// ErrNotFound is returned when an operation names a mutation id that is not
// in the queue.
var ErrNotFound = errors.New("mutation not in queue")

// Queue is a SQLite-backed FIFO of pending mutations plus a small persisted
// sync-state table.
type Queue struct {
	db *sql.DB
}

// Open creates or opens the queue database at the given path.
//
// The database is configured with WAL mode, NORMAL synchronous, a 5-second
// busy timeout, and a single connection (SQLite allows one writer; a single
// connection avoids SQLITE_BUSY on interleaved reads). Idempotent.
func Open(path string) (*Queue, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open queue database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect queue database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply queue schema: %w", err)
	}

	return &Queue{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (q *Queue) Close() error {
	if q.db == nil {
		return nil
	}
	return q.db.Close()
}

// Enqueue appends a mutation at the tail. The payload is stored as JSON;
// duplicate ids are rejected so a mutation cannot be queued twice.
func (q *Queue) Enqueue(ctx context.Context, m mutation.Mutation) error {
	if err := m.Validate(); err != nil {
		return err
	}
	payload, err := mutation.Marshal(m)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO mutations (id, kind, payload, created_at, retry_count)
		VALUES (?, ?, ?, ?, ?)
	`, m.ID, m.Kind.String(), string(payload), m.CreatedAt, m.RetryCount)
	if err != nil {
		return fmt.Errorf("enqueue mutation %s: %w", m.ID, err)
	}
	return nil
}

// RemoveByID removes a mutation by identifier. Removal is not head-only:
// retries interleave with successful removals, so the manager addresses
// entries by id.
func (q *Queue) RemoveByID(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM mutations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove mutation %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove mutation %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("remove mutation %s: %w", id, ErrNotFound)
	}
	return nil
}

// IncrementRetry bumps a mutation's retry counter and returns the new value.
func (q *Queue) IncrementRetry(ctx context.Context, id string) (int, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE mutations SET retry_count = retry_count + 1 WHERE id = ?
	`, id)
	if err != nil {
		return 0, fmt.Errorf("increment retry for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("increment retry for %s: %w", id, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("increment retry for %s: %w", id, ErrNotFound)
	}

	var count int
	err = q.db.QueryRowContext(ctx, `SELECT retry_count FROM mutations WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("read retry count for %s: %w", id, err)
	}
	return count, nil
}

// Snapshot returns all pending mutations in insertion order.
func (q *Queue) Snapshot(ctx context.Context) ([]mutation.Mutation, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT payload, retry_count FROM mutations ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read queue snapshot: %w", err)
	}
	defer rows.Close()

	var out []mutation.Mutation
	for rows.Next() {
		var payload string
		var retries int
		if err := rows.Scan(&payload, &retries); err != nil {
			return nil, fmt.Errorf("scan queue row: %w", err)
		}
		m, err := mutation.Unmarshal([]byte(payload))
		if err != nil {
			return nil, err
		}
		// retry_count column is authoritative; the payload keeps the value
		// from enqueue time.
		m.RetryCount = retries
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read queue snapshot: %w", err)
	}
	return out, nil
}

// Len returns the number of pending mutations.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mutations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count queue: %w", err)
	}
	return n, nil
}

// SaveStatus persists the current sync status string.
func (q *Queue) SaveStatus(ctx context.Context, status string) error {
	return q.setState(ctx, stateStatus, status)
}

// LoadStatus returns the last persisted status, or "" if none.
func (q *Queue) LoadStatus(ctx context.Context) (string, error) {
	return q.getState(ctx, stateStatus)
}

// SaveLastSyncAt persists the last successful sync time (ms since epoch).
func (q *Queue) SaveLastSyncAt(ctx context.Context, at int64) error {
	return q.setState(ctx, stateLastSyncAt, strconv.FormatInt(at, 10))
}

// LoadLastSyncAt returns the last successful sync time, or 0 if none.
func (q *Queue) LoadLastSyncAt(ctx context.Context) (int64, error) {
	v, err := q.getState(ctx, stateLastSyncAt)
	if err != nil || v == "" {
		return 0, err
	}
	at, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse last sync time %q: %w", v, err)
	}
	return at, nil
}

// SaveMessage persists the human-readable status message.
func (q *Queue) SaveMessage(ctx context.Context, msg string) error {
	return q.setState(ctx, stateMessage, msg)
}

// LoadMessage returns the last persisted status message, or "" if none.
func (q *Queue) LoadMessage(ctx context.Context) (string, error) {
	return q.getState(ctx, stateMessage)
}

func (q *Queue) setState(ctx context.Context, key, value string) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO sync_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("save sync state %s: %w", key, err)
	}
	return nil
}

func (q *Queue) getState(ctx context.Context, key string) (string, error) {
	var value string
	err := q.db.QueryRowContext(ctx, `SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load sync state %s: %w", key, err)
	}
	return value, nil
}
