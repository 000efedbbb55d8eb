package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// PostgresQueue implements Queue using a PostgreSQL table.
//
// Schema (created automatically if missing):
//
//	CREATE TABLE IF NOT EXISTS outbox_tasks (
//	    seq         BIGSERIAL PRIMARY KEY,
//	    task_id     TEXT NOT NULL,
//	    payload     BYTEA NOT NULL,
//	    enqueued_at TIMESTAMPTZ NOT NULL,
//	    not_before  TIMESTAMPTZ NOT NULL
//	);
//
// Ready tasks are claimed in (not_before, seq) order with
// FOR UPDATE SKIP LOCKED, so several dispatchers can share one table.
type PostgresQueue struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewPostgresQueue creates the required schema if needed and returns a Queue.
func NewPostgresQueue(db *sql.DB) (*PostgresQueue, error) {
	q := &PostgresQueue{db: db, pollInterval: 100 * time.Millisecond}
	if err := q.initSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

// Ensure PostgresQueue implements Queue.
var _ Queue = (*PostgresQueue)(nil)

func (q *PostgresQueue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS outbox_tasks (
			seq         BIGSERIAL PRIMARY KEY,
			task_id     TEXT NOT NULL,
			payload     BYTEA NOT NULL,
			enqueued_at TIMESTAMPTZ NOT NULL,
			not_before  TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_outbox_tasks_ready ON outbox_tasks(not_before, seq);
	`)
	return err
}

// Enqueue inserts a task into the queue.
func (q *PostgresQueue) Enqueue(ctx context.Context, t Task) error {
	t = stamp(t, time.Now())

	data, err := EncodeTask(t)
	if err != nil {
		return err
	}

	notBefore := t.EnqueuedAt
	if !t.NotBefore.IsZero() {
		notBefore = t.NotBefore
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO outbox_tasks (task_id, payload, enqueued_at, not_before)
		VALUES ($1, $2, $3, $4)
	`, t.ID, data, t.EnqueuedAt.UTC(), notBefore.UTC())
	return err
}

// Dequeue blocks (with polling) until a ready task is available or ctx is
// cancelled.
func (q *PostgresQueue) Dequeue(ctx context.Context) (*Task, error) {
	// Use a reusable timer to avoid allocating a new timer on every idle poll.
	tmr := time.NewTimer(0)
	if !tmr.Stop() {
		select {
		case <-tmr.C:
		default:
		}
	}
	defer tmr.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		task, err := q.claim(ctx)
		if err != nil {
			return nil, err
		}
		if task != nil {
			return task, nil
		}

		tmr.Reset(q.pollInterval)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-tmr.C:
		}
	}
}

// claim locks the oldest ready row, deletes it and returns its task. It
// returns nil when nothing is ready.
func (q *PostgresQueue) claim(ctx context.Context) (*Task, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		seq     int64
		payload []byte
	)
	err = tx.QueryRowContext(ctx, `
		SELECT seq, payload
		FROM outbox_tasks
		WHERE not_before <= $1
		ORDER BY not_before, seq
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`, time.Now().UTC()).Scan(&seq, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM outbox_tasks WHERE seq = $1`, seq); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	task, err := DecodeTask(payload)
	if err != nil {
		return nil, fmt.Errorf("decode outbox task %d: %w", seq, err)
	}
	return task, nil
}

// Len returns an approximate number of queued tasks.
func (q *PostgresQueue) Len() int {
	var n int
	if err := q.db.QueryRow(`SELECT COUNT(*) FROM outbox_tasks`).Scan(&n); err != nil {
		slog.Warn("postgres queue: count failed", slog.Any("error", err))
		return 0
	}
	return n
}
