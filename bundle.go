package retrofit

import (
	"database/sql"

	"github.com/petrijr/retrofit/internal/taskqueue"
	workerpkg "github.com/petrijr/retrofit/pkg/worker"
)

// WorkerBundle wires together an Engine, a durable outbox queue, and a
// Worker that delivers the queued status changes.
//
// For now, we only provide a SQLite-backed bundle.
type WorkerBundle struct {
	Engine Engine
	Worker *workerpkg.Worker

	// queue is kept unexported; it is primarily useful for inspection in
	// tests. The public API focuses on Engine and Worker.
	queue taskqueue.Queue
}

// NewSQLiteBundle constructs a durable Engine + Queue + Worker combo sharing
// the same SQLite database. Programs, participants and pending
// notifications are persisted in the provided *sql.DB, so a change
// committed before a crash is still delivered after restart.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:retrofit.db?_pragma=journal_mode(WAL)")
//	bundle, err := retrofit.NewSQLiteBundle(db, notifier, retrofit.Options{}, worker.Config{MaxAttempts: 3})
//	// register programs and move participants on bundle.Engine
//	// run bundle.Worker.Run(ctx) to deliver notifications
//
// opts.Outbox is ignored; the bundle always uses its SQLite queue.
func NewSQLiteBundle(db *sql.DB, notifier Notifier, opts Options, cfg workerpkg.Config) (*WorkerBundle, error) {
	store, err := NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}

	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}

	opts.Outbox = q
	eng := NewEngineWithOptions(store, opts)

	if cfg.Observer == nil {
		cfg.Observer = opts.Observer
	}
	if cfg.Logger == nil {
		cfg.Logger = opts.Logger
	}
	w := workerpkg.NewWithConfig(eng, q, notifier, cfg)

	return &WorkerBundle{
		Engine: eng,
		Worker: w,
		queue:  q,
	}, nil
}

// Pending returns the approximate number of undelivered notifications.
func (b *WorkerBundle) Pending() int {
	return b.queue.Len()
}
