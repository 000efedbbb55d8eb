package taskqueue

import (
	"context"
	"errors"
	"time"

	"github.com/petrijr/retrofit/pkg/api"
)

// TaskType identifies what the worker should do.
type TaskType string

const (
	// TaskTypeNotifyStatusChange delivers a StatusChanged event to the Notifier.
	TaskTypeNotifyStatusChange TaskType = "notify-status-change"
)

// Task is an outbox entry written after a participant mutation commits.
type Task struct {
	ID   string   `json:"id"`
	Type TaskType `json:"type"`

	ParticipantID string            `json:"participant_id"`
	Event         api.StatusChanged `json:"event"`

	EnqueuedAt time.Time `json:"enqueued_at"`

	// NotBefore is the earliest time this task should be eligible
	// for processing. Zero value means "immediately".
	NotBefore time.Time `json:"not_before"`

	// Attempts counts previous failed deliveries; LastError holds the
	// most recent failure.
	Attempts  int    `json:"attempts,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// Ready reports whether t may be processed at now.
func (t Task) Ready(now time.Time) bool {
	return t.NotBefore.IsZero() || !t.NotBefore.After(now)
}

// Queue is a simple async task queue interface.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next ready task, blocking until one
	// is available or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued, ready or not.
	Len() int
}

// ErrQueueFull is returned by TryEnqueue when a bounded queue has no room.
var ErrQueueFull = errors.New("task queue is full")

// TryEnqueuer is implemented by bounded queues that can refuse a task
// instead of waiting for room. The engine prefers it when publishing.
type TryEnqueuer interface {
	TryEnqueue(ctx context.Context, t Task) error
}

// stamp fills EnqueuedAt when the caller left it empty.
func stamp(t Task, now time.Time) Task {
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = now
	}
	return t
}
