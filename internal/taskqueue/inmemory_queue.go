package taskqueue

import (
	"context"
	"errors"
	"sync"
	"time"
)

// InMemoryQueue is a Queue kept in process memory. Ready tasks come out in
// NotBefore order, FIFO among equals. It is safe for concurrent use.
type InMemoryQueue struct {
	mu       sync.Mutex
	tasks    []Task
	capacity int
	// notify is signalled (non-blocking) whenever the queue changes.
	notify chan struct{}
	now    func() time.Time
}

// NewInMemoryQueue creates a new queue holding at most capacity tasks.
// For tests and small deployments, a modest capacity (e.g. 1024) is fine.
func NewInMemoryQueue(capacity int) *InMemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &InMemoryQueue{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
		now:      time.Now,
	}
}

// Ensure InMemoryQueue implements Queue.
var _ Queue = (*InMemoryQueue)(nil)

func (q *InMemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Ensure InMemoryQueue can refuse tasks when full.
var _ TryEnqueuer = (*InMemoryQueue)(nil)

// Enqueue blocks while the queue is full.
func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	for {
		if err := q.TryEnqueue(ctx, t); !errors.Is(err, ErrQueueFull) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// TryEnqueue adds t, or returns ErrQueueFull at once when there is no room.
func (q *InMemoryQueue) TryEnqueue(_ context.Context, t Task) error {
	q.mu.Lock()
	if len(q.tasks) >= q.capacity {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.tasks = append(q.tasks, stamp(t, q.now()))
	q.mu.Unlock()
	q.signal()
	return nil
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		task, wait := q.take()
		if task != nil {
			// Another waiter may be able to take the next task.
			q.signal()
			return task, nil
		}

		if err := q.wait(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// wait blocks until the queue changes, d elapses (when d > 0) or ctx ends.
func (q *InMemoryQueue) wait(ctx context.Context, d time.Duration) error {
	var timer <-chan time.Time
	if d > 0 {
		tmr := time.NewTimer(d)
		defer tmr.Stop()
		timer = tmr.C
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.notify:
	case <-timer:
	}
	return nil
}

// take removes the earliest ready task. When none is ready it returns the
// time until the earliest pending task becomes ready (0 if the queue is empty).
func (q *InMemoryQueue) take() (*Task, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	best := -1
	var wait time.Duration
	for i, t := range q.tasks {
		if !t.Ready(now) {
			if d := t.NotBefore.Sub(now); wait == 0 || d < wait {
				wait = d
			}
			continue
		}
		if best == -1 || t.NotBefore.Before(q.tasks[best].NotBefore) {
			best = i
		}
	}
	if best == -1 {
		return nil, wait
	}

	task := q.tasks[best]
	q.tasks = append(q.tasks[:best], q.tasks[best+1:]...)
	return &task, 0
}

func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
