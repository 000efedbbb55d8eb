package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/time/rate"

	"github.com/petrijr/retrofit/internal/taskqueue"
	"github.com/petrijr/retrofit/pkg/api"
)

// ParticipantSource is the part of the engine the worker reads from.
// api.Engine satisfies it.
type ParticipantSource interface {
	GetParticipant(ctx context.Context, id string) (*api.Participant, error)
}

// Config controls delivery retries.
type Config struct {
	// MaxAttempts is the number of deliveries tried per task before giving
	// up. <= 0 means 5.
	MaxAttempts int

	// Backoff is the delay before the first retry. Each further retry
	// multiplies it by BackoffMultiplier (<= 0 means 2.0), capped at
	// MaxBackoff when that is > 0.
	Backoff           time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration

	// Limiter, when set, is waited on before every delivery attempt. Share
	// one limiter between workers to cap the combined send rate.
	Limiter *rate.Limiter

	// Observer is told about deliveries that were abandoned.
	Observer api.Observer
	Logger   *slog.Logger

	// Now is overridable for tests.
	Now func() time.Time
}

// Worker drains the notification outbox and hands each committed
// StatusChanged event to a Notifier.
type Worker struct {
	participants ParticipantSource
	queue        taskqueue.Queue
	notifier     api.Notifier

	cfg Config
}

// New creates a Worker with default retry settings.
func New(participants ParticipantSource, queue taskqueue.Queue, notifier api.Notifier) *Worker {
	return NewWithConfig(participants, queue, notifier, Config{})
}

// NewWithConfig creates a Worker using cfg.
func NewWithConfig(participants ParticipantSource, queue taskqueue.Queue, notifier api.Notifier, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 2.0
	}
	if cfg.Observer == nil {
		cfg.Observer = api.NoopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Worker{
		participants: participants,
		queue:        queue,
		notifier:     notifier,
		cfg:          cfg,
	}
}

// ProcessOne pulls a single task from the queue and processes it.
// Returns (processed, error):
//   - processed == false: no task was obtained; err is the Dequeue error
//     (usually the context's).
//   - processed == true: a task was taken off the queue; err reports a
//     failed delivery. The task has been rescheduled unless its attempts
//     are used up.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	switch task.Type {
	case taskqueue.TaskTypeNotifyStatusChange:
		return true, w.deliver(ctx, task)
	default:
		// Unknown task type; mark as processed but return an error so this isn't silently ignored.
		return true, errors.New("unknown task type: " + string(task.Type))
	}
}

// dequeueRetryDelay is how long Run waits after a failed Dequeue.
const dequeueRetryDelay = time.Second

// Run calls ProcessOne until ctx is done. Delivery and queue errors are
// logged and do not stop the loop. It returns nil once ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		processed, err := w.ProcessOne(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if processed {
				w.cfg.Logger.WarnContext(ctx, "notification delivery failed", slog.Any("error", err))
				continue
			}
			// The queue backend is unreachable; back off before polling again.
			w.cfg.Logger.ErrorContext(ctx, "outbox dequeue failed", slog.Any("error", err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(dequeueRetryDelay):
			}
		}
	}
}

func (w *Worker) deliver(ctx context.Context, task *taskqueue.Task) error {
	ev := task.Event
	if w.cfg.Limiter != nil {
		if err := w.cfg.Limiter.Wait(ctx); err != nil {
			// Not an attempt; put the task back untouched.
			qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if qerr := w.queue.Enqueue(qctx, *task); qerr != nil {
				return errors.Join(err, fmt.Errorf("requeue: %w", qerr))
			}
			return err
		}
	}

	p, err := w.participants.GetParticipant(ctx, task.ParticipantID)
	if err == nil {
		err = w.notifier.Notify(ctx, p, ev)
	}
	if err == nil {
		w.cfg.Logger.DebugContext(ctx, "notification delivered",
			slog.String("participant_id", ev.ParticipantID),
			slog.String("to", string(ev.To)),
			slog.Int("attempt", task.Attempts+1),
		)
		return nil
	}

	attempts := task.Attempts + 1
	// A participant that is gone will not come back.
	if attempts >= w.cfg.MaxAttempts || errors.Is(err, api.ErrParticipantNotFound) {
		w.giveUp(ctx, task, attempts, err)
		return err
	}

	retry := *task
	retry.Attempts = attempts
	retry.LastError = err.Error()
	retry.NotBefore = w.cfg.Now().Add(w.backoff(attempts))

	// Put the task back even when ctx is already cancelled.
	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if qerr := w.queue.Enqueue(qctx, retry); qerr != nil {
		w.giveUp(ctx, task, attempts, errors.Join(err, fmt.Errorf("reschedule: %w", qerr)))
		return err
	}

	w.cfg.Logger.InfoContext(ctx, "notification rescheduled",
		slog.String("participant_id", ev.ParticipantID),
		slog.Int("attempt", attempts),
		slog.Time("not_before", retry.NotBefore),
		slog.Any("error", err),
	)
	return err
}

func (w *Worker) giveUp(ctx context.Context, task *taskqueue.Task, attempts int, err error) {
	w.cfg.Logger.ErrorContext(ctx, "notification abandoned",
		slog.String("task_id", task.ID),
		slog.String("participant_id", task.ParticipantID),
		slog.String("to", string(task.Event.To)),
		slog.Int("attempts", attempts),
		slog.Any("error", err),
	)
	w.cfg.Observer.OnNotificationFailed(ctx, task.Event, err)
}

// backoff returns the delay before retry number attempt (1-based).
func (w *Worker) backoff(attempt int) time.Duration {
	if w.cfg.Backoff <= 0 {
		return 0
	}
	maxInterval := w.cfg.MaxBackoff
	if maxInterval <= 0 {
		maxInterval = time.Duration(math.MaxInt64)
	}
	// No jitter and no elapsed-time cutoff; MaxAttempts bounds the retries.
	b := &backoff.ExponentialBackOff{
		InitialInterval: w.cfg.Backoff,
		Multiplier:      w.cfg.BackoffMultiplier,
		MaxInterval:     maxInterval,
		Clock:           backoff.SystemClock,
	}
	b.Reset()

	d := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}
