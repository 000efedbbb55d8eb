package retrofit

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/petrijr/retrofit/internal/taskqueue"
	"github.com/petrijr/retrofit/pkg/worker"
)

// LocalRunner bundles an in-memory Engine, an in-memory outbox queue, and a
// Worker to provide a simple "local runner" for development and debugging.
//
// Typical usage:
//
//	runner := retrofit.NewLocalRunner(notifier)
//	_ = runner.Engine.RegisterProgram(ctx, prog)
//
//	_ = runner.StartWorkers(ctx, 2)
//	p, _ := runner.Engine.CreateParticipant(ctx, retrofit.NewParticipant{...})
//	_, _ = runner.Engine.Next(ctx, p.ID, "advisor", "")
//	...
//	runner.Stop()
type LocalRunner struct {
	// Engine is the in-memory participant engine used by this runner.
	Engine Engine

	// Queue is the in-memory outbox the Engine writes to and the Worker drains.
	Queue taskqueue.Queue

	// Worker delivers queued status changes to the runner's Notifier.
	Worker *worker.Worker

	// Metrics counts everything the Engine and Worker report.
	Metrics *BasicMetrics

	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalRunner constructs a LocalRunner backed by an in-memory engine,
// in-memory queue, and a Worker with default config that delivers to
// notifier.
//
// This is intended for local development, tests, and simple single-process
// deployments.
func NewLocalRunner(notifier Notifier) *LocalRunner {
	q := taskqueue.NewInMemoryQueue(1024)
	metrics := &BasicMetrics{}
	eng := NewEngineWithOptions(NewInMemoryStore(), Options{
		Observer: metrics,
		Outbox:   q,
	})
	w := worker.NewWithConfig(eng, q, notifier, worker.Config{Observer: metrics})

	return &LocalRunner{
		Engine:  eng,
		Queue:   q,
		Worker:  w,
		Metrics: metrics,
		logger:  slog.Default(),
	}
}

// StartWorkers starts 'concurrency' worker goroutines that continuously call
// Worker.ProcessOne(ctx) until the context is cancelled via Stop.
//
// If StartWorkers is called more than once without Stop, it returns an error.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("retrofit: LocalRunner already started")
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer r.wg.Done()

			for {
				_, err := r.Worker.ProcessOne(ctx)
				if err != nil {
					// Cancellation is a clean shutdown signal.
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					// Keep going so a single bad task doesn't kill the loop.
					r.logger.Error("local runner worker error", "error", err)
					continue
				}
				if ctx.Err() != nil {
					return
				}
			}
		}()
	}

	return nil
}

// Stop cancels all worker goroutines started by StartWorkers and waits
// for them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}
