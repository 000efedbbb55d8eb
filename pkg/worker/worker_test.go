package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/petrijr/retrofit/internal/engine"
	"github.com/petrijr/retrofit/internal/persistence"
	"github.com/petrijr/retrofit/internal/taskqueue"
	"github.com/petrijr/retrofit/pkg/api"
)

// recordingNotifier records deliveries and fails the first failFirst calls
// (all calls when failFirst < 0).
type recordingNotifier struct {
	mu        sync.Mutex
	failFirst int
	calls     int
	delivered []api.StatusChanged
	statuses  []api.ParticipantStatus
}

func (n *recordingNotifier) Notify(ctx context.Context, p *api.Participant, ev api.StatusChanged) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if n.failFirst < 0 || n.calls <= n.failFirst {
		return errors.New("mail server unavailable")
	}
	n.delivered = append(n.delivered, ev)
	n.statuses = append(n.statuses, p.Status)
	return nil
}

func (n *recordingNotifier) snapshot() (calls int, delivered []api.StatusChanged) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls, append([]api.StatusChanged(nil), n.delivered...)
}

type failureRecorder struct {
	api.NoopObserver
	mu     sync.Mutex
	events []api.StatusChanged
}

func (o *failureRecorder) OnNotificationFailed(ctx context.Context, ev api.StatusChanged, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

func (o *failureRecorder) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.events)
}

var testProgram = api.Program{
	ID:    "RES",
	Name:  "Residential",
	Steps: api.ProgramStepConfig{Booking: true, InitialAudit: true},
}

// newEngineWithOutbox returns an in-memory engine that publishes to q, with
// testProgram registered and one participant enrolled.
func newEngineWithOutbox(t *testing.T, q taskqueue.Queue) (api.Engine, *api.Participant) {
	t.Helper()
	mem := persistence.NewInMemoryStore()
	eng := engine.NewEngineWithConfig(engine.Config{
		Persistence: persistence.Persistence{Programs: mem, Participants: mem},
		Outbox:      q,
	})
	ctx := context.Background()
	if err := eng.RegisterProgram(ctx, testProgram); err != nil {
		t.Fatalf("RegisterProgram failed: %v", err)
	}
	p, err := eng.CreateParticipant(ctx, api.NewParticipant{ProgramID: "RES", FirstName: "Jane"})
	if err != nil {
		t.Fatalf("CreateParticipant failed: %v", err)
	}
	return eng, p
}

func processWithin(t *testing.T, w *Worker, d time.Duration) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	processed, err := w.ProcessOne(ctx)
	if !processed {
		t.Fatalf("expected a task to be processed, got err=%v", err)
	}
	return err
}

func TestWorker_DeliversCommittedChanges(t *testing.T) {
	q := taskqueue.NewInMemoryQueue(16)
	eng, p := newEngineWithOutbox(t, q)
	ctx := context.Background()

	if _, err := eng.Next(ctx, p.ID, "coordinator", ""); err != nil {
		t.Fatalf("Next failed: %v", err)
	}

	n := &recordingNotifier{}
	w := New(eng, q, n)

	for i := 0; i < 2; i++ {
		if err := processWithin(t, w, time.Second); err != nil {
			t.Fatalf("ProcessOne #%d failed: %v", i+1, err)
		}
	}

	_, delivered := n.snapshot()
	if len(delivered) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(delivered))
	}
	if delivered[0].Type != api.EventParticipantCreated {
		t.Fatalf("first delivery = %s, want %s", delivered[0].Type, api.EventParticipantCreated)
	}
	if delivered[1].From != api.StatusReadyForBooking || delivered[1].To != api.StatusAuditScheduled {
		t.Fatalf("unexpected second delivery: %+v", delivered[1])
	}
	// The notifier sees the participant as currently stored.
	if n.statuses[0] != api.StatusAuditScheduled {
		t.Fatalf("expected current status AUDIT_SCHEDULED, got %s", n.statuses[0])
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", q.Len())
	}
}

func TestWorker_RetriesWithBackoff(t *testing.T) {
	q := taskqueue.NewInMemoryQueue(16)
	eng, p := newEngineWithOutbox(t, q)

	backoff := 30 * time.Millisecond
	n := &recordingNotifier{failFirst: 1}
	obs := &failureRecorder{}
	w := NewWithConfig(eng, q, n, Config{MaxAttempts: 3, Backoff: backoff, Observer: obs})

	start := time.Now()
	if err := processWithin(t, w, time.Second); err == nil {
		t.Fatalf("expected first delivery to fail")
	}
	if q.Len() != 1 {
		t.Fatalf("expected the task to be rescheduled, queue len %d", q.Len())
	}

	if err := processWithin(t, w, time.Second); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < backoff {
		t.Fatalf("retry ran after %v, want at least %v", elapsed, backoff)
	}

	calls, delivered := n.snapshot()
	if calls != 2 || len(delivered) != 1 || delivered[0].ParticipantID != p.ID {
		t.Fatalf("unexpected deliveries: calls=%d delivered=%+v", calls, delivered)
	}
	if obs.count() != 0 {
		t.Fatalf("no failure should be reported after a successful retry")
	}
}

func TestWorker_GivesUpAfterMaxAttempts(t *testing.T) {
	q := taskqueue.NewInMemoryQueue(16)
	eng, _ := newEngineWithOutbox(t, q)

	n := &recordingNotifier{failFirst: -1}
	obs := &failureRecorder{}
	w := NewWithConfig(eng, q, n, Config{MaxAttempts: 3, Backoff: time.Millisecond, Observer: obs})

	for i := 0; i < 3; i++ {
		if err := processWithin(t, w, time.Second); err == nil {
			t.Fatalf("attempt %d: expected failure", i+1)
		}
	}

	if calls, _ := n.snapshot(); calls != 3 {
		t.Fatalf("expected 3 delivery attempts, got %d", calls)
	}
	if q.Len() != 0 {
		t.Fatalf("expected the task to be dropped, queue len %d", q.Len())
	}
	if obs.count() != 1 {
		t.Fatalf("expected one OnNotificationFailed, got %d", obs.count())
	}

	// The transition that produced the event stands.
	ps, err := eng.ListParticipants(context.Background(), api.ParticipantListOptions{})
	if err != nil || len(ps) != 1 {
		t.Fatalf("ListParticipants = %v, %v", ps, err)
	}
}

func TestWorker_RetryCarriesAttemptAndError(t *testing.T) {
	q := taskqueue.NewInMemoryQueue(16)
	eng, _ := newEngineWithOutbox(t, q)

	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	w := NewWithConfig(eng, q, &recordingNotifier{failFirst: -1}, Config{
		MaxAttempts: 5,
		Backoff:     time.Hour,
		Now:         func() time.Time { return now },
	})
	if err := processWithin(t, w, time.Second); err == nil {
		t.Fatalf("expected delivery failure")
	}

	// Past its NotBefore the task is ready again; the real clock is well
	// beyond the fake one.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	task, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if task.Attempts != 1 {
		t.Fatalf("Attempts = %d, want 1", task.Attempts)
	}
	if task.LastError != "mail server unavailable" {
		t.Fatalf("LastError = %q", task.LastError)
	}
	if !task.NotBefore.Equal(now.Add(time.Hour)) {
		t.Fatalf("NotBefore = %v, want %v", task.NotBefore, now.Add(time.Hour))
	}
}

func TestWorker_MissingParticipantIsDroppedImmediately(t *testing.T) {
	q := taskqueue.NewInMemoryQueue(16)
	mem := persistence.NewInMemoryStore()
	eng := engine.NewEngine(persistence.Persistence{Programs: mem, Participants: mem})

	ctx := context.Background()
	if err := q.Enqueue(ctx, taskqueue.Task{
		ID:            "t-1",
		Type:          taskqueue.TaskTypeNotifyStatusChange,
		ParticipantID: "ghost",
		Event:         api.StatusChanged{ParticipantID: "ghost", To: api.StatusCompleted},
	}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	obs := &failureRecorder{}
	n := &recordingNotifier{}
	w := NewWithConfig(eng, q, n, Config{MaxAttempts: 5, Observer: obs})

	err := processWithin(t, w, time.Second)
	if !errors.Is(err, api.ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}
	if q.Len() != 0 || obs.count() != 1 {
		t.Fatalf("expected task dropped and reported, len=%d failures=%d", q.Len(), obs.count())
	}
	if calls, _ := n.snapshot(); calls != 0 {
		t.Fatalf("notifier should not be called, got %d calls", calls)
	}
}

func TestWorker_UnknownTaskType(t *testing.T) {
	q := taskqueue.NewInMemoryQueue(4)
	if err := q.Enqueue(context.Background(), taskqueue.Task{Type: "reindex"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	w := New(nil, q, &recordingNotifier{})

	if err := processWithin(t, w, time.Second); err == nil {
		t.Fatalf("expected error for unknown task type")
	}
}

func TestWorker_ProcessOneRespectsContext(t *testing.T) {
	w := New(nil, taskqueue.NewInMemoryQueue(4), &recordingNotifier{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	processed, err := w.ProcessOne(ctx)
	if processed || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("ProcessOne = %v, %v; want false, DeadlineExceeded", processed, err)
	}
}

func TestWorker_RunDrainsUntilCancelled(t *testing.T) {
	q := taskqueue.NewInMemoryQueue(64)
	eng, p := newEngineWithOutbox(t, q)
	ctx := context.Background()

	for _, target := range []api.ParticipantStatus{api.StatusAuditScheduled, api.StatusOnHold, api.StatusAuditScheduled} {
		if _, err := eng.Advance(ctx, api.TransitionRequest{ParticipantID: p.ID, Target: target}); err != nil {
			t.Fatalf("Advance(%s) failed: %v", target, err)
		}
	}

	n := &recordingNotifier{}
	w := New(eng, q, n)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, delivered := n.snapshot(); len(delivered) == 4 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for deliveries")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}

func TestWorker_Backoff(t *testing.T) {
	w := NewWithConfig(nil, nil, nil, Config{
		Backoff:    100 * time.Millisecond,
		MaxBackoff: time.Second,
	})
	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for i, d := range want {
		if got := w.backoff(i + 1); got != d {
			t.Fatalf("backoff(%d) = %v, want %v", i+1, got, d)
		}
	}

	constant := NewWithConfig(nil, nil, nil, Config{Backoff: 50 * time.Millisecond, BackoffMultiplier: 1})
	if got := constant.backoff(4); got != 50*time.Millisecond {
		t.Fatalf("constant backoff = %v", got)
	}
	if got := New(nil, nil, nil).backoff(3); got != 0 {
		t.Fatalf("zero backoff = %v", got)
	}
}

func TestWorker_BackoffUncapped(t *testing.T) {
	w := NewWithConfig(nil, nil, nil, Config{Backoff: 10 * time.Millisecond, BackoffMultiplier: 3})
	if got := w.backoff(4); got != 270*time.Millisecond {
		t.Fatalf("backoff(4) = %v, want 270ms", got)
	}
	// Repeated calls start from the initial interval again.
	if got := w.backoff(1); got != 10*time.Millisecond {
		t.Fatalf("backoff(1) = %v, want 10ms", got)
	}
}

func TestWorker_LimiterSpacesDeliveries(t *testing.T) {
	q := taskqueue.NewInMemoryQueue(16)
	eng, p := newEngineWithOutbox(t, q)
	ctx := context.Background()

	if _, err := eng.Next(ctx, p.ID, "coordinator", ""); err != nil {
		t.Fatalf("Next failed: %v", err)
	}

	interval := 50 * time.Millisecond
	n := &recordingNotifier{}
	w := NewWithConfig(eng, q, n, Config{Limiter: rate.NewLimiter(rate.Every(interval), 1)})

	start := time.Now()
	for i := 0; i < 2; i++ {
		if err := processWithin(t, w, time.Second); err != nil {
			t.Fatalf("ProcessOne #%d failed: %v", i+1, err)
		}
	}
	if elapsed := time.Since(start); elapsed < interval-5*time.Millisecond {
		t.Fatalf("second delivery after %v, want at least %v", elapsed, interval)
	}
	if _, delivered := n.snapshot(); len(delivered) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(delivered))
	}
}

func TestWorker_LimiterTimeoutRequeuesWithoutAttempt(t *testing.T) {
	q := taskqueue.NewInMemoryQueue(16)
	eng, p := newEngineWithOutbox(t, q)

	if _, err := eng.Next(context.Background(), p.ID, "coordinator", ""); err != nil {
		t.Fatalf("Next failed: %v", err)
	}

	n := &recordingNotifier{}
	w := NewWithConfig(eng, q, n, Config{Limiter: rate.NewLimiter(rate.Every(time.Hour), 1)})

	if err := processWithin(t, w, time.Second); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}

	// The bucket is empty for an hour, so the wait cannot fit the deadline.
	if err := processWithin(t, w, 50*time.Millisecond); err == nil {
		t.Fatalf("expected limiter error")
	}

	if calls, _ := n.snapshot(); calls != 1 {
		t.Fatalf("notifier calls = %d, want 1", calls)
	}
	if q.Len() != 1 {
		t.Fatalf("expected task back in queue, got %d", q.Len())
	}
	task, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if task.Attempts != 0 {
		t.Fatalf("attempts = %d, want 0", task.Attempts)
	}
}
