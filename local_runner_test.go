package retrofit

import (
	"context"
	"testing"
	"time"
)

// TestLocalRunner_DeliversAsync verifies that changes made on the runner's
// engine reach the notifier through the worker loop.
func TestLocalRunner_DeliversAsync(t *testing.T) {
	notifier := &flakyNotifier{}
	runner := NewLocalRunner(notifier)
	ctx := context.Background()

	registerResidential(t, runner.Engine)

	if err := runner.StartWorkers(ctx, 2); err != nil {
		t.Fatalf("StartWorkers failed: %v", err)
	}
	defer runner.Stop()

	p := enroll(t, runner.Engine)
	if _, err := runner.Engine.Next(ctx, p.ID, "advisor", ""); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if _, err := runner.Engine.Next(ctx, p.ID, "advisor", ""); err != nil {
		t.Fatalf("Next failed: %v", err)
	}

	// Poll for all three events to be delivered.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(notifier.Delivered()) == 3 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	got := notifier.Delivered()
	if len(got) != 3 {
		t.Fatalf("expected 3 delivered events before timeout, got %d", len(got))
	}

	seen := map[ParticipantStatus]bool{}
	for _, ev := range got {
		seen[ev.To] = true
	}
	for _, s := range []ParticipantStatus{StatusReadyForBooking, StatusAuditScheduled, StatusInitialAuditCompleted} {
		if !seen[s] {
			t.Fatalf("no event delivered for %s", s)
		}
	}

	snap := runner.Metrics.Snapshot()
	if snap.ParticipantsCreated != 1 || snap.Transitions != 2 {
		t.Fatalf("unexpected metrics: %+v", snap)
	}
}

// TestLocalRunner_StartWorkersTwice ensures that StartWorkers cannot be
// called twice without Stop in between.
func TestLocalRunner_StartWorkersTwice(t *testing.T) {
	runner := NewLocalRunner(NotifierFunc(func(ctx context.Context, p *Participant, ev StatusChanged) error {
		return nil
	}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer runner.Stop()

	if err := runner.StartWorkers(ctx, 1); err != nil {
		t.Fatalf("first StartWorkers failed: %v", err)
	}

	if err := runner.StartWorkers(ctx, 1); err == nil {
		t.Fatalf("expected error from second StartWorkers call, got nil")
	}
}

// TestLocalRunner_StopWithoutStart ensures Stop is safe when workers were
// never started.
func TestLocalRunner_StopWithoutStart(t *testing.T) {
	runner := NewLocalRunner(nil)
	// Should not panic or deadlock.
	runner.Stop()
}

// TestLocalRunner_RestartAfterStop checks that a stopped runner can be
// started again.
func TestLocalRunner_RestartAfterStop(t *testing.T) {
	notifier := &flakyNotifier{}
	runner := NewLocalRunner(notifier)
	ctx := context.Background()
	registerResidential(t, runner.Engine)

	if err := runner.StartWorkers(ctx, 1); err != nil {
		t.Fatalf("StartWorkers failed: %v", err)
	}
	runner.Stop()

	enroll(t, runner.Engine)

	if err := runner.StartWorkers(ctx, 1); err != nil {
		t.Fatalf("second StartWorkers failed: %v", err)
	}
	defer runner.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(notifier.Delivered()) == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if len(notifier.Delivered()) != 1 {
		t.Fatalf("expected the enrolment to be delivered after restart, got %d", len(notifier.Delivered()))
	}
}
