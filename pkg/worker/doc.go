// Package worker delivers participant status notifications.
//
// The engine never calls a Notifier itself. After every committed change
// it writes a StatusChanged task to an outbox queue; a Worker drains that
// queue, loads the participant and calls api.Notifier.Notify.
//
// # Retries
//
// A failed delivery is put back on the queue with NotBefore set from an
// exponential backoff (Config.Backoff, BackoffMultiplier, MaxBackoff).
// Once Config.MaxAttempts deliveries have failed the task is dropped and
// Observer.OnNotificationFailed is called. The transition that produced
// the event is never affected.
//
// # Running
//
// ProcessOne handles a single task and is convenient in tests. Run loops
// until its context is cancelled. Several workers may share one queue;
// every queue backend hands each task to exactly one consumer.
package worker
