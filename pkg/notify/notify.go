// Package notify contains api.Notifier implementations used by the
// outbox worker.
//
// Delivery transports are out of scope: EmailNotifier renders a Message
// and hands it to a Sender, and LogSender is the only Sender shipped here.
package notify

import (
	"context"
	"log/slog"

	"github.com/petrijr/retrofit/pkg/api"
)

// Message is a rendered notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a rendered Message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// LogSender writes messages to a slog.Logger instead of sending them.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "email",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
	return nil
}

// LogNotifier records every status change as a structured log line.
type LogNotifier struct {
	Logger *slog.Logger
}

// NewLogNotifier returns a LogNotifier; a nil logger means slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{Logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, p *api.Participant, ev api.StatusChanged) error {
	n.Logger.InfoContext(ctx, "participant_notification",
		slog.String("event", string(ev.Type)),
		slog.String("participant_id", ev.ParticipantID),
		slog.String("program_id", ev.ProgramID),
		slog.String("from", string(ev.From)),
		slog.String("to", string(ev.To)),
		slog.String("email", p.Email),
		slog.Int64("version", ev.Version),
	)
	return nil
}

// Multi calls each notifier in order and stops at the first error.
func Multi(notifiers ...api.Notifier) api.Notifier {
	return api.NotifierFunc(func(ctx context.Context, p *api.Participant, ev api.StatusChanged) error {
		for _, n := range notifiers {
			if err := n.Notify(ctx, p, ev); err != nil {
				return err
			}
		}
		return nil
	})
}
