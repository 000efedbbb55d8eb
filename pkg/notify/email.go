package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/petrijr/retrofit/pkg/api"
)

const (
	defaultSubject = `{{if .Created}}Welcome to the {{.ProgramID}} energy retrofit program{{else if .Assigned}}Your energy advisor has been assigned{{else}}Your retrofit project status: {{.Label}}{{end}}`

	defaultBody = `Dear {{.Name}},
{{if .Created}}
Thank you for enrolling. Your project is now {{.Label}} and an energy
advisor will contact you to schedule your home energy audit.
{{else if .Assigned}}
{{.AssignedTo}} is now your energy advisor and will be your contact for
the rest of the program. Your project is currently {{.Label}}.
{{else}}
The status of your energy retrofit project has changed to {{.Label}}.
{{- if .Completed}}

Your project is complete. Thank you for taking part in the program.
{{- end}}
{{- if .OnHold}}

Your project is on hold. We will contact you before work resumes.
{{- end}}
{{- if .Notes}}

Notes: {{.Notes}}
{{- end}}
{{- if .AssignedTo}}

Your contact for the next step: {{.AssignedTo}}
{{- end}}
{{end}}
Project reference: {{.ParticipantID}}
Updated: {{.At}}

Best regards,
Energy Audit Team
`
)

// EmailData is what subject and body templates are executed against.
type EmailData struct {
	ParticipantID string
	ProgramID     string
	Name          string
	Label         string
	Status        api.ParticipantStatus
	Previous      api.ParticipantStatus
	Notes         string
	AssignedTo    string
	At            string
	Created       bool
	Assigned      bool
	Completed     bool
	OnHold        bool
}

// Composer renders participant emails from text/template sources.
type Composer struct {
	subject *template.Template
	body    *template.Template
}

// NewComposer parses subject and body templates. Empty strings select the
// built-in templates.
func NewComposer(subject, body string) (*Composer, error) {
	if subject == "" {
		subject = defaultSubject
	}
	if body == "" {
		body = defaultBody
	}
	st, err := template.New("subject").Option("missingkey=error").Parse(subject)
	if err != nil {
		return nil, fmt.Errorf("parse subject template: %w", err)
	}
	bt, err := template.New("body").Option("missingkey=error").Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse body template: %w", err)
	}
	return &Composer{subject: st, body: bt}, nil
}

// Compose renders the message for ev addressed to p.
func (c *Composer) Compose(p *api.Participant, ev api.StatusChanged) (Message, error) {
	name := p.FullName()
	if name == "" {
		name = "Participant"
	}
	data := EmailData{
		ParticipantID: ev.ParticipantID,
		ProgramID:     ev.ProgramID,
		Name:          name,
		Label:         ev.To.Label(),
		Status:        ev.To,
		Previous:      ev.From,
		Notes:         ev.Notes,
		AssignedTo:    ev.AssignedTo,
		At:            ev.At.UTC().Format(time.RFC1123),
		Created:       ev.Type == api.EventParticipantCreated,
		Assigned:      ev.Type == api.EventAdvisorAssigned,
		Completed:     ev.To == api.StatusCompleted,
		OnHold:        ev.To == api.StatusOnHold,
	}

	var subject, body strings.Builder
	if err := c.subject.Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("render subject: %w", err)
	}
	if err := c.body.Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("render body: %w", err)
	}
	return Message{
		To:      p.Email,
		Subject: strings.TrimSpace(subject.String()),
		Body:    body.String(),
	}, nil
}

// EmailNotifier renders a Message for every event and passes it to a
// Sender. Participants without an email address are skipped.
type EmailNotifier struct {
	composer *Composer
	sender   Sender
	logger   *slog.Logger
}

// NewEmailNotifier returns an EmailNotifier. A nil logger means
// slog.Default().
func NewEmailNotifier(composer *Composer, sender Sender, logger *slog.Logger) *EmailNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailNotifier{composer: composer, sender: sender, logger: logger}
}

func (n *EmailNotifier) Notify(ctx context.Context, p *api.Participant, ev api.StatusChanged) error {
	if p.Email == "" {
		n.logger.DebugContext(ctx, "no email address; notification skipped",
			slog.String("participant_id", p.ID))
		return nil
	}
	msg, err := n.composer.Compose(p, ev)
	if err != nil {
		return err
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send to %s: %w", msg.To, err)
	}
	return nil
}
