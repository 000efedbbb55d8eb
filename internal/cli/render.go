package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/petrijr/retrofit/pkg/api"
)

// Output formats accepted by --output.
const (
	OutputText = "text"
	OutputJSON = "json"
)

var (
	statusStyleDone    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	statusStyleHeld    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	statusStyleAudit   = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	statusStyleWaiting = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	statusStyleDefault = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	labelStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	flagStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
)

func statusStyle(s api.ParticipantStatus) lipgloss.Style {
	switch s {
	case api.StatusCompleted:
		return statusStyleDone
	case api.StatusOnHold:
		return statusStyleHeld
	case api.StatusAuditScheduled, api.StatusFinalAuditScheduled, api.StatusInitialAuditCompleted:
		return statusStyleAudit
	case api.StatusReadyForBooking, api.StatusReadyForTechReview,
		api.StatusReadyForContractorQuote, api.StatusReadyForFinalAudit:
		return statusStyleWaiting
	default:
		return statusStyleDefault
	}
}

func renderStatus(s api.ParticipantStatus) string {
	return statusStyle(s).Render(string(s))
}

// printer writes command results in the selected format.
type printer struct {
	w      io.Writer
	format string
}

func (p printer) json(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p printer) participant(part *api.Participant) error {
	if p.format == OutputJSON {
		return p.json(part)
	}

	field := func(label, value string) {
		fmt.Fprintf(p.w, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-10s", label+":")), value)
	}
	field("ID", part.ID)
	field("Name", part.FullName())
	field("Program", part.ProgramID)
	status := renderStatus(part.Status)
	if part.OnHold {
		status += " " + flagStyle.Render("(held)")
	}
	field("Status", status)
	if part.PreHoldStatus != "" {
		field("Resumes", string(part.PreHoldStatus))
	}
	if part.AssignedAdvisor != "" {
		field("Advisor", part.AssignedAdvisor)
	}
	if part.Priority != "" {
		field("Priority", string(part.Priority))
	}
	if part.CompletedAt != nil {
		field("Completed", part.CompletedAt.Format(time.RFC3339))
	}
	field("Version", fmt.Sprint(part.Version))
	return nil
}

func (p printer) participants(parts []*api.Participant) error {
	if p.format == OutputJSON {
		if parts == nil {
			parts = []*api.Participant{}
		}
		return p.json(parts)
	}

	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPROGRAM\tSTATUS\tHELD")
	for _, part := range parts {
		held := ""
		if part.OnHold {
			held = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", part.ID, part.FullName(), part.ProgramID, part.Status, held)
	}
	return tw.Flush()
}

func (p printer) history(entries []api.ParticipantStatusUpdate) error {
	if p.format == OutputJSON {
		if entries == nil {
			entries = []api.ParticipantStatusUpdate{}
		}
		return p.json(entries)
	}

	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tWHEN\tSTATUS\tBY\tNOTES")
	for i, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, e.UpdatedAt.Format(time.RFC3339), e.Status, e.UpdatedBy, e.Notes)
	}
	return tw.Flush()
}

func (p printer) programs(progs []api.Program) error {
	if p.format == OutputJSON {
		if progs == nil {
			progs = []api.Program{}
		}
		return p.json(progs)
	}

	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tACTIVE\tSTEPS")
	for _, prog := range progs {
		steps := make([]string, 0, len(api.CanonicalSteps))
		for _, s := range prog.Steps.EnabledSteps() {
			steps = append(steps, string(s))
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", prog.ID, prog.Name, prog.IsActive, strings.Join(steps, ","))
	}
	return tw.Flush()
}

func (p printer) sequence(seq []api.ParticipantStatus) error {
	if p.format == OutputJSON {
		if seq == nil {
			seq = []api.ParticipantStatus{}
		}
		return p.json(seq)
	}
	for i, s := range seq {
		fmt.Fprintf(p.w, "%2d. %s\n", i+1, renderStatus(s))
	}
	return nil
}

func (p printer) transitions(t api.Transitions) error {
	if p.format == OutputJSON {
		return p.json(t)
	}

	for _, s := range t.Sequence {
		marker := "  "
		if s == t.Current {
			marker = "> "
		}
		fmt.Fprintf(p.w, "%s%s\n", marker, renderStatus(s))
	}
	if !t.Found {
		fmt.Fprintf(p.w, "current status %s is not part of this program\n", renderStatus(t.Current))
	}
	if t.OnHold {
		fmt.Fprintln(p.w, flagStyle.Render("participant is on hold"))
	}
	fmt.Fprintf(p.w, "previous: %s\nnext: %s\n", orNone(t.Previous), orNone(t.Next))
	return nil
}

func orNone(s api.ParticipantStatus) string {
	if s == "" {
		return "-"
	}
	return string(s)
}
