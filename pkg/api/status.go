package api

import (
	"fmt"
	"strings"
)

// ParticipantStatus is the pipeline position of a single participant.
// The string value is what gets stored and sent over the wire.
type ParticipantStatus string

const (
	StatusReadyForBooking         ParticipantStatus = "READY_FOR_BOOKING"
	StatusAuditScheduled          ParticipantStatus = "AUDIT_SCHEDULED"
	StatusInitialAuditCompleted   ParticipantStatus = "INITIAL_AUDIT_COMPLETED"
	StatusReadyForTechReview      ParticipantStatus = "READY_FOR_TECH_REVIEW"
	StatusReadyForContractorQuote ParticipantStatus = "READY_FOR_CONTRACTOR_QUOTE"
	StatusWorkordersSent          ParticipantStatus = "WORKORDERS_SENT"
	StatusReadyForFinalAudit      ParticipantStatus = "READY_FOR_FINAL_AUDIT"
	StatusFinalAuditScheduled     ParticipantStatus = "FINAL_AUDIT_SCHEDULED"
	StatusCompleted               ParticipantStatus = "COMPLETED"

	// StatusOnHold is a side state. It is never part of a derived sequence.
	StatusOnHold ParticipantStatus = "ON_HOLD"
)

// AllStatuses lists every status in pipeline order, ON_HOLD last.
var AllStatuses = []ParticipantStatus{
	StatusReadyForBooking,
	StatusAuditScheduled,
	StatusInitialAuditCompleted,
	StatusReadyForTechReview,
	StatusReadyForContractorQuote,
	StatusWorkordersSent,
	StatusReadyForFinalAudit,
	StatusFinalAuditScheduled,
	StatusCompleted,
	StatusOnHold,
}

func (s ParticipantStatus) String() string { return string(s) }

// IsValid reports whether s is one of the known statuses.
func (s ParticipantStatus) IsValid() bool {
	switch s {
	case StatusReadyForBooking,
		StatusAuditScheduled,
		StatusInitialAuditCompleted,
		StatusReadyForTechReview,
		StatusReadyForContractorQuote,
		StatusWorkordersSent,
		StatusReadyForFinalAudit,
		StatusFinalAuditScheduled,
		StatusCompleted,
		StatusOnHold:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are permitted from s.
func (s ParticipantStatus) IsTerminal() bool { return s == StatusCompleted }

// Label renders the status the way the dashboard shows it, e.g.
// "READY FOR BOOKING".
func (s ParticipantStatus) Label() string {
	return strings.ReplaceAll(string(s), "_", " ")
}

// ParseParticipantStatus converts boundary input into a ParticipantStatus.
// Matching is case-insensitive and accepts spaces or dashes in place of
// underscores.
func ParseParticipantStatus(raw string) (ParticipantStatus, error) {
	norm := strings.ToUpper(strings.TrimSpace(raw))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	s := ParticipantStatus(norm)
	if !s.IsValid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidTargetStatus, raw)
	}
	return s, nil
}
