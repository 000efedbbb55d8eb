package api

import (
	"fmt"
	"strings"
)

// Step is an optional stage of the pipeline that a program may include.
type Step string

const (
	StepBooking         Step = "booking"
	StepInitialAudit    Step = "initialAudit"
	StepTechReview      Step = "techReview"
	StepQuoteGeneration Step = "quoteGeneration"
	StepWorkOrders      Step = "workOrders"
	StepFinalAudit      Step = "finalAudit"
)

// CanonicalSteps is the fixed order in which enabled steps contribute their
// statuses to a derived sequence.
var CanonicalSteps = []Step{
	StepBooking,
	StepInitialAudit,
	StepTechReview,
	StepQuoteGeneration,
	StepWorkOrders,
	StepFinalAudit,
}

var stepStatuses = map[Step][]ParticipantStatus{
	StepBooking:         {StatusReadyForBooking, StatusAuditScheduled},
	StepInitialAudit:    {StatusInitialAuditCompleted},
	StepTechReview:      {StatusReadyForTechReview},
	StepQuoteGeneration: {StatusReadyForContractorQuote},
	StepWorkOrders:      {StatusWorkordersSent},
	StepFinalAudit:      {StatusReadyForFinalAudit, StatusFinalAuditScheduled},
}

// StepStatuses returns the ordered statuses a step contributes when enabled.
// The returned slice is a copy.
func StepStatuses(step Step) []ParticipantStatus {
	src := stepStatuses[step]
	out := make([]ParticipantStatus, len(src))
	copy(out, src)
	return out
}

// Label is the human-readable step name used by the settings screens.
func (s Step) Label() string {
	switch s {
	case StepBooking:
		return "Booking"
	case StepInitialAudit:
		return "Initial Audit"
	case StepTechReview:
		return "Technical Review"
	case StepQuoteGeneration:
		return "Quote Generation"
	case StepWorkOrders:
		return "Work Orders"
	case StepFinalAudit:
		return "Final Audit"
	default:
		return string(s)
	}
}

// ParseStep converts boundary input into a Step. Matching is
// case-insensitive.
func ParseStep(raw string) (Step, error) {
	for _, s := range CanonicalSteps {
		if strings.EqualFold(string(s), strings.TrimSpace(raw)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown program step %q", raw)
}

// ProgramStepConfig records which optional pipeline stages a program has
// enabled. The zero value enables nothing, which is legal.
type ProgramStepConfig struct {
	Booking         bool `json:"booking" yaml:"booking" mapstructure:"booking" bson:"booking"`
	InitialAudit    bool `json:"initialAudit" yaml:"initialAudit" mapstructure:"initialAudit" bson:"initial_audit"`
	TechReview      bool `json:"techReview" yaml:"techReview" mapstructure:"techReview" bson:"tech_review"`
	QuoteGeneration bool `json:"quoteGeneration" yaml:"quoteGeneration" mapstructure:"quoteGeneration" bson:"quote_generation"`
	WorkOrders      bool `json:"workOrders" yaml:"workOrders" mapstructure:"workOrders" bson:"work_orders"`
	FinalAudit      bool `json:"finalAudit" yaml:"finalAudit" mapstructure:"finalAudit" bson:"final_audit"`
}

// AllSteps returns a config with every optional step enabled.
func AllSteps() ProgramStepConfig {
	return ProgramStepConfig{
		Booking:         true,
		InitialAudit:    true,
		TechReview:      true,
		QuoteGeneration: true,
		WorkOrders:      true,
		FinalAudit:      true,
	}
}

// Enabled reports whether step is turned on in c.
func (c ProgramStepConfig) Enabled(step Step) bool {
	switch step {
	case StepBooking:
		return c.Booking
	case StepInitialAudit:
		return c.InitialAudit
	case StepTechReview:
		return c.TechReview
	case StepQuoteGeneration:
		return c.QuoteGeneration
	case StepWorkOrders:
		return c.WorkOrders
	case StepFinalAudit:
		return c.FinalAudit
	default:
		return false
	}
}

// With returns a copy of c with step set to enabled.
func (c ProgramStepConfig) With(step Step, enabled bool) ProgramStepConfig {
	switch step {
	case StepBooking:
		c.Booking = enabled
	case StepInitialAudit:
		c.InitialAudit = enabled
	case StepTechReview:
		c.TechReview = enabled
	case StepQuoteGeneration:
		c.QuoteGeneration = enabled
	case StepWorkOrders:
		c.WorkOrders = enabled
	case StepFinalAudit:
		c.FinalAudit = enabled
	}
	return c
}

// EnabledSteps lists the enabled steps in canonical order.
func (c ProgramStepConfig) EnabledSteps() []Step {
	var out []Step
	for _, s := range CanonicalSteps {
		if c.Enabled(s) {
			out = append(out, s)
		}
	}
	return out
}

// Program is a retrofit initiative with its own enabled pipeline steps.
// StartDate and EndDate are carried opaquely; nothing in the workflow
// depends on them.
type Program struct {
	ID           string            `json:"id" yaml:"id"`
	Name         string            `json:"name" yaml:"name"`
	Abbreviation string            `json:"abbreviation" yaml:"abbreviation"`
	StartDate    string            `json:"startDate" yaml:"startDate"`
	EndDate      string            `json:"endDate" yaml:"endDate"`
	IsActive     bool              `json:"isActive" yaml:"isActive"`
	Steps        ProgramStepConfig `json:"steps" yaml:"steps"`
}
