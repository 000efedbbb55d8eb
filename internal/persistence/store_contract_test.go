package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/petrijr/retrofit/pkg/api"
)

// contractStore is what every backend implements.
type contractStore interface {
	ProgramStore
	ParticipantStore
}

// StoreContractSuite runs the same behavioural checks against every backend.
// newStore must return an empty store.
type StoreContractSuite struct {
	suite.Suite
	ctx      context.Context
	newStore func() contractStore
	store    contractStore
}

func (s *StoreContractSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore()
}

var baseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func sampleProgram(id string) api.Program {
	return api.Program{
		ID:           id,
		Name:         "Program " + id,
		Abbreviation: id,
		StartDate:    "2025-01-01",
		EndDate:      "2025-12-31",
		IsActive:     true,
		Steps: api.ProgramStepConfig{
			Booking:      true,
			InitialAudit: true,
			FinalAudit:   true,
		},
	}
}

func sampleParticipant(id, programID string, createdAt time.Time) *api.Participant {
	return &api.Participant{
		ID:           id,
		ProgramID:    programID,
		FirstName:    "Jane",
		LastName:     "Doe " + id,
		Email:        id + "@example.com",
		Phone:        "555-0100",
		Address:      "1 Main St",
		City:         "Springfield",
		PostalCode:   "12345",
		PropertyType: "single-family",
		Priority:     api.PriorityMedium,
		Status:       api.StatusReadyForBooking,
		CreatedAt:    createdAt,
		Version:      1,
	}
}

func (s *StoreContractSuite) requireSameParticipant(want, got *api.Participant) {
	s.T().Helper()

	s.Equal(want.ID, got.ID)
	s.Equal(want.ProgramID, got.ProgramID)
	s.Equal(want.FullName(), got.FullName())
	s.Equal(want.Email, got.Email)
	s.Equal(want.Phone, got.Phone)
	s.Equal(want.Address, got.Address)
	s.Equal(want.City, got.City)
	s.Equal(want.PostalCode, got.PostalCode)
	s.Equal(want.PropertyType, got.PropertyType)
	s.Equal(want.AssignedAdvisor, got.AssignedAdvisor)
	s.Equal(want.Priority, got.Priority)
	s.Equal(want.Status, got.Status)
	s.Equal(want.OnHold, got.OnHold)
	s.Equal(want.PreHoldStatus, got.PreHoldStatus)
	s.Equal(want.Version, got.Version)
	s.True(want.CreatedAt.Equal(got.CreatedAt), "created_at: want %v, got %v", want.CreatedAt, got.CreatedAt)

	if want.CompletedAt == nil {
		s.Nil(got.CompletedAt)
	} else if s.NotNil(got.CompletedAt) {
		s.True(want.CompletedAt.Equal(*got.CompletedAt))
	}

	s.Require().Len(got.StatusHistory, len(want.StatusHistory))
	for i := range want.StatusHistory {
		w, g := want.StatusHistory[i], got.StatusHistory[i]
		s.Equal(w.Status, g.Status, "history[%d].status", i)
		s.Equal(w.AssignedTo, g.AssignedTo, "history[%d].assigned_to", i)
		s.Equal(w.Notes, g.Notes, "history[%d].notes", i)
		s.Equal(w.UpdatedBy, g.UpdatedBy, "history[%d].updated_by", i)
		s.True(w.UpdatedAt.Equal(g.UpdatedAt), "history[%d].updated_at", i)
	}
}

func (s *StoreContractSuite) TestProgramLifecycle() {
	prog := sampleProgram("RES")
	s.Require().NoError(s.store.SaveProgram(s.ctx, prog))

	got, err := s.store.GetProgram(s.ctx, "RES")
	s.Require().NoError(err)
	s.Equal(prog, got)

	prog.IsActive = false
	prog.Steps.TechReview = true
	s.Require().NoError(s.store.UpdateProgram(s.ctx, prog))

	got, err = s.store.GetProgram(s.ctx, "RES")
	s.Require().NoError(err)
	s.False(got.IsActive)
	s.True(got.Steps.TechReview)
	s.Equal(prog, got)
}

func (s *StoreContractSuite) TestProgramErrors() {
	s.Require().NoError(s.store.SaveProgram(s.ctx, sampleProgram("LIS")))

	s.ErrorIs(s.store.SaveProgram(s.ctx, sampleProgram("LIS")), ErrProgramExists)
	s.ErrorIs(s.store.UpdateProgram(s.ctx, sampleProgram("nope")), ErrProgramNotFound)

	_, err := s.store.GetProgram(s.ctx, "nope")
	s.ErrorIs(err, ErrProgramNotFound)
}

func (s *StoreContractSuite) TestListProgramsOrderedByID() {
	for _, id := range []string{"LIS", "CR", "RES"} {
		s.Require().NoError(s.store.SaveProgram(s.ctx, sampleProgram(id)))
	}

	progs, err := s.store.ListPrograms(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(progs, 3)
	s.Equal("CR", progs[0].ID)
	s.Equal("LIS", progs[1].ID)
	s.Equal("RES", progs[2].ID)
}

func (s *StoreContractSuite) TestParticipantRoundTrip() {
	p := sampleParticipant("p-1", "RES", baseTime)
	p.AssignedAdvisor = "advisor-7"
	s.Require().NoError(s.store.SaveParticipant(s.ctx, p))

	got, err := s.store.GetParticipant(s.ctx, "p-1")
	s.Require().NoError(err)
	s.requireSameParticipant(p, got)

	_, err = s.store.GetParticipant(s.ctx, "missing")
	s.ErrorIs(err, ErrParticipantNotFound)

	s.ErrorIs(s.store.SaveParticipant(s.ctx, p), ErrParticipantExists)
}

func (s *StoreContractSuite) TestUpdateParticipantAppendsHistory() {
	p := sampleParticipant("p-1", "RES", baseTime)
	s.Require().NoError(s.store.SaveParticipant(s.ctx, p))

	p.Status = api.StatusAuditScheduled
	p.StatusHistory = append(p.StatusHistory, api.ParticipantStatusUpdate{
		Status:     api.StatusAuditScheduled,
		AssignedTo: "auditor-1",
		Notes:      "booked for Tuesday",
		UpdatedAt:  baseTime.Add(time.Hour),
		UpdatedBy:  "coordinator",
	})
	p.Version = 2
	s.Require().NoError(s.store.UpdateParticipant(s.ctx, p, 1))

	p.Status = api.StatusCompleted
	completed := baseTime.Add(48 * time.Hour)
	p.CompletedAt = &completed
	p.OnHold = true
	p.StatusHistory = append(p.StatusHistory, api.ParticipantStatusUpdate{
		Status:    api.StatusCompleted,
		UpdatedAt: completed,
		UpdatedBy: "coordinator",
	})
	p.Version = 3
	s.Require().NoError(s.store.UpdateParticipant(s.ctx, p, 2))

	got, err := s.store.GetParticipant(s.ctx, "p-1")
	s.Require().NoError(err)
	s.requireSameParticipant(p, got)
}

func (s *StoreContractSuite) TestUpdateParticipantVersionConflict() {
	p := sampleParticipant("p-1", "RES", baseTime)
	s.Require().NoError(s.store.SaveParticipant(s.ctx, p))

	stale := p.Clone()

	p.OnHold = true
	p.Version = 2
	s.Require().NoError(s.store.UpdateParticipant(s.ctx, p, 1))

	stale.Status = api.StatusAuditScheduled
	stale.Version = 2
	s.ErrorIs(s.store.UpdateParticipant(s.ctx, stale, 1), ErrVersionConflict)

	got, err := s.store.GetParticipant(s.ctx, "p-1")
	s.Require().NoError(err)
	s.Equal(api.StatusReadyForBooking, got.Status)
	s.True(got.OnHold)
	s.Equal(int64(2), got.Version)
}

func (s *StoreContractSuite) TestUpdateParticipantNotFound() {
	p := sampleParticipant("ghost", "RES", baseTime)
	s.ErrorIs(s.store.UpdateParticipant(s.ctx, p, 1), ErrParticipantNotFound)
}

func (s *StoreContractSuite) TestUpdateParticipantRejectsHistoryRewrite() {
	p := sampleParticipant("p-1", "RES", baseTime)
	p.StatusHistory = []api.ParticipantStatusUpdate{
		{Status: api.StatusAuditScheduled, UpdatedAt: baseTime, UpdatedBy: "a"},
		{Status: api.StatusInitialAuditCompleted, UpdatedAt: baseTime, UpdatedBy: "a"},
	}
	s.Require().NoError(s.store.SaveParticipant(s.ctx, p))

	p.StatusHistory = p.StatusHistory[:1]
	p.Version = 2
	s.ErrorIs(s.store.UpdateParticipant(s.ctx, p, 1), ErrHistoryRewrite)

	got, err := s.store.GetParticipant(s.ctx, "p-1")
	s.Require().NoError(err)
	s.Len(got.StatusHistory, 2)
	s.Equal(int64(1), got.Version)
}

func (s *StoreContractSuite) TestListParticipantsFilters() {
	for i := 0; i < 4; i++ {
		programID := "RES"
		if i%2 == 1 {
			programID = "LIS"
		}
		p := sampleParticipant(fmt.Sprintf("p-%d", i), programID, baseTime.Add(time.Duration(4-i)*time.Minute))
		if i == 2 {
			p.Status = api.StatusAuditScheduled
			p.OnHold = true
		}
		s.Require().NoError(s.store.SaveParticipant(s.ctx, p))
	}

	all, err := s.store.ListParticipants(s.ctx, ParticipantFilter{})
	s.Require().NoError(err)
	s.Require().Len(all, 4)
	// Ordered by creation time; p-3 was created first.
	s.Equal([]string{"p-3", "p-2", "p-1", "p-0"}, participantIDs(all))

	res, err := s.store.ListParticipants(s.ctx, ParticipantFilter{ProgramID: "RES"})
	s.Require().NoError(err)
	s.Equal([]string{"p-2", "p-0"}, participantIDs(res))

	scheduled, err := s.store.ListParticipants(s.ctx, ParticipantFilter{Status: api.StatusAuditScheduled})
	s.Require().NoError(err)
	s.Equal([]string{"p-2"}, participantIDs(scheduled))

	held := true
	onHold, err := s.store.ListParticipants(s.ctx, ParticipantFilter{ProgramID: "RES", OnHold: &held})
	s.Require().NoError(err)
	s.Equal([]string{"p-2"}, participantIDs(onHold))

	none, err := s.store.ListParticipants(s.ctx, ParticipantFilter{ProgramID: "GBI"})
	s.Require().NoError(err)
	s.Empty(none)
}

func participantIDs(ps []*api.Participant) []string {
	ids := make([]string, 0, len(ps))
	for _, p := range ps {
		ids = append(ids, p.ID)
	}
	return ids
}
