package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/retrofit/pkg/api"
)

func TestAdvance_PermissiveAllowsJumpsAndFlagsThem(t *testing.T) {
	te := newTestEngine(t)
	p := te.enroll(t, "ALL")

	got := te.advance(t, p.ID, api.StatusWorkordersSent)
	assert.Equal(t, api.StatusWorkordersSent, got.Status)

	back := te.advance(t, p.ID, api.StatusReadyForTechReview)
	assert.Equal(t, api.StatusReadyForTechReview, back.Status)

	te.advance(t, p.ID, api.StatusReadyForContractorQuote)

	changes := te.observer.snapshot().changes
	require.Len(t, changes, 3)
	assert.True(t, changes[0].NonAdjacent)
	assert.Equal(t, api.StatusReadyForBooking, changes[0].From)
	assert.True(t, changes[1].NonAdjacent)
	assert.False(t, changes[2].NonAdjacent)
}

func TestAdvance_PermissiveSameStatusAppendsEntry(t *testing.T) {
	te := newTestEngine(t)
	p := te.enroll(t, "ALL")
	te.advance(t, p.ID, api.StatusAuditScheduled)

	got := te.advance(t, p.ID, api.StatusAuditScheduled)
	assert.Len(t, got.StatusHistory, 2)

	changes := te.observer.snapshot().changes
	assert.False(t, changes[len(changes)-1].NonAdjacent)
}

func TestAdvance_StrictRejectsJumps(t *testing.T) {
	te := newTestEngine(t, strict)
	p := te.enroll(t, "ALL")

	_, err := te.Advance(context.Background(), api.TransitionRequest{ParticipantID: p.ID, Target: api.StatusWorkordersSent})

	var nae *api.NonAdjacentTransitionError
	require.ErrorAs(t, err, &nae)
	assert.Equal(t, api.StatusReadyForBooking, nae.From)
	assert.Equal(t, api.StatusWorkordersSent, nae.To)
	assert.ErrorIs(t, err, api.ErrNonAdjacentTransition)

	_, err = te.Advance(context.Background(), api.TransitionRequest{ParticipantID: p.ID, Target: api.StatusReadyForBooking})
	assert.ErrorIs(t, err, api.ErrNonAdjacentTransition, "same status is not a step in strict mode")

	// Neighbours in either direction are fine.
	te.advance(t, p.ID, api.StatusAuditScheduled)
	te.advance(t, p.ID, api.StatusReadyForBooking)
	te.advance(t, p.ID, api.StatusAuditScheduled)
}

func TestAdvance_StrictAllowsHoldAndReturn(t *testing.T) {
	te := newTestEngine(t, strict)
	p := te.enroll(t, "ALL")
	te.advance(t, p.ID, api.StatusAuditScheduled)

	held := te.advance(t, p.ID, api.StatusOnHold)
	assert.Equal(t, api.StatusAuditScheduled, held.PreHoldStatus)

	// From ON_HOLD only the remembered status (or ON_HOLD again) is adjacent.
	_, err := te.Advance(context.Background(), api.TransitionRequest{ParticipantID: p.ID, Target: api.StatusInitialAuditCompleted})
	assert.ErrorIs(t, err, api.ErrNonAdjacentTransition)

	back := te.advance(t, p.ID, api.StatusAuditScheduled)
	assert.Equal(t, api.StatusAuditScheduled, back.Status)
	assert.Empty(t, back.PreHoldStatus)
}

func TestAdvance_StaleStatusCanOnlyBeHeldInStrictMode(t *testing.T) {
	te := newTestEngine(t, strict)
	ctx := context.Background()
	p := te.enroll(t, "ALL")
	te.advance(t, p.ID, api.StatusAuditScheduled)
	te.advance(t, p.ID, api.StatusInitialAuditCompleted)
	te.advance(t, p.ID, api.StatusReadyForTechReview)

	// The program drops tech review; the participant keeps its status.
	require.NoError(t, te.UpdateProgram(ctx, api.Program{ID: "ALL", Steps: programSkip.Steps}))

	tr, err := te.Transitions(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, tr.Found)
	assert.False(t, tr.HasNext())
	assert.False(t, tr.HasPrevious())

	_, err = te.Next(ctx, p.ID, "coordinator", "")
	assert.ErrorIs(t, err, api.ErrNoAdjacentStatus)

	_, err = te.Advance(ctx, api.TransitionRequest{ParticipantID: p.ID, Target: api.StatusWorkordersSent})
	assert.ErrorIs(t, err, api.ErrNonAdjacentTransition)

	held := te.advance(t, p.ID, api.StatusOnHold)
	assert.Equal(t, api.StatusReadyForTechReview, held.PreHoldStatus)

	// The remembered status is no longer valid for this program.
	_, err = te.Resume(ctx, p.ID, "coordinator", "")
	assert.ErrorIs(t, err, api.ErrInvalidTargetStatus)
}

func TestAdvance_StaleStatusPermissiveMoveIsFlagged(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	p := te.enroll(t, "ALL")
	te.advance(t, p.ID, api.StatusReadyForTechReview)
	require.NoError(t, te.UpdateProgram(ctx, api.Program{ID: "ALL", Steps: programSkip.Steps}))

	te.advance(t, p.ID, api.StatusWorkordersSent)

	changes := te.observer.snapshot().changes
	assert.True(t, changes[len(changes)-1].NonAdjacent)
}

func TestAdvance_BlockWhileHeld(t *testing.T) {
	te := newTestEngine(t, func(cfg *Config) { cfg.BlockAdvanceWhileHeld = true })
	ctx := context.Background()
	p := te.enroll(t, "ALL")

	_, err := te.ToggleHold(ctx, p.ID)
	require.NoError(t, err)

	_, err = te.Advance(ctx, api.TransitionRequest{ParticipantID: p.ID, Target: api.StatusAuditScheduled})
	assert.ErrorIs(t, err, api.ErrParticipantOnHold)

	// Moving to ON_HOLD is still allowed.
	te.advance(t, p.ID, api.StatusOnHold)

	_, err = te.ToggleHold(ctx, p.ID)
	require.NoError(t, err)
	te.advance(t, p.ID, api.StatusReadyForBooking)
}

func TestAdvance_HeldParticipantMovesByDefault(t *testing.T) {
	te := newTestEngine(t)
	p := te.enroll(t, "ALL")
	_, err := te.ToggleHold(context.Background(), p.ID)
	require.NoError(t, err)

	got := te.advance(t, p.ID, api.StatusAuditScheduled)
	assert.True(t, got.OnHold)
	assert.Equal(t, api.StatusAuditScheduled, got.Status)
}

func TestNextPrevious(t *testing.T) {
	te := newTestEngine(t, strict)
	ctx := context.Background()
	p := te.enroll(t, "SKIP")

	_, err := te.Previous(ctx, p.ID, "coordinator", "")
	assert.ErrorIs(t, err, api.ErrNoAdjacentStatus)

	want := []api.ParticipantStatus{
		api.StatusAuditScheduled,
		api.StatusInitialAuditCompleted,
		api.StatusWorkordersSent,
	}
	for _, status := range want {
		got, err := te.Next(ctx, p.ID, "coordinator", "next")
		require.NoError(t, err)
		assert.Equal(t, status, got.Status)
	}

	got, err := te.Previous(ctx, p.ID, "coordinator", "undo")
	require.NoError(t, err)
	assert.Equal(t, api.StatusInitialAuditCompleted, got.Status)
	assert.Equal(t, "undo", got.StatusHistory[len(got.StatusHistory)-1].Notes)

	// Walk to the end; Next from COMPLETED is a terminal error.
	for got.Status != api.StatusCompleted {
		got, err = te.Next(ctx, p.ID, "coordinator", "")
		require.NoError(t, err)
	}
	_, err = te.Next(ctx, p.ID, "coordinator", "")
	assert.ErrorIs(t, err, api.ErrTerminalState)
}

func TestTransitions_View(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	p := te.enroll(t, "SKIP")

	tr, err := te.Transitions(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, tr.Found)
	assert.Equal(t, 0, tr.Index)
	assert.False(t, tr.HasPrevious())
	assert.Equal(t, api.StatusAuditScheduled, tr.Next)
	assert.Len(t, tr.Sequence, 7)

	te.advance(t, p.ID, api.StatusInitialAuditCompleted)
	tr, err = te.Transitions(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, api.StatusAuditScheduled, tr.Previous)
	assert.Equal(t, api.StatusWorkordersSent, tr.Next)

	te.advance(t, p.ID, api.StatusCompleted)
	tr, err = te.Transitions(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, tr.HasNext())
	assert.False(t, tr.HasPrevious())
}

func TestResume(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	p := te.enroll(t, "ALL")

	_, err := te.Resume(ctx, p.ID, "coordinator", "")
	assert.ErrorIs(t, err, api.ErrNothingToResume)

	te.advance(t, p.ID, api.StatusAuditScheduled)
	te.advance(t, p.ID, api.StatusInitialAuditCompleted)
	held := te.advance(t, p.ID, api.StatusOnHold)
	assert.Equal(t, api.StatusInitialAuditCompleted, held.PreHoldStatus)

	// A second ON_HOLD entry keeps the original pre-hold status.
	held = te.advance(t, p.ID, api.StatusOnHold)
	assert.Equal(t, api.StatusInitialAuditCompleted, held.PreHoldStatus)

	resumed, err := te.Resume(ctx, p.ID, "coordinator", "customer back")
	require.NoError(t, err)
	assert.Equal(t, api.StatusInitialAuditCompleted, resumed.Status)
	assert.Empty(t, resumed.PreHoldStatus)
	last, _ := resumed.LastUpdate()
	assert.Equal(t, "customer back", last.Notes)
	assert.Len(t, resumed.StatusHistory, 5)

	changes := te.observer.snapshot().changes
	assert.False(t, changes[len(changes)-1].NonAdjacent)
}
