package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/retrofit/internal/persistence"
	"github.com/petrijr/retrofit/pkg/api"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeObserver records all calls from the engine so we can assert on them.
type fakeObserver struct {
	mu sync.Mutex
	observed
}

type observed struct {
	created  []string
	changes  []api.StatusChanged
	rejected []rejection
	holds    []bool
	failed   []api.StatusChanged
}

type rejection struct {
	ParticipantID string
	Target        api.ParticipantStatus
	Err           error
}

func (o *fakeObserver) OnParticipantCreated(ctx context.Context, p *api.Participant) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.created = append(o.created, p.ID)
}

func (o *fakeObserver) OnStatusChanged(ctx context.Context, p *api.Participant, ev api.StatusChanged) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.changes = append(o.changes, ev)
}

func (o *fakeObserver) OnTransitionRejected(ctx context.Context, p *api.Participant, target api.ParticipantStatus, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r := rejection{Target: target, Err: err}
	if p != nil {
		r.ParticipantID = p.ID
	}
	o.rejected = append(o.rejected, r)
}

func (o *fakeObserver) OnHoldToggled(ctx context.Context, p *api.Participant) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.holds = append(o.holds, p.OnHold)
}

func (o *fakeObserver) OnNotificationFailed(ctx context.Context, ev api.StatusChanged, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, ev)
}

func (o *fakeObserver) snapshot() observed {
	o.mu.Lock()
	defer o.mu.Unlock()
	return observed{
		created:  append([]string(nil), o.created...),
		changes:  append([]api.StatusChanged(nil), o.changes...),
		rejected: append([]rejection(nil), o.rejected...),
		holds:    append([]bool(nil), o.holds...),
		failed:   append([]api.StatusChanged(nil), o.failed...),
	}
}

// Programs used across the engine tests.
var (
	programAll = api.Program{
		ID: "ALL", Name: "All steps", IsActive: true,
		Steps: api.AllSteps(),
	}
	programSkip = api.Program{
		ID: "SKIP", Name: "No tech review or quotes", IsActive: true,
		Steps: api.ProgramStepConfig{Booking: true, InitialAudit: true, WorkOrders: true, FinalAudit: true},
	}
	programMinimal = api.Program{
		ID: "MIN", Name: "Minimal", IsActive: true,
	}
)

type testEngine struct {
	api.Engine
	store    *persistence.InMemoryStore
	clock    *fakeClock
	observer *fakeObserver
}

// newTestEngine builds an in-memory engine with the fixture programs
// registered. tweak may adjust the config before construction.
func newTestEngine(t *testing.T, tweak ...func(*Config)) *testEngine {
	t.Helper()

	store := persistence.NewInMemoryStore()
	clock := newFakeClock()
	obs := &fakeObserver{}
	n := 0

	cfg := Config{
		Persistence: persistence.Persistence{Programs: store, Participants: store},
		Observer:    obs,
		Now:         clock.Now,
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		},
	}
	for _, fn := range tweak {
		fn(&cfg)
	}

	eng := NewEngineWithConfig(cfg)
	ctx := context.Background()
	for _, prog := range []api.Program{programAll, programSkip, programMinimal} {
		require.NoError(t, eng.RegisterProgram(ctx, prog))
	}

	return &testEngine{Engine: eng, store: store, clock: clock, observer: obs}
}

func (te *testEngine) enroll(t *testing.T, programID string) *api.Participant {
	t.Helper()
	p, err := te.CreateParticipant(context.Background(), api.NewParticipant{
		ProgramID: programID,
		FirstName: "Jane",
		LastName:  "Doe",
		Email:     "jane@example.com",
	})
	require.NoError(t, err)
	return p
}

func (te *testEngine) advance(t *testing.T, id string, target api.ParticipantStatus) *api.Participant {
	t.Helper()
	te.clock.Advance(time.Minute)
	p, err := te.Advance(context.Background(), api.TransitionRequest{
		ParticipantID: id,
		Target:        target,
		Actor:         "coordinator",
	})
	require.NoError(t, err)
	return p
}

func strict(cfg *Config) { cfg.StrictAdjacency = true }
