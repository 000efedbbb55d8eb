package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/petrijr/retrofit/internal/persistence"
	"github.com/petrijr/retrofit/internal/taskqueue"
	"github.com/petrijr/retrofit/pkg/api"
)

const tracerName = "github.com/petrijr/retrofit/internal/engine"

// outboxTimeout bounds how long a committed change waits for a durable
// outbox write.
const outboxTimeout = 5 * time.Second

// engineImpl is the in-process participant workflow engine. All state lives
// in the configured stores; the engine itself only holds per-participant
// locks.
type engineImpl struct {
	programs     persistence.ProgramStore
	participants persistence.ParticipantStore

	outbox   taskqueue.Queue
	observer api.Observer
	logger   *slog.Logger
	tracer   trace.Tracer

	strictAdjacency       bool
	blockAdvanceWhileHeld bool

	now   func() time.Time
	newID func() string

	locks *lockRegistry
	// programMu serializes program read-modify-write operations.
	programMu sync.Mutex
}

// Config describes how to construct an engineImpl.
// External callers normally use the helper constructors instead.
type Config struct {
	Persistence persistence.Persistence
	Observer    api.Observer

	// Outbox receives a StatusChanged task after every committed change.
	// Nil disables notifications.
	Outbox taskqueue.Queue

	// StrictAdjacency rejects moves that are not to the immediate next or
	// previous status. When false such moves are accepted and flagged.
	StrictAdjacency bool

	// BlockAdvanceWhileHeld rejects status changes (other than to ON_HOLD)
	// while the hold flag is set.
	BlockAdvanceWhileHeld bool

	Logger *slog.Logger
	Tracer trace.Tracer

	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

func NewInMemoryEngine() api.Engine {
	mem := persistence.NewInMemoryStore()
	return NewEngine(persistence.Persistence{
		Programs:     mem,
		Participants: mem,
	})
}

func NewSQLiteEngine(db *sql.DB) (api.Engine, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngine(persistence.Persistence{
		Programs:     store,
		Participants: store,
	}), nil
}

func NewPostgresEngine(db *sql.DB) (api.Engine, error) {
	store, err := persistence.NewPostgresStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngine(persistence.Persistence{
		Programs:     store,
		Participants: store,
	}), nil
}

// NewRedisEngine creates an engine that keeps programs and participants in
// Redis under the "retrofit:" prefix.
func NewRedisEngine(client *redis.Client) api.Engine {
	store := persistence.NewRedisStore(client, "retrofit:")
	return NewEngine(persistence.Persistence{
		Programs:     store,
		Participants: store,
	})
}

// NewMongoEngine creates an engine backed by the given MongoDB database.
func NewMongoEngine(client *mongo.Client, dbName string) api.Engine {
	store := persistence.NewMongoStore(client, dbName)
	return NewEngine(persistence.Persistence{
		Programs:     store,
		Participants: store,
	})
}

// NewEngine returns an Engine over the given stores with default settings.
func NewEngine(p persistence.Persistence) api.Engine {
	return NewEngineWithConfig(Config{
		Persistence: p,
	})
}

// NewEngineWithConfig creates a new Engine using the given configuration.
func NewEngineWithConfig(cfg Config) api.Engine {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(tracerName)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return &engineImpl{
		programs:              cfg.Persistence.Programs,
		participants:          cfg.Persistence.Participants,
		outbox:                cfg.Outbox,
		observer:              obs,
		logger:                logger,
		tracer:                tracer,
		strictAdjacency:       cfg.StrictAdjacency,
		blockAdvanceWhileHeld: cfg.BlockAdvanceWhileHeld,
		now:                   now,
		newID:                 newID,
		locks:                 newLockRegistry(),
	}
}

// startSpan opens a span for an engine operation.
func (e *engineImpl) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "engine."+name, trace.WithAttributes(attrs...))
}

// endSpan records err (if any) on span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (e *engineImpl) RegisterProgram(ctx context.Context, prog api.Program) (err error) {
	ctx, span := e.startSpan(ctx, "RegisterProgram", attribute.String("program.id", prog.ID))
	defer func() { endSpan(span, err) }()

	if prog.ID == "" {
		return errors.New("program id is required")
	}

	if err := e.programs.SaveProgram(ctx, prog); err != nil {
		if errors.Is(err, persistence.ErrProgramExists) {
			return fmt.Errorf("%w: %s", api.ErrProgramExists, prog.ID)
		}
		return fmt.Errorf("save program %s: %w", prog.ID, err)
	}
	return nil
}

func (e *engineImpl) UpdateProgram(ctx context.Context, prog api.Program) (err error) {
	ctx, span := e.startSpan(ctx, "UpdateProgram", attribute.String("program.id", prog.ID))
	defer func() { endSpan(span, err) }()

	e.programMu.Lock()
	defer e.programMu.Unlock()

	return e.saveProgramUpdate(ctx, prog)
}

func (e *engineImpl) SetProgramActive(ctx context.Context, programID string, active bool) (err error) {
	ctx, span := e.startSpan(ctx, "SetProgramActive",
		attribute.String("program.id", programID),
		attribute.Bool("program.active", active),
	)
	defer func() { endSpan(span, err) }()

	e.programMu.Lock()
	defer e.programMu.Unlock()

	prog, err := e.loadProgram(ctx, programID)
	if err != nil {
		return err
	}
	prog.IsActive = active
	return e.saveProgramUpdate(ctx, prog)
}

func (e *engineImpl) saveProgramUpdate(ctx context.Context, prog api.Program) error {
	if err := e.programs.UpdateProgram(ctx, prog); err != nil {
		if errors.Is(err, persistence.ErrProgramNotFound) {
			return &api.ProgramNotFoundError{ProgramID: prog.ID}
		}
		return fmt.Errorf("update program %s: %w", prog.ID, err)
	}
	return nil
}

func (e *engineImpl) GetProgram(ctx context.Context, programID string) (api.Program, error) {
	return e.loadProgram(ctx, programID)
}

func (e *engineImpl) ListPrograms(ctx context.Context) ([]api.Program, error) {
	progs, err := e.programs.ListPrograms(ctx)
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	return progs, nil
}

func (e *engineImpl) DeriveSequence(ctx context.Context, programID string) ([]api.ParticipantStatus, error) {
	prog, err := e.loadProgram(ctx, programID)
	if err != nil {
		return nil, err
	}
	return api.DeriveSequence(prog.Steps), nil
}

func (e *engineImpl) loadProgram(ctx context.Context, programID string) (api.Program, error) {
	prog, err := e.programs.GetProgram(ctx, programID)
	if err != nil {
		if errors.Is(err, persistence.ErrProgramNotFound) {
			return api.Program{}, &api.ProgramNotFoundError{ProgramID: programID}
		}
		return api.Program{}, fmt.Errorf("load program %s: %w", programID, err)
	}
	return prog, nil
}

func (e *engineImpl) loadParticipant(ctx context.Context, id string) (*api.Participant, error) {
	p, err := e.participants.GetParticipant(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrParticipantNotFound) {
			return nil, fmt.Errorf("%w: %s", api.ErrParticipantNotFound, id)
		}
		return nil, fmt.Errorf("load participant %s: %w", id, err)
	}
	return p, nil
}

// commit writes p, whose Version has already been bumped, conditional on
// the stored version still being expected.
func (e *engineImpl) commit(ctx context.Context, p *api.Participant, expected int64) error {
	err := e.participants.UpdateParticipant(ctx, p, expected)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrVersionConflict):
		return &api.ConcurrentModificationError{ParticipantID: p.ID, ExpectedVersion: expected}
	case errors.Is(err, persistence.ErrParticipantNotFound):
		return fmt.Errorf("%w: %s", api.ErrParticipantNotFound, p.ID)
	default:
		return fmt.Errorf("update participant %s: %w", p.ID, err)
	}
}

func (e *engineImpl) CreateParticipant(ctx context.Context, np api.NewParticipant) (_ *api.Participant, err error) {
	ctx, span := e.startSpan(ctx, "CreateParticipant", attribute.String("program.id", np.ProgramID))
	defer func() { endSpan(span, err) }()

	if _, err := e.loadProgram(ctx, np.ProgramID); err != nil {
		return nil, err
	}

	id := np.ID
	if id == "" {
		id = e.newID()
	}
	priority := np.Priority
	if priority == "" {
		priority = api.PriorityMedium
	}
	if !priority.IsValid() {
		return nil, fmt.Errorf("%w: %q", api.ErrInvalidPriority, priority)
	}

	p := &api.Participant{
		ID:              id,
		ProgramID:       np.ProgramID,
		FirstName:       np.FirstName,
		LastName:        np.LastName,
		Email:           np.Email,
		Phone:           np.Phone,
		Address:         np.Address,
		City:            np.City,
		PostalCode:      np.PostalCode,
		PropertyType:    np.PropertyType,
		AssignedAdvisor: np.AssignedAdvisor,
		Priority:        priority,
		Status:          api.StatusReadyForBooking,
		CreatedAt:       e.now(),
		Version:         1,
	}
	span.SetAttributes(attribute.String("participant.id", id))

	if err := e.participants.SaveParticipant(ctx, p); err != nil {
		if errors.Is(err, persistence.ErrParticipantExists) {
			return nil, fmt.Errorf("%w: %s", api.ErrParticipantExists, id)
		}
		return nil, fmt.Errorf("create participant %s: %w", id, err)
	}

	e.observer.OnParticipantCreated(ctx, p.Clone())
	e.publish(ctx, api.StatusChanged{
		Type:          api.EventParticipantCreated,
		ParticipantID: p.ID,
		ProgramID:     p.ProgramID,
		To:            p.Status,
		At:            p.CreatedAt,
		Version:       p.Version,
	})

	return p, nil
}

func (e *engineImpl) GetParticipant(ctx context.Context, id string) (*api.Participant, error) {
	return e.loadParticipant(ctx, id)
}

func (e *engineImpl) ListParticipants(ctx context.Context, opts api.ParticipantListOptions) ([]*api.Participant, error) {
	ps, err := e.participants.ListParticipants(ctx, persistence.ParticipantFilter{
		ProgramID: opts.ProgramID,
		Status:    opts.Status,
		OnHold:    opts.OnHold,
	})
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return ps, nil
}

func (e *engineImpl) GetHistory(ctx context.Context, participantID string) ([]api.ParticipantStatusUpdate, error) {
	p, err := e.loadParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	return append([]api.ParticipantStatusUpdate(nil), p.StatusHistory...), nil
}

func (e *engineImpl) Transitions(ctx context.Context, participantID string) (api.Transitions, error) {
	p, err := e.loadParticipant(ctx, participantID)
	if err != nil {
		return api.Transitions{}, err
	}
	prog, err := e.loadProgram(ctx, p.ProgramID)
	if err != nil {
		return api.Transitions{}, err
	}
	return api.TransitionsFor(api.DeriveSequence(prog.Steps), p.Status, p.OnHold), nil
}

func (e *engineImpl) ToggleHold(ctx context.Context, participantID string) (_ *api.Participant, err error) {
	ctx, span := e.startSpan(ctx, "ToggleHold", attribute.String("participant.id", participantID))
	defer func() { endSpan(span, err) }()

	p, err := e.mutate(ctx, participantID, func(p *api.Participant) {
		p.OnHold = !p.OnHold
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Bool("participant.on_hold", p.OnHold))

	e.observer.OnHoldToggled(ctx, p.Clone())
	return p, nil
}

func (e *engineImpl) AssignAdvisor(ctx context.Context, participantID, advisorID string) (_ *api.Participant, err error) {
	ctx, span := e.startSpan(ctx, "AssignAdvisor",
		attribute.String("participant.id", participantID),
		attribute.String("advisor.id", advisorID),
	)
	defer func() { endSpan(span, err) }()

	p, err := e.mutate(ctx, participantID, func(p *api.Participant) {
		p.AssignedAdvisor = advisorID
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "advisor_assigned",
		slog.String("participant_id", p.ID),
		slog.String("advisor_id", advisorID),
		slog.Int64("version", p.Version),
	)
	if advisorID == "" {
		return p, nil
	}
	e.publish(ctx, api.StatusChanged{
		Type:          api.EventAdvisorAssigned,
		ParticipantID: p.ID,
		ProgramID:     p.ProgramID,
		From:          p.Status,
		To:            p.Status,
		AssignedTo:    advisorID,
		At:            e.now(),
		Version:       p.Version,
	})
	return p, nil
}

func (e *engineImpl) SetPriority(ctx context.Context, participantID string, priority api.Priority) (_ *api.Participant, err error) {
	ctx, span := e.startSpan(ctx, "SetPriority",
		attribute.String("participant.id", participantID),
		attribute.String("participant.priority", string(priority)),
	)
	defer func() { endSpan(span, err) }()

	if !priority.IsValid() {
		return nil, fmt.Errorf("%w: %q", api.ErrInvalidPriority, priority)
	}
	return e.mutate(ctx, participantID, func(p *api.Participant) {
		p.Priority = priority
	})
}

// mutate loads the participant under its lock, applies fn and commits the
// result against the loaded version. fn must not touch Status or history.
func (e *engineImpl) mutate(ctx context.Context, participantID string, fn func(p *api.Participant)) (*api.Participant, error) {
	unlock := e.locks.lock(participantID)
	defer unlock()

	p, err := e.loadParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}

	expected := p.Version
	fn(p)
	p.Version = expected + 1

	if err := e.commit(ctx, p, expected); err != nil {
		return nil, err
	}
	return p, nil
}

// publish hands ev to the outbox. The change is already committed, so a
// failure here is reported and logged but never returned. Callers must not
// hold the participant's lock. Bounded queues that support TryEnqueue
// refuse the task at once when full instead of stalling the caller.
func (e *engineImpl) publish(ctx context.Context, ev api.StatusChanged) {
	if e.outbox == nil {
		return
	}

	// The caller's context may be cancelled right after the commit.
	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), outboxTimeout)
	defer cancel()

	task := taskqueue.Task{
		ID:            e.newID(),
		Type:          taskqueue.TaskTypeNotifyStatusChange,
		ParticipantID: ev.ParticipantID,
		Event:         ev,
		EnqueuedAt:    e.now(),
	}
	var err error
	if tq, ok := e.outbox.(taskqueue.TryEnqueuer); ok {
		err = tq.TryEnqueue(qctx, task)
	} else {
		err = e.outbox.Enqueue(qctx, task)
	}
	if err != nil {
		e.logger.WarnContext(ctx, "outbox enqueue failed",
			slog.String("participant_id", ev.ParticipantID),
			slog.String("to", string(ev.To)),
			slog.Any("error", err),
		)
		e.observer.OnNotificationFailed(ctx, ev, err)
	}
}
