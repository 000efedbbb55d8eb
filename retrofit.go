package retrofit

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel/trace"

	"github.com/petrijr/retrofit/internal/engine"
	"github.com/petrijr/retrofit/internal/persistence"
	"github.com/petrijr/retrofit/internal/taskqueue"
	"github.com/petrijr/retrofit/pkg/api"
	"github.com/petrijr/retrofit/pkg/worker"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine                  = api.Engine
	Program                 = api.Program
	ProgramStepConfig       = api.ProgramStepConfig
	Step                    = api.Step
	Participant             = api.Participant
	NewParticipant          = api.NewParticipant
	ParticipantStatus       = api.ParticipantStatus
	ParticipantStatusUpdate = api.ParticipantStatusUpdate
	ParticipantListOptions  = api.ParticipantListOptions
	Priority                = api.Priority
	TransitionRequest       = api.TransitionRequest
	Transitions             = api.Transitions
	StatusChanged           = api.StatusChanged
	Notifier                = api.Notifier
	NotifierFunc            = api.NotifierFunc
	Observer                = api.Observer
	LoggingObserver         = api.LoggingObserver
	BasicMetrics            = api.BasicMetrics
	BasicMetricsSnapshot    = api.BasicMetricsSnapshot
	CompositeObserver       = api.CompositeObserver
	NoopObserver            = api.NoopObserver

	Queue        = taskqueue.Queue
	Task         = taskqueue.Task
	Worker       = worker.Worker
	WorkerConfig = worker.Config
)

// Re-export common helpers.

var (
	NewLoggingObserver     = api.NewLoggingObserver
	NewCompositeObserver   = api.NewCompositeObserver
	DeriveSequence         = api.DeriveSequence
	AllSteps               = api.AllSteps
	ParseParticipantStatus = api.ParseParticipantStatus
	ParsePriority          = api.ParsePriority
)

// Re-export status values for convenience.

const (
	StatusReadyForBooking         = api.StatusReadyForBooking
	StatusAuditScheduled          = api.StatusAuditScheduled
	StatusInitialAuditCompleted   = api.StatusInitialAuditCompleted
	StatusReadyForTechReview      = api.StatusReadyForTechReview
	StatusReadyForContractorQuote = api.StatusReadyForContractorQuote
	StatusWorkordersSent          = api.StatusWorkordersSent
	StatusReadyForFinalAudit      = api.StatusReadyForFinalAudit
	StatusFinalAuditScheduled     = api.StatusFinalAuditScheduled
	StatusCompleted               = api.StatusCompleted
	StatusOnHold                  = api.StatusOnHold
)

const (
	PriorityHigh   = api.PriorityHigh
	PriorityMedium = api.PriorityMedium
	PriorityLow    = api.PriorityLow
)

// Options tunes an engine built by NewEngineWithOptions. The zero value
// gives the same engine as the plain constructors.
type Options struct {
	Observer Observer

	// Outbox receives a StatusChanged task after every committed change.
	// Nil disables notifications.
	Outbox Queue

	StrictAdjacency       bool
	BlockAdvanceWhileHeld bool

	Logger *slog.Logger
	Tracer trace.Tracer
}

// Store is a storage backend for programs and participants. Build one with
// NewInMemoryStore, NewSQLiteStore, NewPostgresStore, NewRedisStore or
// NewMongoStore.
type Store struct {
	p persistence.Persistence
}

func storeOf(s persistence.Store) Store {
	return Store{p: persistence.New(s)}
}

// NewInMemoryStore returns a Store that lives only as long as the process.
func NewInMemoryStore() Store {
	return storeOf(persistence.NewInMemoryStore())
}

// NewSQLiteStore creates the schema in db if needed and returns a Store over it.
func NewSQLiteStore(db *sql.DB) (Store, error) {
	s, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return Store{}, err
	}
	return storeOf(s), nil
}

// NewPostgresStore creates the schema in db if needed and returns a Store over it.
func NewPostgresStore(db *sql.DB) (Store, error) {
	s, err := persistence.NewPostgresStore(db)
	if err != nil {
		return Store{}, err
	}
	return storeOf(s), nil
}

// NewRedisStore returns a Store keeping its keys under prefix.
func NewRedisStore(client *redis.Client, prefix string) Store {
	return storeOf(persistence.NewRedisStore(client, prefix))
}

// NewMongoStore returns a Store in the given database.
func NewMongoStore(client *mongo.Client, dbName string) Store {
	return storeOf(persistence.NewMongoStore(client, dbName))
}

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewEngineWithOptions returns an Engine over store configured by opts.
func NewEngineWithOptions(store Store, opts Options) Engine {
	return engine.NewEngineWithConfig(engine.Config{
		Persistence:           store.p,
		Observer:              opts.Observer,
		Outbox:                opts.Outbox,
		StrictAdjacency:       opts.StrictAdjacency,
		BlockAdvanceWhileHeld: opts.BlockAdvanceWhileHeld,
		Logger:                opts.Logger,
		Tracer:                opts.Tracer,
	})
}

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores.
func NewInMemoryEngine() Engine {
	return engine.NewInMemoryEngine()
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the given Observer.
func NewInMemoryEngineWithObserver(obs Observer) Engine {
	return NewEngineWithOptions(NewInMemoryStore(), Options{Observer: obs})
}

// NewSQLiteEngine returns an Engine that persists programs and participants
// in a SQLite database.
func NewSQLiteEngine(db *sql.DB) (Engine, error) {
	return engine.NewSQLiteEngine(db)
}

// NewPostgresEngine returns an Engine that persists programs and
// participants in PostgreSQL.
func NewPostgresEngine(db *sql.DB) (Engine, error) {
	return engine.NewPostgresEngine(db)
}

// NewRedisEngine returns an Engine that persists programs and participants
// in Redis.
func NewRedisEngine(client *redis.Client) Engine {
	return engine.NewRedisEngine(client)
}

// NewMongoEngine returns an Engine that persists programs and participants
// in the named MongoDB database.
func NewMongoEngine(client *mongo.Client, dbName string) Engine {
	return engine.NewMongoEngine(client, dbName)
}

// Queue constructors for the notification outbox.

// NewInMemoryQueue returns an outbox queue holding up to capacity tasks.
func NewInMemoryQueue(capacity int) Queue {
	return taskqueue.NewInMemoryQueue(capacity)
}

// NewSQLiteQueue returns a durable outbox queue stored in db.
func NewSQLiteQueue(db *sql.DB) (Queue, error) {
	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// NewPostgresQueue returns a durable outbox queue stored in db. Several
// workers may drain it concurrently.
func NewPostgresQueue(db *sql.DB) (Queue, error) {
	q, err := taskqueue.NewPostgresQueue(db)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// NewRedisQueue returns an outbox queue keyed under prefix.
func NewRedisQueue(client *redis.Client, prefix string) Queue {
	return taskqueue.NewRedisQueue(client, prefix)
}

// NewMongoQueue returns an outbox queue stored in the "outbox_tasks"
// collection of the named database.
func NewMongoQueue(client *mongo.Client, dbName string) Queue {
	return taskqueue.NewMongoQueue(client, dbName, "")
}

// NewWorker returns a dispatcher that drains q and delivers each change to
// notifier, reading participants from eng.
func NewWorker(eng Engine, q Queue, notifier Notifier) *Worker {
	return worker.New(eng, q, notifier)
}

// NewWorkerWithConfig is NewWorker with explicit retry settings.
func NewWorkerWithConfig(eng Engine, q Queue, notifier Notifier, cfg WorkerConfig) *Worker {
	return worker.NewWithConfig(eng, q, notifier, cfg)
}

// Convenience helpers that just forward to the underlying Engine.

// Advance moves a participant to target.
func Advance(ctx context.Context, eng Engine, participantID string, target ParticipantStatus, actor, notes string) (*Participant, error) {
	return eng.Advance(ctx, TransitionRequest{
		ParticipantID: participantID,
		Target:        target,
		Actor:         actor,
		Notes:         notes,
	})
}

// Next advances a participant to the following status of its program.
func Next(ctx context.Context, eng Engine, participantID, actor, notes string) (*Participant, error) {
	return eng.Next(ctx, participantID, actor, notes)
}

// ToggleHold flips a participant's hold flag.
func ToggleHold(ctx context.Context, eng Engine, participantID string) (*Participant, error) {
	return eng.ToggleHold(ctx, participantID)
}

// History returns a participant's status history, oldest first.
func History(ctx context.Context, eng Engine, participantID string) ([]ParticipantStatusUpdate, error) {
	return eng.GetHistory(ctx, participantID)
}
