package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	_ "modernc.org/sqlite"

	"github.com/petrijr/retrofit/internal/config"
	"github.com/petrijr/retrofit/internal/persistence"
	"github.com/petrijr/retrofit/internal/taskqueue"
	"github.com/petrijr/retrofit/pkg/api"
)

// backend is an opened store together with its outbox queue.
type backend struct {
	persistence persistence.Persistence
	outbox      taskqueue.Queue
	closers     []func() error
}

// openBackend connects to the storage selected by cfg.Backend. Network
// backends are retried with exponential backoff for up to
// cfg.ConnectTimeout.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		mem := persistence.NewInMemoryStore()
		return &backend{
			persistence: persistence.New(mem),
			outbox:      taskqueue.NewInMemoryQueue(1024),
		}, nil

	case config.BackendSQLite:
		db, err := sql.Open("sqlite", cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLite.Path, err)
		}
		// modernc's driver serialises writers; one connection avoids
		// SQLITE_BUSY between the store and the outbox.
		db.SetMaxOpenConns(1)
		return sqlBackend(db, persistenceSQLite, taskqueueSQLite)

	case config.BackendPostgres:
		db, err := sql.Open("pgx", cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := connectWithRetry(ctx, cfg, logger, "postgres", db.PingContext); err != nil {
			_ = db.Close()
			return nil, err
		}
		return sqlBackend(db, persistencePostgres, taskqueuePostgres)

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
		if err := connectWithRetry(ctx, cfg, logger, "redis", ping); err != nil {
			_ = client.Close()
			return nil, err
		}
		store := persistence.NewRedisStore(client, cfg.Redis.Prefix)
		return &backend{
			persistence: persistence.New(store),
			outbox:      taskqueue.NewRedisQueue(client, cfg.Redis.Prefix),
			closers:     []func() error{client.Close},
		}, nil

	case config.BackendMongo:
		var client *mongo.Client
		connect := func(ctx context.Context) error {
			if client == nil {
				c, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
				if err != nil {
					return err
				}
				client = c
			}
			return client.Ping(ctx, nil)
		}
		if err := connectWithRetry(ctx, cfg, logger, "mongo", connect); err != nil {
			if client != nil {
				_ = client.Disconnect(context.Background())
			}
			return nil, err
		}
		store := persistence.NewMongoStore(client, cfg.Mongo.Database)
		return &backend{
			persistence: persistence.New(store),
			outbox:      taskqueue.NewMongoQueue(client, cfg.Mongo.Database, ""),
			closers: []func() error{func() error {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return client.Disconnect(ctx)
			}},
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown backend %q", config.ErrInvalidConfig, cfg.Backend)
}

type (
	sqlStoreFunc func(*sql.DB) (persistence.Store, error)
	sqlQueueFunc func(*sql.DB) (taskqueue.Queue, error)
)

func persistenceSQLite(db *sql.DB) (persistence.Store, error)   { return persistence.NewSQLiteStore(db) }
func persistencePostgres(db *sql.DB) (persistence.Store, error) { return persistence.NewPostgresStore(db) }
func taskqueueSQLite(db *sql.DB) (taskqueue.Queue, error)       { return taskqueue.NewSQLiteQueue(db) }
func taskqueuePostgres(db *sql.DB) (taskqueue.Queue, error)     { return taskqueue.NewPostgresQueue(db) }

func sqlBackend(db *sql.DB, newStore sqlStoreFunc, newQueue sqlQueueFunc) (*backend, error) {
	store, err := newStore(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init store schema: %w", err)
	}
	queue, err := newQueue(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init outbox schema: %w", err)
	}
	return &backend{
		persistence: persistence.New(store),
		outbox:      queue,
		closers:     []func() error{db.Close},
	}, nil
}

// connectWithRetry calls ping until it succeeds, ctx is done or
// cfg.ConnectTimeout has elapsed.
func connectWithRetry(ctx context.Context, cfg *config.Config, logger *slog.Logger, name string, ping func(context.Context) error) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 250 * time.Millisecond
	expBackoff.MaxElapsedTime = cfg.ConnectTimeout

	operation := func() error {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		err := ping(pctx)
		if err != nil {
			logger.WarnContext(ctx, "backend not reachable, will retry",
				slog.String("backend", name),
				slog.Any("error", err),
			)
		}
		return err
	}

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Join(fmt.Errorf("connect %s: %w", name, err), ctxErr)
		}
		return fmt.Errorf("connect %s after retries: %w", name, err)
	}
	return nil
}

// seedPrograms registers programs that do not exist yet. Existing programs
// are left untouched unless update is set.
func seedPrograms(ctx context.Context, eng api.Engine, progs []api.Program, update bool) (created, updated int, err error) {
	for _, prog := range progs {
		err := eng.RegisterProgram(ctx, prog)
		switch {
		case err == nil:
			created++
		case errors.Is(err, api.ErrProgramExists):
			if !update {
				continue
			}
			if err := eng.UpdateProgram(ctx, prog); err != nil {
				return created, updated, fmt.Errorf("update program %s: %w", prog.ID, err)
			}
			updated++
		default:
			return created, updated, fmt.Errorf("register program %s: %w", prog.ID, err)
		}
	}
	return created, updated, nil
}
