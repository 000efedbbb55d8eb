// Package cli implements the retrofit command-line tool.
//
// Commands are built by NewRootCommand around an [App] that carries the
// opened engine and outbox. Tests inject an App with an in-memory engine
// so no backend is contacted.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/petrijr/retrofit/internal/config"
	"github.com/petrijr/retrofit/internal/engine"
	"github.com/petrijr/retrofit/internal/taskqueue"
	"github.com/petrijr/retrofit/internal/telemetry"
	"github.com/petrijr/retrofit/pkg/api"
	"github.com/petrijr/retrofit/pkg/observability"
)

// App holds the dependencies shared by every command.
type App struct {
	Config *config.Config
	Engine api.Engine
	Outbox taskqueue.Queue
	Logger *slog.Logger

	// Output is OutputText or OutputJSON.
	Output string

	// Registry collects the engine and dispatcher metrics that dispatch
	// serves when metrics_addr is set.
	Registry *prometheus.Registry
	Observer api.Observer

	closers []func() error
}

// Open connects to the configured backend, seeds the program catalog when
// the store is empty, and builds the engine.
func (a *App) Open(ctx context.Context) error {
	if a.Config == nil {
		a.Config = config.DefaultConfig()
	}
	if a.Logger == nil {
		a.Logger = slog.Default()
	}

	tracer, shutdown, err := telemetry.InitTracing(ctx, a.Config.Tracing, a.Logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() error {
		shutdown(context.Background())
		return nil
	})

	be, err := openBackend(ctx, a.Config, a.Logger)
	if err != nil {
		_ = a.Close()
		return err
	}
	a.closers = append(a.closers, be.closers...)

	if a.Registry == nil {
		a.Registry = prometheus.NewRegistry()
	}
	metrics, err := observability.NewPrometheusObserver(a.Registry)
	if err != nil {
		_ = a.Close()
		return fmt.Errorf("register metrics: %w", err)
	}
	a.Observer = api.NewCompositeObserver(api.NewLoggingObserver(a.Logger), metrics)

	a.Outbox = be.outbox
	a.Engine = a.newEngine(be, tracer)

	if err := a.seedIfEmpty(ctx); err != nil {
		_ = a.Close()
		return err
	}
	return nil
}

func (a *App) newEngine(be *backend, tracer trace.Tracer) api.Engine {
	return engine.NewEngineWithConfig(engine.Config{
		Persistence:           be.persistence,
		Observer:              a.Observer,
		Outbox:                be.outbox,
		StrictAdjacency:       a.Config.Engine.StrictAdjacency,
		BlockAdvanceWhileHeld: a.Config.Engine.BlockAdvanceWhileHeld,
		Logger:                a.Logger,
		Tracer:                tracer,
	})
}

// seedIfEmpty registers the configured catalog on a fresh store, so a new
// database is usable without an explicit seed.
func (a *App) seedIfEmpty(ctx context.Context) error {
	progs, err := a.Engine.ListPrograms(ctx)
	if err != nil {
		return err
	}
	if len(progs) > 0 {
		return nil
	}
	catalog, err := config.LoadPrograms(a.Config.ProgramsFile)
	if err != nil {
		return err
	}
	created, _, err := seedPrograms(ctx, a.Engine, catalog, false)
	if err != nil {
		return err
	}
	a.Logger.DebugContext(ctx, "seeded program catalog", slog.Int("programs", created))
	return nil
}

// Close releases backend connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// newLogger builds the process logger from cfg.
func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("%w: log.level %q", config.ErrInvalidConfig, cfg.Level)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("%w: log.format %q", config.ErrInvalidConfig, cfg.Format)
	}
}
