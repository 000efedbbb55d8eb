package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/petrijr/retrofit/internal/config"
	"github.com/petrijr/retrofit/pkg/api"
	"github.com/petrijr/retrofit/pkg/notify"
	"github.com/petrijr/retrofit/pkg/worker"
)

// drainIdle is how long dispatch --drain waits for a task before deciding
// the outbox is empty.
const drainIdle = 200 * time.Millisecond

func newDispatchCommand(app *App) *cobra.Command {
	var (
		concurrency int
		drain       bool
	)
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Deliver queued status change notifications",
		Long: `Drain the notification outbox and deliver each committed status change.
Failed deliveries are retried with exponential backoff up to
worker.max_attempts.

By default dispatch runs until interrupted. With --drain it stops once the
outbox is empty.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Outbox == nil {
				return errors.New("no outbox configured")
			}
			cfg := app.Config
			if cfg == nil {
				cfg = config.DefaultConfig()
			}
			if cmd.Flags().Changed("concurrency") {
				cfg.Worker.Concurrency = concurrency
			}
			if cfg.Worker.Concurrency < 1 {
				return NewExitError(ExitUsageError, fmt.Errorf("concurrency must be at least 1"))
			}

			notifier, err := newNotifier(cfg.Notify, app.Logger)
			if err != nil {
				return NewExitError(ExitUsageError, err)
			}
			w := worker.NewWithConfig(app.Engine, app.Outbox, notifier, workerConfig(cfg.Worker, app))

			ctx := cmd.Context()
			if drain {
				idle := drainIdle
				if cfg.Worker.RateLimit > 0 {
					// Leave room for the limiter inside each ProcessOne deadline.
					idle += time.Duration(float64(time.Second) / cfg.Worker.RateLimit)
				}
				n, err := drainOutbox(ctx, w, idle)
				fmt.Fprintf(cmd.OutOrStdout(), "delivered %d notification(s)\n", n)
				return err
			}

			if cfg.MetricsAddr != "" && app.Registry != nil {
				stop := serveMetrics(ctx, cfg.MetricsAddr, app)
				defer stop()
			}
			return runWorkers(ctx, w, cfg.Worker.Concurrency)
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "number of dispatcher goroutines")
	cmd.Flags().BoolVar(&drain, "drain", false, "stop once the outbox is empty")
	return cmd
}

func newNotifier(cfg config.NotifyConfig, logger *slog.Logger) (api.Notifier, error) {
	switch cfg.Mode {
	case "", "log":
		return notify.NewLogNotifier(logger), nil
	case "email":
		composer, err := notify.NewComposer(cfg.SubjectTemplate, cfg.BodyTemplate)
		if err != nil {
			return nil, err
		}
		return notify.NewEmailNotifier(composer, notify.LogSender{Logger: logger}, logger), nil
	}
	return nil, fmt.Errorf("%w: unknown notify mode %q", config.ErrInvalidConfig, cfg.Mode)
}

func workerConfig(cfg config.WorkerConfig, app *App) worker.Config {
	wc := worker.Config{
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     cfg.Backoff,
		MaxBackoff:  cfg.MaxBackoff,
		Observer:    app.Observer,
		Logger:      app.Logger,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		// One limiter shared by every dispatcher goroutine.
		wc.Limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return wc
}

// drainOutbox processes tasks until none arrives within idle. Tasks
// rescheduled for a later retry stay queued.
func drainOutbox(ctx context.Context, w *worker.Worker, idle time.Duration) (delivered int, err error) {
	var failed []error
	for {
		pctx, cancel := context.WithTimeout(ctx, idle)
		processed, perr := w.ProcessOne(pctx)
		cancel()

		if !processed {
			if ctx.Err() != nil {
				return delivered, ctx.Err()
			}
			if perr != nil && !errors.Is(perr, context.DeadlineExceeded) {
				return delivered, perr
			}
			return delivered, errors.Join(failed...)
		}
		if perr != nil {
			failed = append(failed, perr)
			continue
		}
		delivered++
	}
}

func runWorkers(ctx context.Context, w *worker.Worker, n int) error {
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = w.Run(ctx)
		}(i)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// serveMetrics exposes app.Registry on addr until the returned stop
// function is called.
func serveMetrics(ctx context.Context, addr string, app *App) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.ErrorContext(ctx, "metrics server failed", slog.Any("error", err))
		}
	}()
	app.Logger.InfoContext(ctx, "serving metrics", slog.String("addr", addr))

	return func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}
}
