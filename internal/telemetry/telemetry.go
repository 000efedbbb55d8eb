// Package telemetry sets up OpenTelemetry tracing for the retrofit CLI.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/petrijr/retrofit/internal/config"
)

// TracerName is the instrumentation name used for engine spans.
const TracerName = "github.com/petrijr/retrofit"

// Shutdown flushes and stops the tracer provider.
type Shutdown func(ctx context.Context)

// InitTracing returns a tracer for engine spans. With no endpoint configured
// it returns a no-op tracer and nothing is exported.
func InitTracing(ctx context.Context, cfg config.TracingConfig, logger *slog.Logger) (trace.Tracer, Shutdown, error) {
	if cfg.Endpoint == "" {
		return noop.NewTracerProvider().Tracer(TracerName), func(context.Context) {}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	tp := NewTracerProvider(cfg, sdktrace.WithBatcher(exporter,
		sdktrace.WithBatchTimeout(5*time.Second),
		sdktrace.WithMaxExportBatchSize(512),
		sdktrace.WithMaxQueueSize(2048),
	))

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	shutdown := func(ctx context.Context) {
		if err := tp.Shutdown(ctx); err != nil {
			logger.ErrorContext(ctx, "shutting down tracer provider", slog.Any("error", err))
		}
	}
	return tp.Tracer(TracerName), shutdown, nil
}

// NewTracerProvider builds an SDK provider tagged with the configured
// service name and sampling ratio. extra carries the span processors.
func NewTracerProvider(cfg config.TracingConfig, extra ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	name := cfg.ServiceName
	if name == "" {
		name = "retrofit"
	}
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(name),
	)

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithResource(res),
	}
	return sdktrace.NewTracerProvider(append(opts, extra...)...)
}
