// Package telemetry wires OpenTelemetry tracing into benchmark runs. Spans
// cover the whole run, each test execution and each CLI invocation.
package telemetry

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

const (
	// defaultBatchTimeout is how long finished spans wait before export
	defaultBatchTimeout = time.Second
	// defaultMaxExportBatchSize caps the spans sent in one export request
	defaultMaxExportBatchSize = 512
)

// Config is the tracing section of the skillbench config
type Config struct {
	// Enabled turns tracing on. When false InitTracer installs nothing.
	Enabled bool
	// ServiceName is reported as service.name; empty means TracerName
	ServiceName string
	// ServiceVersion is reported as service.version
	ServiceVersion string
	// SamplerType selects the sampler: always, never or ratio
	SamplerType string
	// SamplerRatio is the fraction of traces kept by the ratio sampler
	SamplerRatio float64
	// BatchTimeout overrides defaultBatchTimeout when positive
	BatchTimeout time.Duration
}

// InitTracer installs a global tracer provider exporting over OTLP/HTTP.
// The exporter endpoint and headers come from the OTEL_EXPORTER_OTLP_*
// environment variables. The returned function flushes pending spans and
// must be called before exit.
func InitTracer(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create trace exporter")
	}

	provider, err := newProvider(ctx, cfg, trace.NewBatchSpanProcessor(
		exporter,
		trace.WithMaxExportBatchSize(defaultMaxExportBatchSize),
		trace.WithBatchTimeout(batchTimeout(cfg)),
	))
	if err != nil {
		// the provider never took ownership of the exporter
		_ = exporter.Shutdown(ctx)
		return nil, err
	}

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		// shutting down the provider flushes the batch processor and
		// closes the exporter behind it
		return errors.Wrap(provider.Shutdown(ctx), "failed to shut down tracer provider")
	}, nil
}

// newProvider builds a tracer provider describing the skillbench service
// around the given span processor
func newProvider(ctx context.Context, cfg Config, processor trace.SpanProcessor) (*trace.TracerProvider, error) {
	name := cfg.ServiceName
	if name == "" {
		name = TracerName
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(name),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create resource")
	}

	return trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithSpanProcessor(processor),
		trace.WithSampler(Sampler(cfg.SamplerType, cfg.SamplerRatio)),
	), nil
}

func batchTimeout(cfg Config) time.Duration {
	if cfg.BatchTimeout > 0 {
		return cfg.BatchTimeout
	}
	return defaultBatchTimeout
}

// Sampler maps a sampler name from config to an SDK sampler. Unknown names
// sample everything.
func Sampler(name string, ratio float64) trace.Sampler {
	switch name {
	case "always":
		return trace.AlwaysSample()
	case "never":
		return trace.NeverSample()
	case "ratio":
		return trace.ParentBased(trace.TraceIDRatioBased(ratio))
	default:
		return trace.AlwaysSample()
	}
}
