// Package telemetry sets up OpenTelemetry trace and metric export over OTLP
// gRPC for the validation pipeline. With no endpoint configured it hands out
// no-op providers and exports nothing.
package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr"
	"github.com/bitscriptr/bitscriptr-go/pkg/bitscriptr/logging"
)

const (
	serviceName    = "bitscriptr"
	exportInterval = 15 * time.Second
	batchTimeout   = 5 * time.Second
)

// Providers holds the trace and metric providers handed to validate.New.
type Providers struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	shutdown       []func(context.Context) error
}

// TracerProvider returns the configured tracer provider.
func (p *Providers) TracerProvider() trace.TracerProvider { return p.tracerProvider }

// MeterProvider returns the configured meter provider.
func (p *Providers) MeterProvider() metric.MeterProvider { return p.meterProvider }

// Enabled reports whether anything is exported.
func (p *Providers) Enabled() bool { return len(p.shutdown) > 0 }

// Shutdown flushes and stops the exporters.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdown {
		errs = append(errs, fn(ctx))
	}
	return errors.Join(errs...)
}

// Disabled returns no-op providers.
func Disabled() *Providers {
	return &Providers{
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
	}
}

// newResource describes this process. The attributes are schemaless so the
// merge never conflicts with the schema URL of resource.Default.
func newResource() (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(bitscriptr.LibraryVersion()),
			attribute.String("bitscriptr.commit", bitscriptr.Commit),
		),
	)
}

// Setup builds OTLP exporting providers for cfg. An empty endpoint returns
// Disabled().
func Setup(ctx context.Context, cfg bitscriptr.TelemetryConfig, logger logging.Logger) (*Providers, error) {
	if cfg.Endpoint == "" {
		return Disabled(), nil
	}
	if logger == nil {
		logger = logging.Discard()
	}

	res, err := newResource()
	if err != nil {
		return nil, bitscriptr.Errorf("Setup", "create resource: %w", err)
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	traceExporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, bitscriptr.Errorf("Setup", "create trace exporter: %w", err)
	}
	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		return nil, bitscriptr.Errorf("Setup", "create metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter, sdktrace.WithBatchTimeout(batchTimeout)),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter,
			sdkmetric.WithInterval(exportInterval),
		)),
	)

	logger.Info(ctx, "telemetry export enabled",
		"endpoint", cfg.Endpoint,
		"insecure", cfg.Insecure,
		"sample_rate", cfg.SampleRate,
	)
	return &Providers{
		tracerProvider: tp,
		meterProvider:  mp,
		shutdown:       []func(context.Context) error{tp.Shutdown, mp.Shutdown},
	}, nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	}
	return sdktrace.TraceIDRatioBased(rate)
}
