// Package telemetry initializes OpenTelemetry tracing and metrics exporters
// and owns the instruments recorded by rollouts and evaluations.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const scope = "github.com/signalnine/papertune"

// Shutdown flushes and stops the exporters.
type Shutdown func(ctx context.Context) error

// Init configures the global tracer and meter providers. An empty endpoint
// leaves the no-op providers in place.
func Init(ctx context.Context, endpoint, serviceName, version string, insecure bool) (Shutdown, error) {
	if endpoint == "" {
		return func(ctx context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	traceOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if insecure {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
	}
	traceExp, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	metricOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(endpoint)}
	if insecure {
		metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
	}
	metricExp, err := otlpmetrichttp.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(15*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		var firstErr error
		if err := tp.Shutdown(ctx); err != nil {
			firstErr = err
		}
		if err := mp.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		return firstErr
	}, nil
}

func Tracer() trace.Tracer {
	return otel.Tracer(scope)
}

// Instruments are created lazily from the global meter provider, so Init must
// run before the first rollout for them to export.
type Instruments struct {
	Rollouts        metric.Int64Counter
	RolloutFailures metric.Int64Counter
	ToolCalls       metric.Int64Counter
	RolloutDuration metric.Float64Histogram
	EvaluationMean  metric.Float64Histogram
}

var (
	instOnce sync.Once
	inst     *Instruments
)

func Metrics() *Instruments {
	instOnce.Do(func() {
		m := otel.GetMeterProvider().Meter(scope)
		inst = &Instruments{}
		inst.Rollouts, _ = m.Int64Counter("papertune.rollouts",
			metric.WithDescription("Rollouts executed"))
		inst.RolloutFailures, _ = m.Int64Counter("papertune.rollout.failures",
			metric.WithDescription("Rollouts that ended failed, by reason"))
		inst.ToolCalls, _ = m.Int64Counter("papertune.tool.calls",
			metric.WithDescription("Tool invocations, by tool and status"))
		inst.RolloutDuration, _ = m.Float64Histogram("papertune.rollout.duration",
			metric.WithUnit("ms"), metric.WithDescription("Rollout wall time"))
		inst.EvaluationMean, _ = m.Float64Histogram("papertune.evaluation.mean",
			metric.WithDescription("Mean total score per evaluation"))
	})
	return inst
}
