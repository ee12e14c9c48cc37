// Package tracer configures OpenTelemetry for gateway calls and schedule
// firings.
package tracer

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"ordito/internal/infra/config"
)

const serviceName = "ordito"

// Output is where the stdout exporter writes. It defaults to stderr so spans
// never mix with command output.
var Output io.Writer = os.Stderr

// Setup installs the global TracerProvider and returns its shutdown function.
func Setup(ctx context.Context, cfg config.TracerConfig) (func(context.Context) error, error) {
	exporter, err := newExporter(cfg)
	if err != nil {
		return nil, err
	}
	if exporter == nil {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// newExporter returns nil when spans should go nowhere.
func newExporter(cfg config.TracerConfig) (sdktrace.SpanExporter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Exporter {
	case "", "noop":
		return nil, nil
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithWriter(Output), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("tracer: stdout exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("tracer: unsupported exporter %q", cfg.Exporter)
	}
}

// StartSpan starts a span on the ordito tracer.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(serviceName).Start(ctx, name, opts...)
}

// StartRPC starts the client span gateway.<method> for one remote call.
func StartRPC(ctx context.Context, method string) (context.Context, trace.Span) {
	return StartSpan(ctx, "gateway."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.system", "ordito"),
			attribute.String("rpc.method", method),
		),
	)
}

// StartFiring starts the schedule.fire span for one scheduled run.
func StartFiring(ctx context.Context, scheduleID, groupID string) (context.Context, trace.Span) {
	return StartSpan(ctx, "schedule.fire", trace.WithAttributes(
		attribute.String("schedule.id", scheduleID),
		attribute.String("schedule.group_id", groupID),
	))
}

// ExecutionCount tags a firing span with the schedule's count after the run.
func ExecutionCount(span trace.Span, n uint) {
	span.SetAttributes(attribute.Int64("schedule.execution_count", int64(n)))
}

// End sets the span status from err and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
