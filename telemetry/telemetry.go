// Package telemetry wraps execsvc.Service.Execute with OpenTelemetry spans
// and metrics. It builds an execsvc.Hooks from a Tracer so the execution
// engine stays free of any OTel import, and exposes an Execute wrapper
// that opens the root span and records the outcome/duration.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowgraph/graphengine/execsvc"
	"github.com/flowgraph/graphengine/runconfig"
)

// Instrumenter produces spans and records metrics around graph executions.
// It is safe for concurrent use.
type Instrumenter struct {
	tracer     trace.Tracer
	executions metric.Int64Counter
	duration   metric.Float64Histogram
}

// New creates an Instrumenter using the given tracer and meter to create
// the graphengine.executions.total counter and graphengine.execute.duration_ms
// histogram.
func New(tracer trace.Tracer, meter metric.Meter) (*Instrumenter, error) {
	executions, err := meter.Int64Counter("graphengine.executions.total",
		metric.WithDescription("Number of graph executions, labeled by outcome"),
	)
	if err != nil {
		return nil, err
	}

	dur, err := meter.Float64Histogram("graphengine.execute.duration_ms",
		metric.WithDescription("Duration of one Execute call in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Instrumenter{
		tracer:     tracer,
		executions: executions,
		duration:   dur,
	}, nil
}

// Hooks builds an execsvc.Hooks that opens a child span per phase under
// whatever span is active on the context Execute is called with.
func (in *Instrumenter) Hooks() *execsvc.Hooks {
	return &execsvc.Hooks{
		OnValidate:  in.phaseHook("validate"),
		OnStructure: in.phaseHook("structure"),
		OnSchedule: func(ctx context.Context) (context.Context, func()) {
			ctx, end := in.phaseHook("schedule")(ctx)
			return ctx, func() { end(nil) }
		},
		OnPropagate: func(ctx context.Context) (context.Context, func()) {
			ctx, end := in.phaseHook("propagate")(ctx)
			return ctx, func() { end(nil) }
		},
	}
}

func (in *Instrumenter) phaseHook(name string) func(context.Context) (context.Context, func(error)) {
	return func(ctx context.Context) (context.Context, func(error)) {
		spanCtx, span := in.tracer.Start(ctx, "graphengine.execute."+name)
		return spanCtx, func(err error) {
			if err != nil {
				span.SetStatus(codes.Error, err.Error())
				span.RecordError(err)
			} else {
				span.SetStatus(codes.Ok, "")
			}
			span.End()
		}
	}
}

// Wire installs the Instrumenter's hooks onto svc so phase spans nest
// under whatever root span is active when Execute runs. Call it once at
// startup, not per-call: svc.Execute reads svc.Hooks without locking, so
// mutating it from a concurrently-running Execute would race.
func (in *Instrumenter) Wire(svc *execsvc.Service) {
	svc.Hooks = in.Hooks()
}

// Execute wraps svc.Execute with a root span and records the executions
// counter and duration histogram. It assumes Wire has already been called
// on svc so its hooks nest under the root span opened here.
func (in *Instrumenter) Execute(ctx context.Context, svc *execsvc.Service, graphID string, cfg runconfig.Config) (execsvc.Result, error) {
	ctx, span := in.tracer.Start(ctx, "graphengine.execute",
		trace.WithAttributes(attribute.String("graphengine.graph_id", graphID)),
	)
	defer span.End()

	start := time.Now()
	result, err := svc.Execute(ctx, graphID, cfg)
	elapsed := time.Since(start)

	outcome := outcomeLabel(result, err)
	in.executions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("graph_id", graphID),
	))
	in.duration.Record(ctx, float64(elapsed.Microseconds())/1000.0, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(attribute.String("graphengine.outcome", outcome))

	return result, err
}

func outcomeLabel(result execsvc.Result, err error) string {
	if err != nil {
		return "error"
	}
	switch result.Sentinel {
	case execsvc.CycleDetected:
		return "cycle"
	case execsvc.IslandsDetected:
		return "islands"
	case execsvc.NotARootNode:
		return "not_root"
	default:
		return "ok"
	}
}
