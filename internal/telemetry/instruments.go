// Package telemetry publishes run lifecycle metrics and traces through
// OpenTelemetry.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scope = "github.com/RevCBH/loadnode/internal/orchestrator"

// Metric names.
const (
	MetricRunsStarted      = "loadnode.runs.started"
	MetricRunsFailed       = "loadnode.runs.failed"
	MetricRunsCompleted    = "loadnode.runs.completed"
	MetricCleanupFailures  = "loadnode.cleanup.failures"
	MetricPrecheckDuration = "loadnode.precheck.duration"
)

// Instruments records run lifecycle signals. All methods are safe on a nil
// receiver, which records nothing.
type Instruments struct {
	runsStarted      metric.Int64Counter
	runsFailed       metric.Int64Counter
	runsCompleted    metric.Int64Counter
	cleanupFailures  metric.Int64Counter
	precheckDuration metric.Float64Histogram

	tracer trace.Tracer
}

// NewInstruments creates the run instruments on the given providers.
func NewInstruments(mp metric.MeterProvider, tp trace.TracerProvider) (*Instruments, error) {
	meter := mp.Meter(scope)
	inst := &Instruments{tracer: tp.Tracer(scope)}

	var err error
	if inst.runsStarted, err = meter.Int64Counter(MetricRunsStarted,
		metric.WithDescription("Runs whose container was started")); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricRunsStarted, err)
	}
	if inst.runsFailed, err = meter.Int64Counter(MetricRunsFailed,
		metric.WithDescription("Run starts rejected or failed, by stage")); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricRunsFailed, err)
	}
	if inst.runsCompleted, err = meter.Int64Counter(MetricRunsCompleted,
		metric.WithDescription("Run containers observed exiting")); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricRunsCompleted, err)
	}
	if inst.cleanupFailures, err = meter.Int64Counter(MetricCleanupFailures,
		metric.WithDescription("Swallowed cleanup errors that leave residue, by step")); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricCleanupFailures, err)
	}
	if inst.precheckDuration, err = meter.Float64Histogram(MetricPrecheckDuration,
		metric.WithDescription("Reachability precheck latency"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricPrecheckDuration, err)
	}
	return inst, nil
}

func (i *Instruments) RunStarted(ctx context.Context, image string) {
	if i == nil {
		return
	}
	i.runsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("image", image)))
}

func (i *Instruments) RunFailed(ctx context.Context, stage string) {
	if i == nil {
		return
	}
	i.runsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

func (i *Instruments) RunCompleted(ctx context.Context, exitCode int) {
	if i == nil {
		return
	}
	i.runsCompleted.Add(ctx, 1, metric.WithAttributes(attribute.Int("exit_code", exitCode)))
}

func (i *Instruments) CleanupFailed(ctx context.Context, step string) {
	if i == nil {
		return
	}
	i.cleanupFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("step", step)))
}

func (i *Instruments) PrecheckDone(ctx context.Context, elapsed time.Duration, err error) {
	if i == nil {
		return
	}
	i.precheckDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.Bool("ok", err == nil)))
}

// StartSpan opens a span tagged with the run ID. The returned func ends it,
// marking it failed when err is non-nil.
func (i *Instruments) StartSpan(ctx context.Context, name, runID string) (context.Context, func(err error)) {
	if i == nil || i.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := i.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("run.id", runID)))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
