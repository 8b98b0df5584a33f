package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/jack-wz/utest/internal/engine"

type metrics struct {
	stageRuns     metric.Int64Counter
	stageDuration metric.Float64Histogram
	executions    metric.Int64Counter
	vectors       metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	meter := mp.Meter(meterName)

	stageRuns, err := meter.Int64Counter("engine.stage.runs",
		metric.WithDescription("Pipeline stages executed, by stage and outcome"))
	if err != nil {
		return nil, err
	}
	stageDuration, err := meter.Float64Histogram("engine.stage.duration",
		metric.WithDescription("Pipeline stage wall time"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	executions, err := meter.Int64Counter("engine.executions",
		metric.WithDescription("Finished executions, by final status"))
	if err != nil {
		return nil, err
	}
	vectors, err := meter.Int64Counter("engine.vectors.stored",
		metric.WithDescription("Vector records written to collections"))
	if err != nil {
		return nil, err
	}
	return &metrics{stageRuns: stageRuns, stageDuration: stageDuration, executions: executions, vectors: vectors}, nil
}

func (m *metrics) stage(ctx context.Context, stage, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("stage", stage), attribute.String("outcome", outcome))
	m.stageRuns.Add(ctx, 1, attrs)
	m.stageDuration.Record(ctx, d.Seconds(), attrs)
}

func (m *metrics) finished(ctx context.Context, status Status) {
	m.executions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
}
