package engine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// engineMetrics holds the lifecycle counters exported by the engine.
type engineMetrics struct {
	instancesStarted   metric.Int64Counter
	instancesCompleted metric.Int64Counter
	instancesBlocked   metric.Int64Counter
	stagesAdvanced     metric.Int64Counter
}

func newEngineMetrics() *engineMetrics {
	meter := otel.Meter("approvalflow/engine")

	m := &engineMetrics{}
	m.instancesStarted, _ = meter.Int64Counter("engine.instances.started",
		metric.WithDescription("Workflow instances started"))
	m.instancesCompleted, _ = meter.Int64Counter("engine.instances.completed",
		metric.WithDescription("Workflow instances that passed their final stage"))
	m.instancesBlocked, _ = meter.Int64Counter("engine.instances.blocked",
		metric.WithDescription("Workflow instances blocked by a rejection"))
	m.stagesAdvanced, _ = meter.Int64Counter("engine.stages.advanced",
		metric.WithDescription("Stage transitions performed"))
	return m
}

func (m *engineMetrics) started(ctx context.Context)   { m.instancesStarted.Add(ctx, 1) }
func (m *engineMetrics) completed(ctx context.Context) { m.instancesCompleted.Add(ctx, 1) }
func (m *engineMetrics) blocked(ctx context.Context)   { m.instancesBlocked.Add(ctx, 1) }
func (m *engineMetrics) advanced(ctx context.Context)  { m.stagesAdvanced.Add(ctx, 1) }
