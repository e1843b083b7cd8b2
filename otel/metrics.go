package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/strand-labs/toolflow"
)

// MetricsHandler translates toolflow engine events into OpenTelemetry metrics.
// It records counters and histograms for tool executions, cache reuses,
// failures, and run durations.
type MetricsHandler struct {
	toolExecutions metric.Int64Counter
	toolReuses     metric.Int64Counter
	toolFailures   metric.Int64Counter
	toolDuration   metric.Float64Histogram
	runDuration    metric.Float64Histogram
}

// NewMetricsHandler creates a MetricsHandler that uses the given meter to
// create instruments for recording engine metrics.
func NewMetricsHandler(meter metric.Meter) (*MetricsHandler, error) {
	toolExec, err := meter.Int64Counter("toolflow.tool.executions",
		metric.WithDescription("Number of fresh tool executions"),
	)
	if err != nil {
		return nil, err
	}

	toolReuse, err := meter.Int64Counter("toolflow.tool.reuses",
		metric.WithDescription("Number of tool cache reuses"),
	)
	if err != nil {
		return nil, err
	}

	toolFail, err := meter.Int64Counter("toolflow.tool.failures",
		metric.WithDescription("Number of tool failures"),
	)
	if err != nil {
		return nil, err
	}

	toolDur, err := meter.Float64Histogram("toolflow.tool.duration",
		metric.WithDescription("Duration of tool execution in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	runDur, err := meter.Float64Histogram("toolflow.run.duration",
		metric.WithDescription("Duration of a full run in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsHandler{
		toolExecutions: toolExec,
		toolReuses:     toolReuse,
		toolFailures:   toolFail,
		toolDuration:   toolDur,
		runDuration:    runDur,
	}, nil
}

// Handle processes an engine event and records the appropriate metrics.
// It implements toolflow.EventHandler semantics.
func (h *MetricsHandler) Handle(e toolflow.Event) {
	switch e.Kind {
	case toolflow.EventToolFinished:
		h.handleToolFinished(e)
	case toolflow.EventToolReused:
		h.handleToolReused(e)
	case toolflow.EventToolFailed:
		h.handleToolFailed(e)
	case toolflow.EventRunFinished:
		h.handleRunFinished(e)
	}
}

// handleToolFinished increments the execution counter and records duration.
func (h *MetricsHandler) handleToolFinished(e toolflow.Event) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("node_kind", string(e.NodeKind)),
		attribute.String("path", e.Path),
	)
	h.toolExecutions.Add(ctx, 1, attrs)
	h.toolDuration.Record(ctx, e.Elapsed.Seconds(), attrs)
}

// handleToolReused increments the reuse counter.
func (h *MetricsHandler) handleToolReused(e toolflow.Event) {
	h.toolReuses.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("node_kind", string(e.NodeKind)),
		attribute.String("path", e.Path),
	))
}

// handleToolFailed increments the failure counter.
func (h *MetricsHandler) handleToolFailed(e toolflow.Event) {
	h.toolFailures.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("node_kind", string(e.NodeKind)),
		attribute.String("path", e.Path),
	))
}

// handleRunFinished records the run duration.
func (h *MetricsHandler) handleRunFinished(e toolflow.Event) {
	h.runDuration.Record(context.Background(), e.Elapsed.Seconds(), metric.WithAttributes(
		attribute.String("run_id", e.RunID),
	))
}
