// Package otel provides OpenTelemetry integration for toolflow engine events.
package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/strand-labs/toolflow"
)

// TracingHandler translates toolflow engine events into OpenTelemetry spans.
// It maintains maps of active run and node spans, creating and ending them
// based on event kind.
type TracingHandler struct {
	tracer trace.Tracer

	mu        sync.RWMutex
	runSpans  map[string]trace.Span      // runID -> span
	runCtxs   map[string]context.Context // runID -> context (for child spans)
	nodeSpans map[string]trace.Span      // runID:path -> span
}

// NewTracingHandler creates a new TracingHandler that uses the given tracer
// to create spans from engine events.
func NewTracingHandler(tracer trace.Tracer) *TracingHandler {
	return &TracingHandler{
		tracer:    tracer,
		runSpans:  make(map[string]trace.Span),
		runCtxs:   make(map[string]context.Context),
		nodeSpans: make(map[string]trace.Span),
	}
}

// Handle processes an engine event and creates or ends spans accordingly.
// It implements toolflow.EventHandler semantics.
func (h *TracingHandler) Handle(e toolflow.Event) {
	switch e.Kind {
	case toolflow.EventRunStarted:
		h.handleRunStarted(e)
	case toolflow.EventToolStarted:
		h.handleToolStarted(e)
	case toolflow.EventToolFinished:
		h.handleToolFinished(e)
	case toolflow.EventToolFailed:
		h.handleToolFailed(e)
	case toolflow.EventToolReused:
		h.handleToolReused(e)
	case toolflow.EventRunFinished, toolflow.EventRunFailed:
		h.handleRunEnded(e)
	}
}

// handleRunStarted creates a root span for the run.
func (h *TracingHandler) handleRunStarted(e toolflow.Event) {
	rootName := ""
	if name, ok := e.Payload["root"]; ok {
		if s, ok := name.(string); ok {
			rootName = s
		}
	}

	spanName := "run:" + e.RunID
	if rootName != "" {
		spanName = "run:" + rootName
	}

	ctx, span := h.tracer.Start(context.Background(), spanName,
		trace.WithAttributes(
			attribute.String("toolflow.run_id", e.RunID),
		),
		trace.WithTimestamp(e.Time),
	)

	if rootName != "" {
		span.SetAttributes(attribute.String("toolflow.root", rootName))
	}

	h.mu.Lock()
	h.runSpans[e.RunID] = span
	h.runCtxs[e.RunID] = ctx
	h.mu.Unlock()
}

// handleToolStarted creates a child span under the run span.
func (h *TracingHandler) handleToolStarted(e toolflow.Event) {
	h.mu.RLock()
	parentCtx, ok := h.runCtxs[e.RunID]
	h.mu.RUnlock()

	if !ok {
		// No parent run span; start from background context.
		parentCtx = context.Background()
	}

	_, span := h.tracer.Start(parentCtx, "tool:"+e.Path,
		trace.WithAttributes(
			attribute.String("toolflow.run_id", e.RunID),
			attribute.String("toolflow.path", e.Path),
			attribute.String("toolflow.node_kind", string(e.NodeKind)),
		),
		trace.WithTimestamp(e.Time),
	)

	key := e.RunID + ":" + e.Path
	h.mu.Lock()
	h.nodeSpans[key] = span
	h.mu.Unlock()
}

// handleToolFinished ends the node span with success status.
func (h *TracingHandler) handleToolFinished(e toolflow.Event) {
	key := e.RunID + ":" + e.Path

	h.mu.Lock()
	span, ok := h.nodeSpans[key]
	if ok {
		delete(h.nodeSpans, key)
	}
	h.mu.Unlock()

	if ok {
		span.SetAttributes(
			attribute.String("toolflow.duration", e.Elapsed.String()),
		)
		span.SetStatus(codes.Ok, "")
		span.End(trace.WithTimestamp(e.Time))
	}
}

// handleToolFailed ends the node span with error status.
func (h *TracingHandler) handleToolFailed(e toolflow.Event) {
	key := e.RunID + ":" + e.Path

	h.mu.Lock()
	span, ok := h.nodeSpans[key]
	if ok {
		delete(h.nodeSpans, key)
	}
	h.mu.Unlock()

	if ok {
		errMsg := "unknown error"
		if msg, found := e.Payload["error"]; found {
			if s, ok := msg.(string); ok {
				errMsg = s
			}
		}
		span.SetStatus(codes.Error, errMsg)
		span.RecordError(
			spanError(errMsg),
			trace.WithTimestamp(e.Time),
		)
		span.End(trace.WithTimestamp(e.Time))
	}
}

// handleToolReused records a cache hit as a span event on the run span. A
// reused node never opens its own span because no work happens.
func (h *TracingHandler) handleToolReused(e toolflow.Event) {
	h.mu.RLock()
	span, ok := h.runSpans[e.RunID]
	h.mu.RUnlock()

	if !ok {
		return
	}

	span.AddEvent("tool_reused", trace.WithTimestamp(e.Time), trace.WithAttributes(
		attribute.String("toolflow.path", e.Path),
		attribute.String("toolflow.node_kind", string(e.NodeKind)),
	))
}

// handleRunEnded ends the root run span.
func (h *TracingHandler) handleRunEnded(e toolflow.Event) {
	h.mu.Lock()
	span, ok := h.runSpans[e.RunID]
	if ok {
		delete(h.runSpans, e.RunID)
		delete(h.runCtxs, e.RunID)
	}
	h.mu.Unlock()

	if ok {
		span.SetAttributes(
			attribute.String("toolflow.duration", e.Elapsed.String()),
		)

		if e.Kind == toolflow.EventRunFailed {
			errMsg := "run failed"
			if msg, found := e.Payload["error"]; found {
				if s, ok := msg.(string); ok {
					errMsg = s
				}
			}
			span.SetStatus(codes.Error, errMsg)
		} else {
			span.SetStatus(codes.Ok, "")
		}

		span.End(trace.WithTimestamp(e.Time))
	}
}

// ActiveSpanContext returns the SpanContext for the active node span
// identified by runID and path. Returns an empty SpanContext if not found.
func (h *TracingHandler) ActiveSpanContext(runID, path string) trace.SpanContext {
	key := runID + ":" + path

	h.mu.RLock()
	span, ok := h.nodeSpans[key]
	h.mu.RUnlock()

	if !ok {
		return trace.SpanContext{}
	}
	return span.SpanContext()
}

// ActiveRunSpanContext returns the SpanContext for the active run span
// identified by runID. Returns an empty SpanContext if not found.
func (h *TracingHandler) ActiveRunSpanContext(runID string) trace.SpanContext {
	h.mu.RLock()
	span, ok := h.runSpans[runID]
	h.mu.RUnlock()

	if !ok {
		return trace.SpanContext{}
	}
	return span.SpanContext()
}

// spanError is a simple error type for recording span errors.
type spanError string

func (e spanError) Error() string { return string(e) }
