package otel_test

import (
	"testing"
	"time"

	otelcodes "go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/strand-labs/toolflow"
	flowotel "github.com/strand-labs/toolflow/otel"
)

// newTestTracer returns a tracer backed by an in-memory span exporter.
func newTestTracer() (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	return exporter, tp
}

func TestTracingHandler_RunStartedCreatesRootSpan(t *testing.T) {
	exporter, tp := newTestTracer()
	h := flowotel.NewTracingHandler(tp.Tracer("test"))

	now := time.Now()

	h.Handle(toolflow.Event{
		Kind:    toolflow.EventRunStarted,
		RunID:   "run-1",
		Time:    now,
		Payload: map[string]any{"root": "analysis"},
	})

	if !h.ActiveRunSpanContext("run-1").IsValid() {
		t.Fatal("expected valid run span context after run_started")
	}

	h.Handle(toolflow.Event{
		Kind:    toolflow.EventRunFinished,
		RunID:   "run-1",
		Time:    now.Add(100 * time.Millisecond),
		Elapsed: 100 * time.Millisecond,
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "run:analysis" {
		t.Errorf("span name = %q, want run:analysis", spans[0].Name)
	}
	if spans[0].Status.Code != otelcodes.Ok {
		t.Errorf("status = %v, want Ok", spans[0].Status.Code)
	}

	found := false
	for _, attr := range spans[0].Attributes {
		if string(attr.Key) == "toolflow.run_id" && attr.Value.AsString() == "run-1" {
			found = true
		}
	}
	if !found {
		t.Error("expected toolflow.run_id attribute on run span")
	}
}

func TestTracingHandler_ToolStartedCreatesChildSpan(t *testing.T) {
	exporter, tp := newTestTracer()
	h := flowotel.NewTracingHandler(tp.Tracer("test"))

	now := time.Now()

	h.Handle(toolflow.Event{
		Kind:    toolflow.EventRunStarted,
		RunID:   "run-1",
		Time:    now,
		Payload: map[string]any{"root": "analysis"},
	})
	h.Handle(toolflow.Event{
		Kind:     toolflow.EventToolStarted,
		RunID:    "run-1",
		Path:     "analysis/fetch",
		NodeKind: toolflow.KindTool,
		Time:     now.Add(time.Millisecond),
	})

	sc := h.ActiveSpanContext("run-1", "analysis/fetch")
	if !sc.IsValid() {
		t.Fatal("expected valid node span context after tool_started")
	}

	runSC := h.ActiveRunSpanContext("run-1")
	if sc.TraceID() != runSC.TraceID() {
		t.Error("expected tool span to share the run span's trace ID")
	}

	h.Handle(toolflow.Event{
		Kind:     toolflow.EventToolFinished,
		RunID:    "run-1",
		Path:     "analysis/fetch",
		NodeKind: toolflow.KindTool,
		Time:     now.Add(2 * time.Millisecond),
		Elapsed:  time.Millisecond,
	})
	h.Handle(toolflow.Event{
		Kind:    toolflow.EventRunFinished,
		RunID:   "run-1",
		Time:    now.Add(3 * time.Millisecond),
		Elapsed: 3 * time.Millisecond,
	})

	spans := exporter.GetSpans()
	var toolSpan *tracetest.SpanStub
	for i := range spans {
		if spans[i].Name == "tool:analysis/fetch" {
			toolSpan = &spans[i]
			break
		}
	}
	if toolSpan == nil {
		t.Fatal("tool:analysis/fetch span not found")
	}
	if toolSpan.Parent.SpanID() != runSC.SpanID() {
		t.Error("expected tool span parented under the run span")
	}
	if toolSpan.Status.Code != otelcodes.Ok {
		t.Errorf("status = %v, want Ok", toolSpan.Status.Code)
	}
}

func TestTracingHandler_ToolFailedSetsErrorStatus(t *testing.T) {
	exporter, tp := newTestTracer()
	h := flowotel.NewTracingHandler(tp.Tracer("test"))

	now := time.Now()

	h.Handle(toolflow.Event{
		Kind:    toolflow.EventRunStarted,
		RunID:   "run-1",
		Time:    now,
		Payload: map[string]any{"root": "analysis"},
	})
	h.Handle(toolflow.Event{
		Kind:     toolflow.EventToolStarted,
		RunID:    "run-1",
		Path:     "analysis/boom",
		NodeKind: toolflow.KindTool,
		Time:     now,
	})
	h.Handle(toolflow.Event{
		Kind:     toolflow.EventToolFailed,
		RunID:    "run-1",
		Path:     "analysis/boom",
		NodeKind: toolflow.KindTool,
		Time:     now.Add(time.Millisecond),
		Payload:  map[string]any{"error": "command exploded"},
	})
	h.Handle(toolflow.Event{
		Kind:    toolflow.EventRunFailed,
		RunID:   "run-1",
		Time:    now.Add(2 * time.Millisecond),
		Payload: map[string]any{"error": "command exploded"},
	})

	spans := exporter.GetSpans()
	for _, s := range spans {
		if s.Name == "tool:analysis/boom" {
			if s.Status.Code != otelcodes.Error {
				t.Errorf("status = %v, want Error", s.Status.Code)
			}
			if s.Status.Description != "command exploded" {
				t.Errorf("description = %q, want command exploded", s.Status.Description)
			}
			if len(s.Events) == 0 {
				t.Error("expected a recorded error event on the failed span")
			}
			return
		}
	}
	t.Error("tool:analysis/boom span not found")
}

func TestTracingHandler_ReusedToolBecomesRunSpanEvent(t *testing.T) {
	exporter, tp := newTestTracer()
	h := flowotel.NewTracingHandler(tp.Tracer("test"))

	now := time.Now()

	h.Handle(toolflow.Event{
		Kind:    toolflow.EventRunStarted,
		RunID:   "run-1",
		Time:    now,
		Payload: map[string]any{"root": "analysis"},
	})
	h.Handle(toolflow.Event{
		Kind:     toolflow.EventToolReused,
		RunID:    "run-1",
		Path:     "analysis/cached",
		NodeKind: toolflow.KindTool,
		Time:     now.Add(time.Millisecond),
	})

	// A reused node never opens its own span.
	if h.ActiveSpanContext("run-1", "analysis/cached").IsValid() {
		t.Error("reused tool must not have an active span")
	}

	h.Handle(toolflow.Event{
		Kind:    toolflow.EventRunFinished,
		RunID:   "run-1",
		Time:    now.Add(2 * time.Millisecond),
		Elapsed: 2 * time.Millisecond,
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	var found bool
	for _, ev := range spans[0].Events {
		if ev.Name == "tool_reused" {
			found = true
		}
	}
	if !found {
		t.Error("expected tool_reused event on the run span")
	}
}

func TestTracingHandler_RunEndedRemovesSpan(t *testing.T) {
	_, tp := newTestTracer()
	h := flowotel.NewTracingHandler(tp.Tracer("test"))

	h.Handle(toolflow.Event{
		Kind:  toolflow.EventRunStarted,
		RunID: "run-1",
		Time:  time.Now(),
	})
	h.Handle(toolflow.Event{
		Kind:  toolflow.EventRunFinished,
		RunID: "run-1",
		Time:  time.Now(),
	})

	if h.ActiveRunSpanContext("run-1").IsValid() {
		t.Error("run span context still active after run_finished")
	}
}
