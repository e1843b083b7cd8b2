package monitor

import (
	"sync"
	"testing"
	"time"

	"github.com/strand-labs/toolflow"
)

type captureHandler struct {
	mu     sync.Mutex
	events []toolflow.Event
}

func (c *captureHandler) handle(e toolflow.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureHandler) snapshot() []toolflow.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]toolflow.Event(nil), c.events...)
}

func TestThrottledHandler_PassesNonWarningsThrough(t *testing.T) {
	sink := &captureHandler{}
	th := NewThrottledHandler(sink.handle, ThrottleConfig{CoalesceInterval: time.Hour})
	defer th.Close()

	th.Handle(toolflow.NewEvent(toolflow.EventToolStarted, "run-1"))
	th.Handle(toolflow.NewEvent(toolflow.EventToolFinished, "run-1"))

	events := sink.snapshot()
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2 immediate passthroughs", len(events))
	}
}

func TestThrottledHandler_CoalescesWarningsPerPath(t *testing.T) {
	sink := &captureHandler{}
	th := NewThrottledHandler(sink.handle, ThrottleConfig{CoalesceInterval: time.Hour})

	warn := func(path, text string) {
		e := toolflow.NewEvent(toolflow.EventToolWarning, "run-1").
			WithPath(path, toolflow.KindTool).
			WithPayload("text", text)
		th.Handle(e)
	}

	warn("root/a", "first")
	warn("root/a", "second")
	warn("root/b", "other")

	if len(sink.snapshot()) != 0 {
		t.Fatal("warnings emitted before flush")
	}

	// Close flushes whatever is pending.
	th.Close()

	events := sink.snapshot()
	if len(events) != 2 {
		t.Fatalf("events = %d, want one coalesced warning per path", len(events))
	}

	byPath := make(map[string]toolflow.Event)
	for _, e := range events {
		byPath[e.Path] = e
	}
	if got := byPath["root/a"].Payload["text"]; got != "second" {
		t.Errorf("root/a warning = %v, want the latest one", got)
	}
	if got := byPath["root/b"].Payload["text"]; got != "other" {
		t.Errorf("root/b warning = %v, want other", got)
	}
}

func TestThrottledHandler_CloseIsIdempotent(t *testing.T) {
	th := NewThrottledHandler(func(toolflow.Event) {}, ThrottleConfig{})
	th.Close()
	th.Close()
}
