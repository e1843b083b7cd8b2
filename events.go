package toolflow

import (
	"time"
)

// EventKind identifies the type of event emitted by the engine.
type EventKind string

const (
	// EventRunStarted is emitted when a root run begins.
	EventRunStarted EventKind = "run_started"

	// EventRunFinished is emitted when a root run completes.
	EventRunFinished EventKind = "run_finished"

	// EventRunFailed is emitted when a root run ends with an error.
	EventRunFailed EventKind = "run_failed"

	// EventToolStarted is emitted when a node begins a fresh execution.
	EventToolStarted EventKind = "tool_started"

	// EventToolFinished is emitted when a node completes successfully.
	EventToolFinished EventKind = "tool_finished"

	// EventToolReused is emitted when a node skips execution and reloads a
	// prior result instead.
	EventToolReused EventKind = "tool_reused"

	// EventToolFailed is emitted when a node's body returns an error.
	EventToolFailed EventKind = "tool_failed"

	// EventToolWarning is emitted for per-node warnings.
	EventToolWarning EventKind = "tool_warning"

	// EventToolInfo is emitted for informational per-node messages.
	EventToolInfo EventKind = "tool_info"
)

// String returns the string representation of the EventKind.
func (k EventKind) String() string {
	return string(k)
}

// Event is a structured, streamable record of what happened during a run.
// Events carry only small status data; results live in the ResultStore.
type Event struct {
	// Kind identifies the event type.
	Kind EventKind

	// RunID is the unique identifier for this run.
	RunID string

	// Seq is a per-run monotonic sequence number, assigned by recorders.
	Seq uint64

	// Path is the slash-joined path of the node that produced this event
	// (empty for run-level events).
	Path string

	// NodeKind is the kind of the producing node (empty for run-level events).
	NodeKind NodeKind

	// Time is when the event occurred.
	Time time.Time

	// Elapsed is the duration since the node or run started.
	Elapsed time.Duration

	// Payload contains event-specific data. Keep it small.
	Payload map[string]any
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(kind EventKind, runID string) Event {
	return Event{
		Kind:    kind,
		RunID:   runID,
		Time:    time.Now(),
		Payload: make(map[string]any),
	}
}

// WithPath sets the node information on the event.
func (e Event) WithPath(path string, kind NodeKind) Event {
	e.Path = path
	e.NodeKind = kind
	return e
}

// WithElapsed sets the elapsed duration on the event.
func (e Event) WithElapsed(elapsed time.Duration) Event {
	e.Elapsed = elapsed
	return e
}

// WithPayload adds a key-value pair to the event payload.
func (e Event) WithPayload(key string, value any) Event {
	if e.Payload == nil {
		e.Payload = make(map[string]any)
	}
	e.Payload[key] = value
	return e
}

// EventHandler receives engine events. Implementations can log, store, or
// forward events as needed.
type EventHandler func(Event)

// MultiEventHandler combines multiple handlers into one.
func MultiEventHandler(handlers ...EventHandler) EventHandler {
	return func(e Event) {
		for _, h := range handlers {
			if h != nil {
				h(e)
			}
		}
	}
}

// ChannelEventHandler returns a handler that sends events to a channel.
// Events are dropped if the channel is full.
func ChannelEventHandler(ch chan<- Event) EventHandler {
	return func(e Event) {
		select {
		case ch <- e:
		default:
		}
	}
}

// Messenger reports per-node status. It is handed to tool bodies and used by
// the engine itself around the node lifecycle.
type Messenger struct {
	emit    EventHandler
	runID   string
	path    string
	kind    NodeKind
	started time.Time
}

func newMessenger(emit EventHandler, runID, path string, kind NodeKind) *Messenger {
	return &Messenger{emit: emit, runID: runID, path: path, kind: kind}
}

// Started reports that the node began a fresh execution.
func (m *Messenger) Started() {
	m.started = time.Now()
	m.send(NewEvent(EventToolStarted, m.runID))
}

// Finished reports that the node completed successfully.
func (m *Messenger) Finished() {
	e := NewEvent(EventToolFinished, m.runID)
	if !m.started.IsZero() {
		e = e.WithElapsed(time.Since(m.started))
	}
	m.send(e)
}

// Reused reports that the node skipped execution and reloaded a prior result.
func (m *Messenger) Reused() {
	m.send(NewEvent(EventToolReused, m.runID))
}

// Failed reports that the node's body returned an error.
func (m *Messenger) Failed(err error) {
	e := NewEvent(EventToolFailed, m.runID).WithPayload("error", err.Error())
	if !m.started.IsZero() {
		e = e.WithElapsed(time.Since(m.started))
	}
	m.send(e)
}

// Warning reports a per-node warning.
func (m *Messenger) Warning(text string) {
	m.send(NewEvent(EventToolWarning, m.runID).WithPayload("text", text))
}

// Info reports an informational per-node message.
func (m *Messenger) Info(text string) {
	m.send(NewEvent(EventToolInfo, m.runID).WithPayload("text", text))
}

func (m *Messenger) send(e Event) {
	if m.emit == nil {
		return
	}
	m.emit(e.WithPath(m.path, m.kind))
}
