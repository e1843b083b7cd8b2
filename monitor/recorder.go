package monitor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/strand-labs/toolflow"
)

// Recorder assigns per-run sequence numbers to events and fans them out to
// an optional EventStore and an optional EventBus. Its Handle method plugs
// directly into toolflow.RunOptions.Handler.
type Recorder struct {
	store  EventStore
	bus    EventBus
	logger *slog.Logger

	mu   sync.Mutex
	seqs map[string]uint64 // runID -> last assigned seq
}

// NewRecorder creates a recorder. Either store or bus may be nil.
func NewRecorder(store EventStore, bus EventBus, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:  store,
		bus:    bus,
		logger: logger,
		seqs:   make(map[string]uint64),
	}
}

// Handle stamps the event with the next sequence number of its run, persists
// it, and publishes it. Persistence failures are logged, not propagated: the
// run must not fail because the event database is unavailable.
func (r *Recorder) Handle(event toolflow.Event) {
	r.mu.Lock()
	r.seqs[event.RunID]++
	event.Seq = r.seqs[event.RunID]
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Append(context.Background(), event); err != nil {
			r.logger.Error("failed to persist event",
				"run_id", event.RunID,
				"kind", event.Kind,
				"seq", event.Seq,
				"error", err,
			)
		}
	}

	if r.bus != nil {
		r.bus.Publish(event)
	}
}
