package monitor

import (
	"sync"
	"time"

	"github.com/strand-labs/toolflow"
)

// ThrottleConfig controls the behavior of ThrottledHandler.
type ThrottleConfig struct {
	// CoalesceInterval is how often to flush coalesced warning events.
	// Default: 100ms
	CoalesceInterval time.Duration
}

// ThrottledHandler wraps a toolflow.EventHandler and coalesces high-frequency
// tool_warning events. Other events pass through immediately. Warnings are
// coalesced per path: only the latest warning for each path is kept within
// each coalesce interval. A background ticker flushes coalesced warnings at
// the configured interval.
type ThrottledHandler struct {
	emit     toolflow.EventHandler
	interval time.Duration

	mu      sync.Mutex
	pending map[string]toolflow.Event // path -> latest warning event
	closed  bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewThrottledHandler creates a new ThrottledHandler that wraps the given
// handler and coalesces tool_warning events at the configured interval.
func NewThrottledHandler(emit toolflow.EventHandler, cfg ThrottleConfig) *ThrottledHandler {
	interval := cfg.CoalesceInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	th := &ThrottledHandler{
		emit:     emit,
		interval: interval,
		pending:  make(map[string]toolflow.Event),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	go th.run()

	return th
}

// Handle sends an event through the throttled handler. Non-warning events
// pass through immediately to the wrapped handler. Warning events are
// coalesced: only the latest warning per path is kept and flushed at the
// configured interval.
func (th *ThrottledHandler) Handle(e toolflow.Event) {
	if e.Kind != toolflow.EventToolWarning {
		th.emit(e)
		return
	}

	th.mu.Lock()
	defer th.mu.Unlock()

	if th.closed {
		return
	}

	th.pending[e.Path] = e
}

// Close flushes any pending warning events and stops the background ticker.
// It is safe to call Close multiple times.
func (th *ThrottledHandler) Close() {
	th.mu.Lock()
	if th.closed {
		th.mu.Unlock()
		return
	}
	th.closed = true
	th.mu.Unlock()

	close(th.stopCh)
	<-th.doneCh
}

// run is the background goroutine that periodically flushes coalesced warnings.
func (th *ThrottledHandler) run() {
	defer close(th.doneCh)

	ticker := time.NewTicker(th.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			th.flush()
		case <-th.stopCh:
			// Flush any remaining pending events before exiting.
			th.flush()
			return
		}
	}
}

// flush sends all pending coalesced warning events to the wrapped handler
// and clears the pending map.
func (th *ThrottledHandler) flush() {
	th.mu.Lock()
	if len(th.pending) == 0 {
		th.mu.Unlock()
		return
	}

	// Swap out the pending map so we can release the lock during emission.
	toFlush := th.pending
	th.pending = make(map[string]toolflow.Event)
	th.mu.Unlock()

	for _, e := range toFlush {
		th.emit(e)
	}
}
