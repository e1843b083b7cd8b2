package toolflow

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/strand-labs/toolflow/store"
)

// ExecutionContext is the process-wide, path-addressable registry of nodes
// plus the stack of currently entered nodes. It is never shared across
// process boundaries: each worker process rebuilds its own from the static
// chain structure.
type ExecutionContext struct {
	// Settings is the global configuration surface.
	Settings *Settings

	// Store is the result persistence backend.
	Store store.ResultStore

	// Emit receives engine events. May be nil.
	Emit EventHandler

	// RunID identifies this run in events and worker sessions.
	RunID string

	// Shared holds mutable cross-tool run state. VanillaChain snapshots and
	// restores it; the result registry and the entered stack deliberately
	// live outside it so lookups keep working across the snapshot boundary.
	Shared *SharedState

	stack    []ToolNode
	registry map[string]ToolNode
	results  map[string]*store.Result
}

// NewExecutionContext creates a context with a fresh run ID.
func NewExecutionContext(settings *Settings, rs store.ResultStore) *ExecutionContext {
	if settings == nil {
		settings = DefaultSettings()
	}
	return &ExecutionContext{
		Settings: settings,
		Store:    rs,
		RunID:    uuid.NewString(),
		Shared:   NewSharedState(),
		registry: make(map[string]ToolNode),
		results:  make(map[string]*store.Result),
	}
}

// Register records every node in the tree rooted at root, keyed by path,
// so workers and error paths can resolve nodes by address.
func (ec *ExecutionContext) Register(root ToolNode) {
	Walk(root, func(n ToolNode) {
		ec.registry[n.Path()] = n
	})
}

// Lookup resolves a node by its slash-joined path.
func (ec *ExecutionContext) Lookup(path string) (ToolNode, bool) {
	n, ok := ec.registry[path]
	return n, ok
}

// Current returns the innermost entered node, or nil outside any run.
func (ec *ExecutionContext) Current() ToolNode {
	if len(ec.stack) == 0 {
		return nil
	}
	return ec.stack[len(ec.stack)-1]
}

// CurrentPath returns the path of the innermost entered node.
func (ec *ExecutionContext) CurrentPath() string {
	if n := ec.Current(); n != nil {
		return n.Path()
	}
	return ""
}

// CWD returns the working directory of the innermost entered node, with a
// trailing separator.
func (ec *ExecutionContext) CWD() string {
	p := filepath.Join(ec.Settings.BaseDir, filepath.FromSlash(ec.CurrentPath()))
	return p + string(os.PathSeparator)
}

// Depth returns the number of entered nodes.
func (ec *ExecutionContext) Depth() int {
	return len(ec.stack)
}

// LookupResult returns the result registered under a node path, populated on
// finish, reuse, and parallel reconciliation.
func (ec *ExecutionContext) LookupResult(path string) (*store.Result, bool) {
	r, ok := ec.results[path]
	return r, ok
}

func (ec *ExecutionContext) setResult(path string, r *store.Result) {
	if r == nil {
		return
	}
	ec.results[path] = r
}

func (ec *ExecutionContext) push(n ToolNode) {
	ec.stack = append(ec.stack, n)
}

func (ec *ExecutionContext) pop() {
	if len(ec.stack) > 0 {
		ec.stack = ec.stack[:len(ec.stack)-1]
	}
}

func (ec *ExecutionContext) messenger(path string, kind NodeKind) *Messenger {
	return newMessenger(ec.Emit, ec.RunID, path, kind)
}

// SharedState is the explicit checkpoint/restore structure for mutable data
// shared between tools during a run (sample lists, aliases, plot options and
// the like). Access is single-goroutine: chains run children sequentially in
// one process, and parallel children live in separate processes.
type SharedState struct {
	vars map[string]any
}

// NewSharedState creates an empty shared state.
func NewSharedState() *SharedState {
	return &SharedState{vars: make(map[string]any)}
}

// Get returns the value stored under key.
func (s *SharedState) Get(key string) (any, bool) {
	v, ok := s.vars[key]
	return v, ok
}

// Set stores a value under key.
func (s *SharedState) Set(key string, value any) {
	s.vars[key] = value
}

// Delete removes key.
func (s *SharedState) Delete(key string) {
	delete(s.vars, key)
}

// Len returns the number of stored keys.
func (s *SharedState) Len() int {
	return len(s.vars)
}

// Clone returns a deep-ish copy: maps and slices are copied recursively,
// other values are copied by assignment. Tools storing pointer-heavy
// structures should treat them as immutable.
func (s *SharedState) Clone() *SharedState {
	out := NewSharedState()
	for k, v := range s.vars {
		out.vars[k] = deepCopyValue(v)
	}
	return out
}

// Restore replaces this state's contents with those of snap.
func (s *SharedState) Restore(snap *SharedState) {
	s.vars = make(map[string]any, len(snap.vars))
	for k, v := range snap.vars {
		s.vars[k] = v
	}
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopyValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	default:
		return val
	}
}
