// Package store provides result persistence backends for the toolflow engine.
// A ResultStore is the only mutable resource shared between the parent process
// and worker processes; tool-path uniqueness guarantees that no two
// concurrently running tools ever write the same key.
package store

import "errors"

// ErrNotFound is returned by Get when no result exists for a key.
var ErrNotFound = errors.New("store: result not found")

// Result is the opaque value a tool may produce. The engine never interprets
// Data; it only persists and reloads it. An empty result is legitimate
// (observational tools) and produces no cache entry.
type Result struct {
	// Name is the producing tool's name, set by the engine before Put.
	Name string `json:"name"`

	// Data is an arbitrary JSON-marshalable payload.
	Data map[string]any `json:"data,omitempty"`
}

// Empty reports whether the result carries no payload.
func (r *Result) Empty() bool {
	return r == nil || len(r.Data) == 0
}

// ResultStore is the persistence backend for tool results.
// Keys are slash-joined tool paths, e.g. "Root/Sub/Leaf/result".
type ResultStore interface {
	// Exists reports whether a result is stored under key.
	Exists(key string) bool

	// Get retrieves the result stored under key.
	// Returns ErrNotFound if no result exists.
	Get(key string) (*Result, error)

	// Put stores a result under key, replacing any previous value.
	Put(res *Result, key string) error

	// Begin opens a scoped multi-entry transaction. Writes issued between
	// Begin and End become visible to later readers as a group.
	Begin()

	// End commits the open transaction.
	End()
}
