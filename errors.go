package toolflow

import (
	"errors"
	"fmt"
)

// Engine errors.
var (
	// ErrRunCanceled is returned when a run stops because its context was
	// canceled.
	ErrRunCanceled = errors.New("run was canceled")

	// ErrPoolKilled is returned by a parallel chain after the worker pool was
	// hard-terminated following a worker failure or an interrupt.
	ErrPoolKilled = errors.New("worker pool was terminated")
)

// ConfigError reports an invalid chain construction, such as a duplicate
// sibling name or an invalid tool name. It is raised at build time, before
// any run starts, and is never retried.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return "toolflow: " + e.Msg
}

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// NodeError annotates an execution error with the tree location that failed.
// The nearest enclosing chain attaches it exactly once; outer chains pass an
// already-annotated error through unchanged, so an error carries a single
// annotation naming the innermost failing node.
type NodeError struct {
	Path string
	Kind NodeKind
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%v\noccurred at path (kind): %s (%s)", e.Err, e.Path, e.Kind)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// annotate wraps err with the node's location unless it already carries one.
func annotate(err error, path string, kind NodeKind) error {
	var ne *NodeError
	if errors.As(err, &ne) {
		return err
	}
	return &NodeError{Path: path, Kind: kind, Err: err}
}

// ReloadOnlyError is the fatal abort raised when reload-only mode encounters
// a cacheable node whose result cannot be reused. The message reads path
// first, kind second; tests pin this order.
type ReloadOnlyError struct {
	Path string
	Kind NodeKind
}

func (e *ReloadOnlyError) Error() string {
	return fmt.Sprintf("reload-only mode: cannot reuse %q (%s)", e.Path, e.Kind)
}
