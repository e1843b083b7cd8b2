package toolflow

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/strand-labs/toolflow/store"
)

// ToolFunc is the user-supplied body of a leaf tool.
type ToolFunc func(ctx context.Context, tc *ToolContext) error

// Tool is the leaf unit of work. It owns an optional result, a working
// directory derived from its path, log markers, and timestamps.
//
// Two mutually exclusive marker files record a completed run: "<name>.log"
// for a run that produced no result and "<name>.result.log" for a run whose
// result is in the store. The marker, not the cached result itself, is the
// primary reuse signal.
type Tool struct {
	nodeBase

	canReuse bool
	fn       ToolFunc

	result        *store.Result
	cwd           string
	logFile       string
	resultLogFile string
	timeStart     time.Time
	timeFin       time.Time
}

// NewTool creates a leaf tool. Tools are cacheable by default.
func NewTool(name string, fn ToolFunc) *Tool {
	return &Tool{
		nodeBase: newNodeBase(name, KindTool),
		canReuse: true,
		fn:       fn,
	}
}

// WithCanReuse sets whether the tool participates in result caching and
// returns the tool for chaining. Non-cacheable tools execute on every run.
func (t *Tool) WithCanReuse(v bool) *Tool {
	t.canReuse = v
	return t
}

// CanReuse reports whether the tool participates in result caching.
func (t *Tool) CanReuse() bool {
	return t.canReuse
}

// Result returns the tool's current result, which may be nil.
func (t *Tool) Result() *store.Result {
	return t.result
}

// Reset clears per-run state so the tool can be run again, e.g. for a
// repeated systematic-variation invocation.
func (t *Tool) Reset() {
	t.result = nil
	t.timeStart = time.Time{}
	t.timeFin = time.Time{}
}

// Enter resolves the working directory and marker paths. On the first entry
// of a process lifetime Update runs; on re-entry after a completed run,
// Reset clears transient state.
func (t *Tool) Enter(ec *ExecutionContext) {
	if t.timeFin.IsZero() {
		t.Update()
	} else {
		t.Reset()
	}
	t.nodeBase.Enter(ec)

	t.cwd = ec.CWD()
	t.logFile = filepath.Join(t.cwd, t.name+".log")
	if t.canReuse {
		t.resultLogFile = filepath.Join(t.cwd, t.name+".result.log")
	} else {
		t.resultLogFile = t.logFile
	}
}

// Exit clears working-directory references.
func (t *Tool) Exit(ec *ExecutionContext) {
	t.cwd = ""
	t.logFile = ""
	t.resultLogFile = ""
	t.nodeBase.Exit(ec)
}

// WannaReuse reports whether execution can be skipped: the tool must be
// cacheable, every preceding sibling must have reused, and a completed-run
// marker must be present — either the "ran, no result" marker alone, or the
// "ran, result available" marker with the store confirming the result.
func (t *Tool) WannaReuse(ec *ExecutionContext, allReusedBefore bool) bool {
	if !t.canReuse || !allReusedBefore {
		return false
	}
	if fileExists(t.logFile) {
		return true
	}
	return fileExists(t.resultLogFile) && ec.Store.Exists(t.resultKey())
}

// Reuse loads the previously stored result instead of executing. A missing
// store entry is not an error: tools that produced no result have nothing
// to load.
func (t *Tool) Reuse(ec *ExecutionContext) error {
	t.msg.Reused()

	ec.Store.Begin()
	res, err := ec.Store.Get(t.resultKey())
	ec.Store.End()

	if err != nil {
		if err == store.ErrNotFound {
			return nil
		}
		return err
	}
	t.result = res
	ec.setResult(t.Path(), res)
	return nil
}

// Starting prepares a fresh execution: the working directory is created and
// stale markers from a previous attempt are removed, so a crash never looks
// like a completed run.
func (t *Tool) Starting(ec *ExecutionContext) {
	t.nodeBase.Starting(ec)
	t.timeStart = time.Now()

	_ = os.MkdirAll(t.cwd, 0o755)
	_ = os.Remove(t.logFile)
	if t.resultLogFile != t.logFile {
		_ = os.Remove(t.resultLogFile)
	}
}

// Execute runs the user-supplied body.
func (t *Tool) Execute(ctx context.Context, ec *ExecutionContext) error {
	if t.fn == nil {
		return nil
	}
	return t.fn(ctx, &ToolContext{ec: ec, tool: t})
}

// Finished persists a non-empty result and rewrites exactly one marker file
// carrying the start and finish timestamps.
func (t *Tool) Finished(ec *ExecutionContext) error {
	if !t.result.Empty() {
		t.result.Name = t.name
		ec.Store.Begin()
		err := ec.Store.Put(t.result, t.resultKey())
		ec.Store.End()
		if err != nil {
			return err
		}
		ec.setResult(t.Path(), t.result)
	}

	t.timeFin = time.Now()

	marker := t.logFile
	if !t.result.Empty() {
		marker = t.resultLogFile
	}
	stamp := t.timeStart.Format(time.ANSIC) + "\n" + t.timeFin.Format(time.ANSIC) + "\n"
	if err := os.WriteFile(marker, []byte(stamp), 0o644); err != nil {
		return err
	}

	return t.nodeBase.Finished(ec)
}

func (t *Tool) resultKey() string {
	return t.Path() + "/result"
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ToolContext is handed to a tool's body. It exposes the tool's identity,
// working directory, result slot, and run-scoped lookups.
type ToolContext struct {
	ec   *ExecutionContext
	tool *Tool
}

// Name returns the tool's name.
func (tc *ToolContext) Name() string {
	return tc.tool.Name()
}

// Path returns the tool's slash-joined path.
func (tc *ToolContext) Path() string {
	return tc.tool.Path()
}

// Dir returns the tool's working directory, with a trailing separator.
func (tc *ToolContext) Dir() string {
	return tc.tool.cwd
}

// SetResult sets the tool's result payload. Passing an empty map (or never
// calling SetResult) leaves the tool without a result, which is legitimate
// and produces no cache entry.
func (tc *ToolContext) SetResult(data map[string]any) {
	tc.tool.result = &store.Result{Name: tc.tool.Name(), Data: data}
}

// Result returns the tool's current result, which may be nil.
func (tc *ToolContext) Result() *store.Result {
	return tc.tool.result
}

// LookupResult returns the result registered under another node's path.
func (tc *ToolContext) LookupResult(path string) (*store.Result, bool) {
	return tc.ec.LookupResult(path)
}

// Shared returns the run's shared mutable state.
func (tc *ToolContext) Shared() *SharedState {
	return tc.ec.Shared
}

// Warning reports a per-tool warning.
func (tc *ToolContext) Warning(text string) {
	tc.tool.msg.Warning(text)
}

// Compile-time interface check.
var _ ToolNode = (*Tool)(nil)
