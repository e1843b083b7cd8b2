// Package toolflow is a hierarchical task-execution engine. Work is
// organized as a tree of leaf Tools composed into ToolChains; the engine
// drives every node through a uniform lifecycle with result memoization,
// chain-wide reuse propagation, and optional dispatch of chain children to
// OS worker processes.
//
// Results persist in a store.ResultStore keyed by node path, so a rerun of
// an unchanged pipeline reloads cached results instead of recomputing them,
// and parallel workers hand results back to the parent process through the
// same store.
package toolflow

import (
	"context"
	"fmt"

	"github.com/strand-labs/toolflow/pool"
	"github.com/strand-labs/toolflow/store"
)

// Version is the engine version, overridable at build time.
var Version = "0.3.0"

// RunOptions configures a root run.
type RunOptions struct {
	// Settings configures the run. Defaults to DefaultSettings.
	Settings *Settings

	// Store is the result persistence backend. Defaults to a filesystem
	// store rooted at the settings' store directory.
	Store store.ResultStore

	// Handler receives engine events. May be nil.
	Handler EventHandler

	// Reuse seeds the root's reuse decision: when true, the root may skip
	// execution if its cached results are complete.
	Reuse bool
}

// Run drives the tree rooted at root through one full run. It returns the
// ExecutionContext so callers can look up results afterwards.
//
// When the current process is a pool worker, Run executes the assigned unit
// and exits instead of starting a parent run; see WorkerMain.
func Run(ctx context.Context, root ToolNode, opts RunOptions) (*ExecutionContext, error) {
	if root == nil {
		return nil, configErrorf("cannot run a nil root")
	}

	settings := opts.Settings
	if settings == nil {
		settings = DefaultSettings()
	}

	rs := opts.Store
	if rs == nil {
		var err error
		rs, err = store.NewFSStore(settings.StoreDirOrBase())
		if err != nil {
			return nil, err
		}
	}

	ec := NewExecutionContext(settings, rs)
	ec.Emit = opts.Handler

	if task, kill, ok := pool.TaskFromEnv(); ok {
		ec.Register(root)
		exitWorker(RunWorkerTask(ctx, ec, root, task, kill))
	}

	ec.Register(root)

	emit(ec, NewEvent(EventRunStarted, ec.RunID).WithPayload("root", root.Path()))

	_, err := runNode(ctx, ec, root, opts.Reuse)
	if err != nil {
		emit(ec, NewEvent(EventRunFailed, ec.RunID).WithPayload("error", err.Error()))
		return ec, fmt.Errorf("run %s: %w", ec.RunID, err)
	}

	emit(ec, NewEvent(EventRunFinished, ec.RunID))
	return ec, nil
}

func emit(ec *ExecutionContext, e Event) {
	if ec.Emit != nil {
		ec.Emit(e)
	}
}
