package toolflow

import (
	"context"
	"fmt"

	"github.com/strand-labs/toolflow/pool"
	"github.com/strand-labs/toolflow/store"
)

// ParallelChain is a ToolChain that dispatches its children to a pool of OS
// worker processes instead of running them in-process. Children must be
// mutually independent: no child may read state written by a sibling during
// the same parallel run. This is a caller responsibility and is not
// enforced.
//
// Each worker runs one child's full lifecycle, persists any result to the
// shared store, and reports back only (name, reused). The parent reconciles
// by reloading the finished subtree from the store into its own
// ExecutionContext; completions arrive, and are reconciled, in arbitrary
// order.
type ParallelChain struct {
	ToolChain

	// Spawner overrides the pool's process spawner. Nil uses the default
	// re-exec spawner; tests substitute in-process fakes.
	Spawner pool.Spawner
}

// NewParallelChain creates a process-parallel chain with the given children.
func NewParallelChain(name string, tools ...ToolNode) (*ParallelChain, error) {
	inner, err := NewToolChain(name, tools...)
	if err != nil {
		return nil, err
	}
	c := &ParallelChain{ToolChain: *inner}
	c.kind = KindParallel
	return c, nil
}

// Execute dispatches the children to the worker pool. Inside a worker
// process, or when parallel execution is globally disabled, it degrades to
// sequential ToolChain execution so nested pools never contend for the
// shared concurrency gate.
func (c *ParallelChain) Execute(ctx context.Context, ec *ExecutionContext) error {
	if !ec.Settings.ParallelEnabled() {
		return c.ToolChain.Execute(ctx, ec)
	}

	c.materializeLazy(ec)
	if len(c.childList) == 0 {
		return nil
	}

	tasks := make([]pool.Task, len(c.childList))
	for i := range c.childList {
		tasks[i] = pool.Task{ChainPath: c.Path(), Index: i, Reuse: c.reuse}
	}

	workers := len(tasks)
	if workers > ec.Settings.MaxProcesses {
		workers = ec.Settings.MaxProcesses
	}

	p, err := pool.New(pool.Config{Workers: workers, Spawner: c.Spawner})
	if err != nil {
		return err
	}
	defer p.Close()

	return c.drain(ctx, ec, p, p.Run(ctx, tasks))
}

// drain consumes pool completions in arrival order, reconciling each
// finished subtree and watching the shared cancellation flag.
func (c *ParallelChain) drain(ctx context.Context, ec *ExecutionContext, p *pool.Pool, outcomes <-chan pool.Outcome) error {
	for oc := range outcomes {
		if p.KillRequested() {
			p.Kill()
			return fmt.Errorf("%w: worker failure in chain %q", ErrPoolKilled, c.Path())
		}

		if !oc.Reused {
			c.reuse = false
		}

		if child, ok := c.childByName(oc.Name); ok {
			c.loadResults(ec, child)
		}
	}

	// An interrupt in the parent takes the same hard-termination path as a
	// worker fatal error, so no worker is left orphaned.
	if err := ctx.Err(); err != nil {
		p.Kill()
		return fmt.Errorf("%w: %v", ErrRunCanceled, err)
	}
	if p.KillRequested() {
		p.Kill()
		return fmt.Errorf("%w: worker failure in chain %q", ErrPoolKilled, c.Path())
	}
	return nil
}

// loadResults reloads a finished subtree's persisted results into this
// process's ExecutionContext. The subtree's in-memory results exist only in
// the worker that ran it; the store is the sole channel back.
func (c *ParallelChain) loadResults(ec *ExecutionContext, n ToolNode) {
	ec.push(n)
	n.Enter(ec)
	defer func() {
		n.Exit(ec)
		ec.pop()
	}()

	if t, ok := n.(*Tool); ok {
		if ec.Store.Exists(t.resultKey()) {
			if err := t.Reuse(ec); err != nil && err != store.ErrNotFound {
				t.msg.Warning(fmt.Sprintf("reloading result: %v", err))
			}
		}
		return
	}

	if ch, ok := n.(chainNode); ok {
		ch.materializeLazy(ec)
		for _, child := range ch.children() {
			c.loadResults(ec, child)
		}
	}
}

// Compile-time interface check.
var _ ToolNode = (*ParallelChain)(nil)
