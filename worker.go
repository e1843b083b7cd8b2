package toolflow

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/strand-labs/toolflow/pool"
)

// exitWorker terminates a worker process; tests substitute it.
var exitWorker = os.Exit

// WorkerMain checks whether the current process was spawned as a pool worker
// and, if so, runs the assigned task and exits. Callers invoke it early in
// main, before any parent-side run logic, with the same tree the parent
// holds. It returns false when the process is not a worker.
func WorkerMain(ec *ExecutionContext, root ToolNode) bool {
	task, kill, ok := pool.TaskFromEnv()
	if !ok {
		return false
	}
	exitWorker(RunWorkerTask(context.Background(), ec, root, task, kill))
	return true
}

// RunWorkerTask executes one dispatched unit inside a worker process: it
// registers the tree, re-enters the ancestors down to the target chain, runs
// the addressed child through the standard lifecycle, and reports the
// outcome on stdout.
//
// A task failure raises the pool's shared cancellation flag instead of a
// nonzero exit status; the supervisor decides how to wind the pool down. The
// returned value is the process exit code.
func RunWorkerTask(ctx context.Context, ec *ExecutionContext, root ToolNode, task pool.Task, kill *pool.KillFlag) int {
	ec.Register(root)

	name, reused, err := executeWorkerTask(ctx, ec, task)
	if err != nil {
		banner := strings.Repeat("=", 78)
		fmt.Fprintln(os.Stderr, banner)
		fmt.Fprintf(os.Stderr, "worker error in %s[%d]:\n%v\n", task.ChainPath, task.Index, err)
		fmt.Fprintln(os.Stderr, banner)
		kill.Request()
		reused = false
	}

	if werr := pool.WriteOutcome(os.Stdout, pool.Outcome{Name: name, Reused: reused}); werr != nil {
		fmt.Fprintf(os.Stderr, "worker: write outcome: %v\n", werr)
		kill.Request()
	}
	return 0
}

// executeWorkerTask re-enters the chain at task.ChainPath, seeds its reuse
// flag with the parent's dispatch-time state, and runs the child at
// task.Index.
func executeWorkerTask(ctx context.Context, ec *ExecutionContext, task pool.Task) (string, bool, error) {
	var entered []ToolNode
	defer func() {
		for i := len(entered) - 1; i >= 0; i-- {
			entered[i].Exit(ec)
			ec.pop()
		}
	}()

	prefix := ""
	for _, part := range strings.Split(task.ChainPath, "/") {
		if prefix == "" {
			prefix = part
		} else {
			prefix = prefix + "/" + part
		}
		n, ok := ec.Lookup(prefix)
		if !ok {
			return "", false, fmt.Errorf("worker: no node at path %q", prefix)
		}
		ec.push(n)
		n.Enter(ec)
		entered = append(entered, n)
	}

	chain, ok := entered[len(entered)-1].(chainNode)
	if !ok {
		return "", false, fmt.Errorf("worker: node at %q is not a chain", task.ChainPath)
	}

	chain.materializeLazy(ec)
	child, ok := chain.childAt(task.Index)
	if !ok {
		return "", false, fmt.Errorf("worker: chain %q has no child %d", task.ChainPath, task.Index)
	}

	chain.seedReuse(task.Reuse)
	if err := chain.runChild(ctx, ec, child); err != nil {
		return child.Name(), false, err
	}
	return child.Name(), chain.finalReuse(), nil
}
