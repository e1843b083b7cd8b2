// Package pool runs dispatched units in a bounded set of OS worker
// processes. It is deliberately ignorant of the tool tree: a Task addresses
// a chain child by path and index, and an Outcome reports only the child's
// name and whether it reused a cached result. Nothing else crosses the
// process boundary; the parent reconciles through the shared result store.
package pool

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Environment variables of the worker protocol.
const (
	// EnvTask carries the JSON-encoded Task of a worker process.
	EnvTask = "TOOLFLOW_WORKER_TASK"

	// EnvSession carries the pool session directory holding the shared
	// cancellation flag.
	EnvSession = "TOOLFLOW_WORKER_SESSION"

	// EnvWorker marks worker processes; the engine disables parallel
	// dispatch when it is set.
	EnvWorker = "TOOLFLOW_WORKER"
)

// Task addresses one dispatched unit: the child at Index inside the chain
// at ChainPath. Reuse seeds the chain-wide reuse flag the worker starts
// from, mirroring the state the parent held at dispatch time.
type Task struct {
	ChainPath string `json:"chain_path"`
	Index     int    `json:"index"`
	Reuse     bool   `json:"reuse"`
}

// Outcome is the only data a worker reports back. Result objects never
// cross the process boundary; the parent reloads them from the store.
type Outcome struct {
	Name   string `json:"name"`
	Reused bool   `json:"reused"`
}

// InWorker reports whether the current process is a pool worker.
func InWorker() bool {
	return os.Getenv(EnvWorker) != ""
}

// TaskFromEnv decodes the worker task from the environment. The returned
// KillFlag is the pool-wide cooperative cancellation flag.
func TaskFromEnv() (Task, *KillFlag, bool) {
	raw := os.Getenv(EnvTask)
	if raw == "" {
		return Task{}, nil, false
	}

	var task Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		fmt.Fprintf(os.Stderr, "toolflow worker: invalid task %q: %v\n", raw, err)
		return Task{}, nil, false
	}

	return task, NewKillFlag(os.Getenv(EnvSession)), true
}

// WriteOutcome writes the outcome as a single JSON line.
func WriteOutcome(w io.Writer, oc Outcome) error {
	data, err := json.Marshal(oc)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// parseOutcome extracts the outcome from a worker's stdout: the last
// non-empty line is the JSON outcome, anything before it is tool output.
func parseOutcome(stdout string) (Outcome, error) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		var oc Outcome
		if err := json.Unmarshal([]byte(line), &oc); err != nil {
			return Outcome{}, fmt.Errorf("pool: no outcome in worker output: %w", err)
		}
		return oc, nil
	}
	return Outcome{}, fmt.Errorf("pool: worker produced no output")
}
