package pool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
)

// Spawner executes one task and returns its outcome. The default spawner
// re-executes the current binary as an OS worker process; tests substitute
// in-process fakes.
type Spawner interface {
	Spawn(ctx context.Context, task Task) (Outcome, error)
}

// ProcSpawner spawns the current executable as a worker process. Workers
// are placed in their own process group so the supervisor can terminate a
// worker and everything it spawned in one action.
type ProcSpawner struct {
	// SessionDir is the pool session directory, exported to workers.
	SessionDir string

	mu    sync.Mutex
	procs map[int]*os.Process
}

// NewProcSpawner creates a process spawner for the given session directory.
func NewProcSpawner(sessionDir string) *ProcSpawner {
	return &ProcSpawner{
		SessionDir: sessionDir,
		procs:      make(map[int]*os.Process),
	}
}

// Spawn runs one worker process to completion and parses its outcome from
// stdout. Worker stderr passes through to the parent's stderr so failure
// diagnostics stay visible. Context cancellation terminates the worker's
// process group.
func (s *ProcSpawner) Spawn(ctx context.Context, task Task) (Outcome, error) {
	exe, err := os.Executable()
	if err != nil {
		return Outcome{}, fmt.Errorf("pool: resolve executable: %w", err)
	}

	taskJSON, err := json.Marshal(task)
	if err != nil {
		return Outcome{}, fmt.Errorf("pool: encode task: %w", err)
	}

	var stdout bytes.Buffer
	cmd := exec.Command(exe, os.Args[1:]...) // #nosec G204 -- re-exec of self
	cmd.Stdout = &stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(),
		EnvTask+"="+string(taskJSON),
		EnvSession+"="+s.SessionDir,
		EnvWorker+"=1",
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return Outcome{}, fmt.Errorf("pool: start worker: %w", err)
	}

	s.track(cmd.Process)
	defer s.untrack(cmd.Process)

	// Terminate the worker's whole process group if the parent context is
	// canceled while the worker runs.
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			killGroup(cmd.Process)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)

	if ctx.Err() != nil {
		return Outcome{}, fmt.Errorf("pool: worker canceled: %w", ctx.Err())
	}
	if waitErr != nil {
		return Outcome{}, fmt.Errorf("pool: worker for %s[%d] exited: %w", task.ChainPath, task.Index, waitErr)
	}

	return parseOutcome(stdout.String())
}

// KillAll terminates the process groups of all currently running workers.
// This is a hard stop, not a graceful drain.
func (s *ProcSpawner) KillAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.procs {
		killGroup(p)
	}
}

func (s *ProcSpawner) track(p *os.Process) {
	s.mu.Lock()
	s.procs[p.Pid] = p
	s.mu.Unlock()
}

func (s *ProcSpawner) untrack(p *os.Process) {
	s.mu.Lock()
	delete(s.procs, p.Pid)
	s.mu.Unlock()
}

func killGroup(p *os.Process) {
	if p == nil {
		return
	}
	// Negative pid addresses the whole process group.
	_ = syscall.Kill(-p.Pid, syscall.SIGKILL)
}
