package pool

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

// Config configures a worker pool.
type Config struct {
	// Workers is the number of concurrent worker slots. This is the
	// process-wide concurrency gate: at most Workers units run at once.
	Workers int

	// SessionDir holds the shared cancellation flag. If empty, a temp
	// directory is created and removed on Close.
	SessionDir string

	// Spawner executes tasks. Defaults to a ProcSpawner.
	Spawner Spawner
}

// Pool is a bounded set of OS worker processes executing dispatched units
// and reporting completions in arrival order.
type Pool struct {
	workers    int
	spawner    Spawner
	kill       *KillFlag
	sessionDir string
	ownSession bool
	killed     atomic.Bool
	wg         sync.WaitGroup
}

// New creates a pool. Close must be called when the pool is done.
func New(cfg Config) (*Pool, error) {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	sessionDir := cfg.SessionDir
	ownSession := false
	if sessionDir == "" {
		dir, err := os.MkdirTemp("", "toolflow-pool-*")
		if err != nil {
			return nil, fmt.Errorf("pool: create session dir: %w", err)
		}
		sessionDir = dir
		ownSession = true
	}

	spawner := cfg.Spawner
	if spawner == nil {
		spawner = NewProcSpawner(sessionDir)
	}

	return &Pool{
		workers:    cfg.Workers,
		spawner:    spawner,
		kill:       NewKillFlag(sessionDir),
		sessionDir: sessionDir,
		ownSession: ownSession,
	}, nil
}

// SessionDir returns the pool's session directory.
func (p *Pool) SessionDir() string {
	return p.sessionDir
}

// Run dispatches the tasks and returns a channel of outcomes in completion
// order. The channel closes when all dispatched tasks have finished or
// dispatch stopped after a kill request. Consume the channel fully.
func (p *Pool) Run(ctx context.Context, tasks []Task) <-chan Outcome {
	taskCh := make(chan Task)
	out := make(chan Outcome, len(tasks))

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for task := range taskCh {
				if p.KillRequested() {
					continue
				}
				oc, err := p.spawner.Spawn(ctx, task)
				if err != nil {
					// The worker already printed its diagnostics; raise the
					// shared flag so the supervisor stops the whole pool.
					p.kill.Request()
					continue
				}
				out <- oc
			}
		}()
	}

	go func() {
		defer close(taskCh)
		for _, task := range tasks {
			if ctx.Err() != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case taskCh <- task:
			}
		}
	}()

	go func() {
		p.wg.Wait()
		close(out)
	}()

	return out
}

// KillRequested reports whether any process of the pool requested a stop.
func (p *Pool) KillRequested() bool {
	return p.killed.Load() || p.kill.Requested()
}

// Kill hard-terminates every running worker process group and stops further
// dispatch. It is the single supervised termination action of the pool.
func (p *Pool) Kill() {
	p.killed.Store(true)
	p.kill.Request()
	if ps, ok := p.spawner.(*ProcSpawner); ok {
		ps.KillAll()
	}
}

// KillFlag returns the pool's shared cancellation flag.
func (p *Pool) KillFlag() *KillFlag {
	return p.kill
}

// Close removes the pool's session directory if the pool created it.
func (p *Pool) Close() {
	if p.ownSession {
		_ = os.RemoveAll(p.sessionDir)
	}
}
