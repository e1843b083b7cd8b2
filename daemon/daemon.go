// Package daemon schedules recurring pipeline runs. Each schedule entry
// names a pipeline file and a UTC cron expression; on every trigger the
// pipeline is recompiled from the file and run, so file edits take effect
// on the next trigger without a restart.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/strand-labs/toolflow"
	"github.com/strand-labs/toolflow/loader"
)

// ScheduleEntry binds one pipeline file to a cron expression.
type ScheduleEntry struct {
	// Pipeline is the pipeline file path.
	Pipeline string `yaml:"pipeline"`

	// Cron is a standard five-field cron expression, evaluated in UTC.
	Cron string `yaml:"cron"`

	// Reuse seeds the root reuse decision of each triggered run.
	Reuse bool `yaml:"reuse,omitempty"`
}

// Config configures a daemon.
type Config struct {
	// Entries are the schedules to install.
	Entries []ScheduleEntry

	// Settings configures each triggered run.
	Settings *toolflow.Settings

	// Handler receives the events of every triggered run. May be nil.
	Handler toolflow.EventHandler

	// Logger receives daemon lifecycle logs. Defaults to slog.Default.
	Logger *slog.Logger
}

// Daemon runs pipelines on cron schedules.
type Daemon struct {
	cron    *cron.Cron
	logger  *slog.Logger
	entries []*scheduledRun
}

// scheduledRun is one installed schedule plus its overlap guard.
type scheduledRun struct {
	entry    ScheduleEntry
	settings *toolflow.Settings
	handler  toolflow.EventHandler
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

// New creates a daemon with the given schedules installed but not started.
func New(cfg Config) (*Daemon, error) {
	if len(cfg.Entries) == 0 {
		return nil, fmt.Errorf("daemon: no schedule entries")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
	)))

	d := &Daemon{cron: c, logger: logger}
	for _, entry := range cfg.Entries {
		if entry.Pipeline == "" {
			return nil, fmt.Errorf("daemon: schedule entry has no pipeline")
		}
		sr := &scheduledRun{
			entry:    entry,
			settings: cfg.Settings,
			handler:  cfg.Handler,
			logger:   logger,
		}
		if _, err := c.AddFunc(entry.Cron, sr.trigger); err != nil {
			return nil, fmt.Errorf("daemon: invalid cron %q for %s: %w", entry.Cron, entry.Pipeline, err)
		}
		d.entries = append(d.entries, sr)
	}
	return d, nil
}

// Start begins triggering schedules. It returns immediately.
func (d *Daemon) Start() {
	d.logger.Info("daemon started", "schedules", len(d.entries))
	d.cron.Start()
}

// Stop stops triggering new runs and waits for in-flight runs to finish or
// the context to expire.
func (d *Daemon) Stop(ctx context.Context) error {
	stopCtx := d.cron.Stop()
	select {
	case <-stopCtx.Done():
		d.logger.Info("daemon stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("daemon: stop: %w", ctx.Err())
	}
}

// trigger runs one scheduled pipeline. A trigger that fires while the
// previous run of the same entry is still active is skipped, not queued.
func (s *scheduledRun) trigger() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("skipping trigger, previous run still active", "pipeline", s.entry.Pipeline)
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	root, err := loader.LoadPipeline(s.entry.Pipeline)
	if err != nil {
		s.logger.Error("loading pipeline failed", "pipeline", s.entry.Pipeline, "error", err)
		return
	}

	s.logger.Info("triggering pipeline", "pipeline", s.entry.Pipeline, "root", root.Path())

	ec, err := toolflow.Run(context.Background(), root, toolflow.RunOptions{
		Settings: s.settings,
		Handler:  s.handler,
		Reuse:    s.entry.Reuse,
	})
	if err != nil {
		s.logger.Error("pipeline run failed", "pipeline", s.entry.Pipeline, "error", err)
		return
	}
	s.logger.Info("pipeline run finished", "pipeline", s.entry.Pipeline, "run_id", ec.RunID)
}
