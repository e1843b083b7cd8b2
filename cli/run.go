// Package cli implements the toolflow command line interface.
package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/strand-labs/toolflow"
	"github.com/strand-labs/toolflow/loader"
	"github.com/strand-labs/toolflow/monitor"
)

// Exit codes.
const (
	exitSuccess      = 0
	exitValidation   = 1
	exitRuntime      = 2
	exitFileNotFound = 3
	exitTimeout      = 10
)

// NewRunCmd creates the "run" subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Execute a pipeline file",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}

	cmd.Flags().StringP("settings", "s", "", "Settings file (default: ./toolflow.yaml, ~/.toolflow/config.yaml)")
	cmd.Flags().Bool("reuse", false, "Allow the root to reuse cached results")
	cmd.Flags().Bool("reload-only", false, "Replay cached results only, fail on any cache miss")
	cmd.Flags().IntP("max-procs", "j", 0, "Max simultaneous worker processes (default: settings or CPU count)")
	cmd.Flags().String("base-dir", "", "Root working directory for tool output")
	cmd.Flags().Duration("timeout", 0, "Execution timeout (0 = none)")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	settings, err := loadRunSettings(cmd)
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}

	root, err := loadPipelineForRun(args[0])
	if err != nil {
		return err
	}

	handler, closeHandler, err := buildRunHandler(settings)
	if err != nil {
		return exitError(exitRuntime, "%v", err)
	}
	defer closeHandler()

	ctx, cancel, timeout := runContext(cmd)
	defer cancel()

	_, err = toolflow.Run(ctx, root, toolflow.RunOptions{
		Settings: settings,
		Handler:  handler,
		Reuse:    mustBool(cmd, "reuse"),
	})
	if err != nil {
		if timeout > 0 && ctx.Err() == context.DeadlineExceeded {
			return exitError(exitTimeout, "execution timed out after %s", timeout)
		}
		return exitError(exitRuntime, "execution failed: %v", err)
	}
	return nil
}

func loadRunSettings(cmd *cobra.Command) (*toolflow.Settings, error) {
	settingsPath, _ := cmd.Flags().GetString("settings")
	settings, err := toolflow.LoadSettings(settingsPath)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("reload-only") {
		settings.ReloadOnly = mustBool(cmd, "reload-only")
	}
	if n, _ := cmd.Flags().GetInt("max-procs"); n > 0 {
		settings.MaxProcesses = n
	}
	if dir, _ := cmd.Flags().GetString("base-dir"); dir != "" {
		settings.BaseDir = dir
	}
	return settings, nil
}

func loadPipelineForRun(path string) (toolflow.ToolNode, error) {
	root, err := loader.LoadPipeline(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, exitError(exitFileNotFound, "file not found: %s", path)
		}
		return nil, exitError(exitValidation, "%v", err)
	}
	return root, nil
}

// buildRunHandler assembles the event pipeline: structured logs to stderr
// with high-frequency warnings coalesced, a recorder that stamps per-run
// sequence numbers and publishes on an in-process bus, and the SQLite event
// database when configured.
func buildRunHandler(settings *toolflow.Settings) (toolflow.EventHandler, func(), error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	throttled := monitor.NewThrottledHandler(monitor.LogHandler(logger), monitor.ThrottleConfig{})
	bus := monitor.NewMemBus(monitor.MemBusConfig{})
	closer := func() {
		throttled.Close()
		_ = bus.Close()
	}

	var es monitor.EventStore
	if settings.EventDBPath != "" {
		sqlStore, err := monitor.NewSQLiteEventStore(monitor.SQLiteStoreConfig{DSN: settings.EventDBPath})
		if err != nil {
			closer()
			return nil, nil, err
		}
		es = sqlStore
		inner := closer
		closer = func() {
			inner()
			_ = sqlStore.Close()
		}
	}

	recorder := monitor.NewRecorder(es, bus, logger)
	return toolflow.MultiEventHandler(throttled.Handle, recorder.Handle), closer, nil
}

// runContext derives the command context: signal-aware, with an optional
// deadline. SIGINT and SIGTERM cancel the run cooperatively; the engine
// tears down any worker pool on its way out.
func runContext(cmd *cobra.Command) (context.Context, context.CancelFunc, time.Duration) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)

	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout <= 0 {
		return ctx, stop, 0
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() { cancel(); stop() }, timeout
}

func mustBool(cmd *cobra.Command, name string) bool {
	v, _ := cmd.Flags().GetBool(name)
	return v
}
