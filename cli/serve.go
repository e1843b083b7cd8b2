package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/strand-labs/toolflow"
	"github.com/strand-labs/toolflow/daemon"
)

// NewServeCmd creates the "serve" subcommand: a long-running daemon that
// triggers pipeline runs on cron schedules.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve <schedule-file>",
		Short: "Run pipelines on cron schedules",
		Args:  cobra.ExactArgs(1),
		RunE:  runServe,
	}

	cmd.Flags().StringP("settings", "s", "", "Settings file (default: ./toolflow.yaml, ~/.toolflow/config.yaml)")

	return cmd
}

// scheduleFile is the on-disk shape of a schedule file.
type scheduleFile struct {
	Schedules []daemon.ScheduleEntry `yaml:"schedules"`
}

func runServe(cmd *cobra.Command, args []string) error {
	settingsPath, _ := cmd.Flags().GetString("settings")
	settings, err := toolflow.LoadSettings(settingsPath)
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}

	entries, err := loadSchedules(args[0])
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	handler, closeHandler, err := buildRunHandler(settings)
	if err != nil {
		return exitError(exitRuntime, "%v", err)
	}
	defer closeHandler()

	d, err := daemon.New(daemon.Config{
		Entries:  entries,
		Settings: settings,
		Handler:  handler,
		Logger:   logger,
	})
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d.Start()
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := d.Stop(stopCtx); err != nil {
		return exitError(exitRuntime, "%v", err)
	}
	return nil
}

func loadSchedules(path string) ([]daemon.ScheduleEntry, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path from user CLI flag
	if err != nil {
		if os.IsNotExist(err) {
			return nil, exitError(exitFileNotFound, "file not found: %s", path)
		}
		return nil, exitError(exitRuntime, "reading schedule file: %v", err)
	}

	var sf scheduleFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, exitError(exitValidation, "parsing schedule file %s: %v", path, err)
	}
	if len(sf.Schedules) == 0 {
		return nil, exitError(exitValidation, "schedule file %s has no schedules", path)
	}
	return sf.Schedules, nil
}
