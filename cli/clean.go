package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/strand-labs/toolflow"
	"github.com/strand-labs/toolflow/store"
)

// NewCleanCmd creates the "clean" subcommand. It removes the cached results
// and completed-run markers of a pipeline so the next run executes freshly.
func NewCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean <file>",
		Short: "Remove cached results and run markers of a pipeline",
		Args:  cobra.ExactArgs(1),
		RunE:  runClean,
	}

	cmd.Flags().StringP("settings", "s", "", "Settings file (default: ./toolflow.yaml, ~/.toolflow/config.yaml)")

	return cmd
}

func runClean(cmd *cobra.Command, args []string) error {
	settingsPath, _ := cmd.Flags().GetString("settings")
	settings, err := toolflow.LoadSettings(settingsPath)
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}

	root, err := loadPipelineForRun(args[0])
	if err != nil {
		return err
	}

	fs, err := store.NewFSStore(settings.StoreDirOrBase())
	if err != nil {
		return exitError(exitRuntime, "%v", err)
	}

	cleaned := 0
	toolflow.Walk(root, func(n toolflow.ToolNode) {
		dir := filepath.Join(settings.BaseDir, filepath.FromSlash(n.Path()))
		for _, marker := range []string{n.Name() + ".log", n.Name() + ".result.log"} {
			if err := os.Remove(filepath.Join(dir, marker)); err == nil {
				cleaned++
			}
		}
		if err := fs.Remove(n.Path() + "/result"); err == nil {
			cleaned++
		}
	})

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached entries.\n", cleaned)
	return nil
}
