package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/strand-labs/toolflow"
	"github.com/strand-labs/toolflow/cli"
)

// Set via ldflags at build time.
var version = toolflow.Version

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "toolflow",
	Short: "Toolflow task-execution engine CLI",
	Long:  "Toolflow — a CLI for validating, running, cleaning, and scheduling cached task pipelines.",
	// SilenceUsage prevents printing usage on every error
	SilenceUsage: true,
}

func init() {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("toolflow version %s\n", version))

	rootCmd.AddCommand(cli.NewRunCmd())
	rootCmd.AddCommand(cli.NewValidateCmd())
	rootCmd.AddCommand(cli.NewCleanCmd())
	rootCmd.AddCommand(cli.NewServeCmd())
}
