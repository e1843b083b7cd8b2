package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/strand-labs/toolflow"
	"github.com/strand-labs/toolflow/loader"
)

// NewValidateCmd creates the "validate" subcommand.
func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate and compile a pipeline file without running it",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}

	cmd.Flags().Bool("tree", false, "Print the compiled tool tree")

	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	root, err := loader.LoadPipeline(args[0])
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return exitError(exitFileNotFound, "file not found: %s", args[0])
		}
		return exitError(exitValidation, "%v", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Validation and compilation successful.")

	if showTree, _ := cmd.Flags().GetBool("tree"); showTree {
		printTree(cmd, root)
	}
	return nil
}

func printTree(cmd *cobra.Command, root toolflow.ToolNode) {
	toolflow.Walk(root, func(n toolflow.ToolNode) {
		depth := strings.Count(n.Path(), "/")
		fmt.Fprintf(cmd.OutOrStdout(), "%s%s (%s)\n", strings.Repeat("  ", depth), n.Name(), n.Kind())
	})
}
