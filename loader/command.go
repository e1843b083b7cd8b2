package loader

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/strand-labs/toolflow"
)

// newCommandTool compiles a leaf definition into a Tool that runs the given
// argv in the tool's working directory.
func newCommandTool(d ToolDef) (*toolflow.Tool, error) {
	if d.Command[0] == "" {
		return nil, fmt.Errorf("tool %q has an empty command", d.Name)
	}

	argv := make([]string, len(d.Command))
	copy(argv, d.Command)
	env := make(map[string]string, len(d.Env))
	for k, v := range d.Env {
		env[k] = v
	}
	recordOutput := d.RecordOutput

	t := toolflow.NewTool(d.Name, func(ctx context.Context, tc *toolflow.ToolContext) error {
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) // #nosec G204 -- argv from pipeline file
		cmd.Dir = tc.Dir()
		cmd.Stderr = os.Stderr

		// The process's own stdout is reserved for the worker outcome line,
		// so command output goes to stderr unless it is being recorded.
		var stdout bytes.Buffer
		if recordOutput {
			cmd.Stdout = &stdout
		} else {
			cmd.Stdout = os.Stderr
		}

		cmd.Env = os.Environ()
		for k, v := range env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}

		if err := cmd.Run(); err != nil {
			return fmt.Errorf("command %q: %w", argv[0], err)
		}

		if recordOutput {
			tc.SetResult(map[string]any{"output": stdout.String()})
		}
		return nil
	})

	if d.CanReuse != nil {
		t.WithCanReuse(*d.CanReuse)
	}
	return t, nil
}
