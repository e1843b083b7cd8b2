// Package loader compiles declarative pipeline files into tool trees.
// A pipeline file describes a tree of chains and command tools in YAML or
// JSON; compilation is deterministic, so the parent process and its worker
// processes build identical trees from the same file.
package loader

import (
	"fmt"
	"os"

	"github.com/strand-labs/toolflow"
)

// PipelineDef is the top-level pipeline file structure.
type PipelineDef struct {
	// Name is the root chain name.
	Name string `yaml:"name" json:"name"`

	// Kind selects the root chain variant. Defaults to "chain".
	Kind string `yaml:"kind,omitempty" json:"kind,omitempty"`

	// Reuse seeds the root reuse decision.
	Reuse bool `yaml:"reuse,omitempty" json:"reuse,omitempty"`

	// Tools are the root chain's children.
	Tools []ToolDef `yaml:"tools" json:"tools"`
}

// ToolDef describes one node of the tree. A node with Tools is a chain of
// the given Kind; a node with Command is a leaf command tool.
type ToolDef struct {
	Name string `yaml:"name" json:"name"`

	// Kind selects the chain variant for composite nodes:
	// chain (default), parallel, indie, vanilla.
	Kind string `yaml:"kind,omitempty" json:"kind,omitempty"`

	// Tools makes this node a chain with the given children.
	Tools []ToolDef `yaml:"tools,omitempty" json:"tools,omitempty"`

	// Command makes this node a leaf running the given argv in the tool's
	// working directory.
	Command []string `yaml:"command,omitempty" json:"command,omitempty"`

	// CanReuse controls result caching for leaves. Defaults to true.
	CanReuse *bool `yaml:"can_reuse,omitempty" json:"can_reuse,omitempty"`

	// RecordOutput captures the command's stdout into the tool result.
	RecordOutput bool `yaml:"record_output,omitempty" json:"record_output,omitempty"`

	// Env adds environment variables for the command.
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

// LoadPipeline reads and compiles a pipeline file.
func LoadPipeline(path string) (toolflow.ToolNode, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path from caller
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}

	def, err := ParsePipeline(data, path)
	if err != nil {
		return nil, err
	}
	return Compile(def)
}

// ParsePipeline decodes a pipeline definition from raw bytes. YAML files are
// detected by extension; everything else parses as JSON.
func ParsePipeline(data []byte, path string) (*PipelineDef, error) {
	jsonData, err := toJSON(data, path)
	if err != nil {
		return nil, err
	}

	var def PipelineDef
	if err := unmarshalStrict(jsonData, &def); err != nil {
		return nil, fmt.Errorf("parsing pipeline %s: %w", path, err)
	}
	return &def, nil
}

// Compile builds the tool tree from a parsed definition. Children are
// created in declaration order, so repeated compilations of the same
// definition produce identical trees and paths.
func Compile(def *PipelineDef) (toolflow.ToolNode, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("pipeline has no name")
	}

	children, err := compileTools(def.Tools)
	if err != nil {
		return nil, err
	}

	root, err := newChain(def.Kind, def.Name, children)
	if err != nil {
		return nil, err
	}

	if def.Reuse {
		chain, ok := rootChain(root)
		if !ok {
			return nil, fmt.Errorf("pipeline root %q is not a chain", def.Name)
		}
		chain.WithDefaultReuse(true)
	}
	return root, nil
}

func compileTools(defs []ToolDef) ([]toolflow.ToolNode, error) {
	nodes := make([]toolflow.ToolNode, 0, len(defs))
	for _, d := range defs {
		n, err := compileTool(d)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func compileTool(d ToolDef) (toolflow.ToolNode, error) {
	switch {
	case len(d.Tools) > 0 && len(d.Command) > 0:
		return nil, fmt.Errorf("tool %q has both children and a command", d.Name)
	case len(d.Tools) > 0:
		children, err := compileTools(d.Tools)
		if err != nil {
			return nil, err
		}
		return newChain(d.Kind, d.Name, children)
	case len(d.Command) > 0:
		if d.Kind != "" {
			return nil, fmt.Errorf("command tool %q must not set kind %q", d.Name, d.Kind)
		}
		return newCommandTool(d)
	default:
		return nil, fmt.Errorf("tool %q has neither children nor a command", d.Name)
	}
}

func newChain(kind, name string, children []toolflow.ToolNode) (toolflow.ToolNode, error) {
	switch kind {
	case "", "chain":
		return toolflow.NewToolChain(name, children...)
	case "parallel":
		return toolflow.NewParallelChain(name, children...)
	case "indie":
		return toolflow.NewIndieChain(name, children...)
	case "vanilla":
		return toolflow.NewVanillaChain(name, children...)
	default:
		return nil, fmt.Errorf("chain %q has unknown kind %q", name, kind)
	}
}

// rootChain unwraps the compiled root to its embedded ToolChain.
func rootChain(n toolflow.ToolNode) (*toolflow.ToolChain, bool) {
	switch c := n.(type) {
	case *toolflow.ToolChain:
		return c, true
	case *toolflow.ParallelChain:
		return &c.ToolChain, true
	case *toolflow.IndieChain:
		return &c.ToolChain, true
	case *toolflow.VanillaChain:
		return &c.ToolChain, true
	default:
		return nil, false
	}
}
