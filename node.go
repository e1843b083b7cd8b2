package toolflow

import (
	"context"
	"strings"
)

// NodeKind identifies the concrete type of a tree node.
type NodeKind string

const (
	// KindTool is a leaf unit of work.
	KindTool NodeKind = "tool"

	// KindChain is an ordered sequential composite.
	KindChain NodeKind = "chain"

	// KindIndie is a chain that always reuses while entered.
	KindIndie NodeKind = "indie_chain"

	// KindVanilla is a chain that isolates shared state for its duration.
	KindVanilla NodeKind = "vanilla_chain"

	// KindParallel is a chain that dispatches children to worker processes.
	KindParallel NodeKind = "parallel_chain"
)

// ToolNode is the lifecycle contract shared by leaf tools and chains.
// Concrete implementations are Tool, ToolChain, IndieChain, VanillaChain,
// and ParallelChain; the interface is sealed so the engine can drive the
// full lifecycle uniformly.
type ToolNode interface {
	// Name returns the node's name, unique among its siblings.
	Name() string

	// Kind returns the node's concrete kind.
	Kind() NodeKind

	// Path returns the slash-joined ancestor-name identifier, stable once
	// the node is attached to a parent.
	Path() string

	// Enter is invoked after the node is pushed onto the context stack;
	// it resolves transient per-run references (working directory, markers).
	Enter(ec *ExecutionContext)

	// Exit clears transient references. It runs on every exit path.
	Exit(ec *ExecutionContext)

	// Reset clears per-run state so the node can be run again.
	Reset()

	// Update prepares the node before its first entry of a process lifetime.
	Update()

	// CanReuse reports whether the node participates in result caching.
	CanReuse() bool

	// WannaReuse decides whether execution can be skipped, given that every
	// preceding sibling in the chain actually reused.
	WannaReuse(ec *ExecutionContext, allReusedBefore bool) bool

	// Reuse loads the previously stored result instead of executing.
	Reuse(ec *ExecutionContext) error

	// Starting runs just before the body on a fresh execution.
	Starting(ec *ExecutionContext)

	// Execute runs the node's body.
	Execute(ctx context.Context, ec *ExecutionContext) error

	// Finished persists results and markers after a successful body.
	Finished(ec *ExecutionContext) error

	// sealed
	setPath(parent string)
	children() []ToolNode
	seedReuse(v bool)
	finalReuse() bool
}

// nodeBase provides the identity and default lifecycle hooks shared by all
// node implementations.
type nodeBase struct {
	name string
	kind NodeKind
	path string
	msg  *Messenger
}

func newNodeBase(name string, kind NodeKind) nodeBase {
	return nodeBase{name: name, kind: kind}
}

// Name returns the node's name.
func (b *nodeBase) Name() string {
	return b.name
}

// Kind returns the node's kind.
func (b *nodeBase) Kind() NodeKind {
	return b.kind
}

// Path returns the node's slash-joined path. An unattached root's path is
// its own name.
func (b *nodeBase) Path() string {
	if b.path == "" {
		return b.name
	}
	return b.path
}

func (b *nodeBase) setPath(parent string) {
	if parent == "" {
		b.path = b.name
		return
	}
	b.path = parent + "/" + b.name
}

// Enter binds the node's messenger. Implementations that override Enter
// call this first.
func (b *nodeBase) Enter(ec *ExecutionContext) {
	b.msg = ec.messenger(b.Path(), b.kind)
}

// Exit releases the messenger.
func (b *nodeBase) Exit(ec *ExecutionContext) {
	b.msg = nil
}

// Reset is a no-op by default.
func (b *nodeBase) Reset() {}

// Update is a no-op by default.
func (b *nodeBase) Update() {}

// CanReuse is false by default; leaf tools opt in.
func (b *nodeBase) CanReuse() bool {
	return false
}

// WannaReuse is the default reuse decision: the node must be cacheable and
// every preceding sibling must have reused.
func (b *nodeBase) WannaReuse(ec *ExecutionContext, allReusedBefore bool) bool {
	return b.CanReuse() && allReusedBefore
}

// Reuse is a no-op by default.
func (b *nodeBase) Reuse(ec *ExecutionContext) error {
	return nil
}

// Starting reports the node as started.
func (b *nodeBase) Starting(ec *ExecutionContext) {
	if b.msg != nil {
		b.msg.Started()
	}
}

// Finished reports the node as finished.
func (b *nodeBase) Finished(ec *ExecutionContext) error {
	if b.msg != nil {
		b.msg.Finished()
	}
	return nil
}

func (b *nodeBase) children() []ToolNode { return nil }
func (b *nodeBase) seedReuse(v bool)     {}
func (b *nodeBase) finalReuse() bool     { return false }

// validateName rejects names that would corrupt path addressing.
func validateName(name string) error {
	if name == "" {
		return configErrorf("node name must not be empty")
	}
	if strings.ContainsAny(name, "/\\") {
		return configErrorf("node name %q must not contain path separators", name)
	}
	return nil
}

// Walk visits n and every node below it, depth first.
func Walk(n ToolNode, fn func(ToolNode)) {
	fn(n)
	for _, c := range n.children() {
		Walk(c, fn)
	}
}

// runNode drives one node through the standard lifecycle: enter, reuse
// decision, execute, finish, exit. It returns whether the node counts as
// reused for chain-wide reuse propagation.
//
// Errors from the body are annotated with the failing node's path exactly
// once; an error that already carries an annotation propagates unchanged.
func runNode(ctx context.Context, ec *ExecutionContext, n ToolNode, allReusedBefore bool) (bool, error) {
	ec.push(n)
	n.Enter(ec)
	defer func() {
		n.Exit(ec)
		ec.pop()
	}()

	if n.WannaReuse(ec, allReusedBefore) {
		if err := n.Reuse(ec); err != nil {
			return false, annotate(err, n.Path(), n.Kind())
		}
		return true, nil
	}

	// Reload-only mode replays cached pipelines; a cacheable node that
	// cannot reuse means the cache is incomplete, which is fatal.
	if n.CanReuse() && ec.Settings.ReloadOnly {
		return false, &ReloadOnlyError{Path: n.Path(), Kind: n.Kind()}
	}

	n.seedReuse(allReusedBefore)
	n.Starting(ec)

	if err := n.Execute(ctx, ec); err != nil {
		ec.messenger(n.Path(), n.Kind()).Failed(err)
		return false, annotate(err, n.Path(), n.Kind())
	}
	if err := n.Finished(ec); err != nil {
		return false, annotate(err, n.Path(), n.Kind())
	}
	return n.finalReuse(), nil
}
