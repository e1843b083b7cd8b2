package toolflow

// VanillaChain is a ToolChain that isolates shared mutable state for its
// duration: Enter takes a deep snapshot of ExecutionContext.Shared, and Exit
// restores it verbatim on every exit path, success or failure. The same
// chain can therefore run repeatedly with different systematic-variation
// parameters without one run's mutations leaking into the next.
//
// The result registry and the entered-node stack live on the
// ExecutionContext itself and are deliberately outside the snapshot, so
// path and result lookup keep working across the boundary.
type VanillaChain struct {
	ToolChain

	// PrepareForSystematic runs after Starting, before the children.
	PrepareForSystematic func(ec *ExecutionContext)

	// FinishWithSystematic runs on Finished, before the chain reports done.
	FinishWithSystematic func(ec *ExecutionContext)

	snapshot *SharedState
}

// NewVanillaChain creates a state-isolating chain with the given children.
func NewVanillaChain(name string, tools ...ToolNode) (*VanillaChain, error) {
	inner, err := NewToolChain(name, tools...)
	if err != nil {
		return nil, err
	}
	c := &VanillaChain{ToolChain: *inner}
	c.kind = KindVanilla
	return c, nil
}

// Enter snapshots the shared state before anything inside can mutate it.
func (c *VanillaChain) Enter(ec *ExecutionContext) {
	c.ToolChain.Enter(ec)
	c.snapshot = ec.Shared.Clone()
}

// Exit restores the pre-entry shared state. Runs on every exit path.
func (c *VanillaChain) Exit(ec *ExecutionContext) {
	if c.snapshot != nil {
		ec.Shared.Restore(c.snapshot)
		c.snapshot = nil
	}
	c.ToolChain.Exit(ec)
}

// Starting invokes the systematic-preparation hook and resets all children
// so they can run again under the new variation.
func (c *VanillaChain) Starting(ec *ExecutionContext) {
	c.ToolChain.Starting(ec)
	if c.PrepareForSystematic != nil {
		c.PrepareForSystematic(ec)
	}
	c.msg.Info("resetting tools for isolated run")
	c.Reset()
}

// Finished invokes the systematic-completion hook.
func (c *VanillaChain) Finished(ec *ExecutionContext) error {
	if c.FinishWithSystematic != nil {
		c.FinishWithSystematic(ec)
	}
	return c.ToolChain.Finished(ec)
}

// Compile-time interface check.
var _ ToolNode = (*VanillaChain)(nil)
