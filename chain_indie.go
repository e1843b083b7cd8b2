package toolflow

// IndieChain is a ToolChain that forces reuse while entered, restoring the
// previous value on finish. It is used when a sub-tree manages its own
// caching independent of the ancestor's reuse state.
type IndieChain struct {
	ToolChain

	outerReuse bool
}

// NewIndieChain creates an always-reusing chain with the given children.
func NewIndieChain(name string, tools ...ToolNode) (*IndieChain, error) {
	inner, err := NewToolChain(name, tools...)
	if err != nil {
		return nil, err
	}
	c := &IndieChain{ToolChain: *inner}
	c.kind = KindIndie
	return c, nil
}

// Starting saves the seeded reuse flag and forces reuse on.
func (c *IndieChain) Starting(ec *ExecutionContext) {
	c.ToolChain.Starting(ec)
	c.outerReuse = c.reuse
	c.reuse = true
}

// Finished restores the reuse flag that was in effect before Starting, so
// the sub-tree's independent caching never disturbs the ancestor chain.
func (c *IndieChain) Finished(ec *ExecutionContext) error {
	c.reuse = c.outerReuse
	return c.ToolChain.Finished(ec)
}

// Compile-time interface check.
var _ ToolNode = (*IndieChain)(nil)
