package toolflow

import (
	"context"
	"fmt"
)

// ToolChain is an ordered composite of ToolNodes, executed strictly
// left-to-right. A chain carries a chain-scoped reuse flag: it stays true
// only while every child actually reuses, because later children may depend
// on earlier side effects. Once any child executes freshly, the flag is
// false for the rest of the run.
type ToolChain struct {
	nodeBase

	defaultReuse bool
	reuse        bool

	childList []ToolNode
	byName    map[string]ToolNode
	lazyDone  bool

	// LazyTools, if set, is evaluated at the start of Execute and its nodes
	// appended to the chain. Useful when children depend on earlier results.
	LazyTools func() []ToolNode
}

// NewToolChain creates a sequential chain and adds the given children.
// Duplicate sibling names and invalid names are build-time configuration
// errors.
func NewToolChain(name string, tools ...ToolNode) (*ToolChain, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	c := &ToolChain{
		nodeBase: newNodeBase(name, KindChain),
		byName:   make(map[string]ToolNode),
	}
	c.setPath("")
	if err := c.AddTools(tools...); err != nil {
		return nil, err
	}
	return c, nil
}

// WithDefaultReuse seeds the chain's reuse flag for runs where the chain is
// the root. Returns the chain for chaining.
func (c *ToolChain) WithDefaultReuse(v bool) *ToolChain {
	c.defaultReuse = v
	c.reuse = v
	return c
}

// Add appends one child, enforcing sibling-name uniqueness.
func (c *ToolChain) Add(n ToolNode) error {
	if n == nil {
		return configErrorf("cannot add nil node to chain %q", c.name)
	}
	if err := validateName(n.Name()); err != nil {
		return err
	}
	if _, exists := c.byName[n.Name()]; exists {
		return configErrorf("a tool named %q is already in chain %q", n.Name(), c.name)
	}
	c.byName[n.Name()] = n
	c.childList = append(c.childList, n)
	n.setPath(c.Path())
	return nil
}

// AddTools appends children in order.
func (c *ToolChain) AddTools(tools ...ToolNode) error {
	for _, t := range tools {
		if err := c.Add(t); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of children.
func (c *ToolChain) Len() int {
	return len(c.childList)
}

// ReuseFlag reports the chain's current reuse flag.
func (c *ToolChain) ReuseFlag() bool {
	return c.reuse
}

// Reset resets every child.
func (c *ToolChain) Reset() {
	for _, n := range c.childList {
		n.Reset()
	}
}

// Execute runs the children strictly in declared order. A child error stops
// the chain; later siblings never run.
func (c *ToolChain) Execute(ctx context.Context, ec *ExecutionContext) error {
	c.materializeLazy(ec)

	for _, n := range c.childList {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRunCanceled, err)
		}
		if err := c.runChild(ctx, ec, n); err != nil {
			return err
		}
	}
	return nil
}

// runChild drives one child through the standard lifecycle and folds its
// reuse outcome into the chain-wide flag.
func (c *ToolChain) runChild(ctx context.Context, ec *ExecutionContext, n ToolNode) error {
	reused, err := runNode(ctx, ec, n, c.reuse)
	if err != nil {
		return err
	}
	c.reuse = c.reuse && reused
	return nil
}

func (c *ToolChain) materializeLazy(ec *ExecutionContext) {
	if c.LazyTools == nil || c.lazyDone {
		return
	}
	c.lazyDone = true
	tools := c.LazyTools()
	if len(tools) == 0 {
		if c.msg != nil {
			c.msg.Warning("lazy tools func returned no tools")
		}
		return
	}
	for _, t := range tools {
		if err := c.Add(t); err != nil {
			if c.msg != nil {
				c.msg.Warning(err.Error())
			}
		}
	}
}

// setPath re-propagates paths through the subtree when the chain itself is
// attached to a parent.
func (c *ToolChain) setPath(parent string) {
	c.nodeBase.setPath(parent)
	for _, n := range c.childList {
		n.setPath(c.Path())
	}
}

func (c *ToolChain) children() []ToolNode { return c.childList }

func (c *ToolChain) childAt(i int) (ToolNode, bool) {
	if i < 0 || i >= len(c.childList) {
		return nil, false
	}
	return c.childList[i], true
}

func (c *ToolChain) childByName(name string) (ToolNode, bool) {
	n, ok := c.byName[name]
	return n, ok
}

func (c *ToolChain) seedReuse(v bool) { c.reuse = v }
func (c *ToolChain) finalReuse() bool { return c.reuse }

// chainNode is the composite view shared by all chain variants.
type chainNode interface {
	ToolNode
	childAt(i int) (ToolNode, bool)
	childByName(name string) (ToolNode, bool)
	runChild(ctx context.Context, ec *ExecutionContext, n ToolNode) error
	materializeLazy(ec *ExecutionContext)
}

// Compile-time interface checks.
var (
	_ ToolNode  = (*ToolChain)(nil)
	_ chainNode = (*ToolChain)(nil)
)
