package operation

import (
	"fmt"

	"github.com/kbukum/rowflow/row"
)

// Chain is an immutable, indexed sequence of operations owned by a process.
// Control flow is index based; neighbours are kept for diagnostics only.
type Chain struct {
	owner string
	ops   []Operation
}

// NewChain builds a chain owned by owner. Operations implementing Indexable
// are told their index.
func NewChain(owner string, ops ...Operation) *Chain {
	c := &Chain{owner: owner, ops: append([]Operation(nil), ops...)}
	for i, op := range c.ops {
		if ix, ok := op.(Indexable); ok {
			ix.SetIndex(i)
		}
	}
	return c
}

// Owner returns the name of the process owning the chain.
func (c *Chain) Owner() string { return c.owner }

// Len returns the number of top-level operations.
func (c *Chain) Len() int { return len(c.ops) }

// At returns the operation at index i, or nil when out of range.
func (c *Chain) At(i int) Operation {
	if i < 0 || i >= len(c.ops) {
		return nil
	}
	return c.ops[i]
}

// Ops returns a copy of the top-level operations.
func (c *Chain) Ops() []Operation { return append([]Operation(nil), c.ops...) }

// Prev returns the operation before index i, or nil.
func (c *Chain) Prev(i int) Operation { return c.At(i - 1) }

// Next returns the operation after index i, or nil.
func (c *Chain) Next(i int) Operation { return c.At(i + 1) }

// NextOp returns the operation r should run next and its index. It returns
// (-1, nil) when r is terminal or has passed the last operation.
func (c *Chain) NextOp(r *row.Row) (int, Operation) {
	if !r.IsNormal() {
		return -1, nil
	}
	next := r.Current() + 1
	if next >= len(c.ops) {
		return -1, nil
	}
	return next, c.ops[next]
}

// Describe renders the step at index i with its neighbours, e.g.
// "orders[1] trim (prev=read, next=insert)".
func (c *Chain) Describe(i int) string {
	op := c.At(i)
	if op == nil {
		return fmt.Sprintf("%s[%d] <none>", c.owner, i)
	}
	return fmt.Sprintf("%s[%d] %s (prev=%s, next=%s)", c.owner, i, op.Name(), nameOf(c.Prev(i)), nameOf(c.Next(i)))
}

// Batchers returns every operation in the tree implementing Batcher.
func (c *Chain) Batchers() []Batcher {
	var out []Batcher
	_ = Walk(c.ops, func(op Operation, _ int) error {
		if b, ok := op.(Batcher); ok {
			out = append(out, b)
		}
		return nil
	})
	return out
}

func nameOf(op Operation) string {
	if op == nil {
		return "-"
	}
	return op.Name()
}
