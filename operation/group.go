package operation

import (
	"context"
	"fmt"

	"github.com/kbukum/rowflow/errors"
	"github.com/kbukum/rowflow/row"
)

// Group runs the Then chain when If matches and the Else chain otherwise.
// Without If, Then always runs. Deferred operations cannot be children.
type Group struct {
	Label string
	If    Predicate
	Then  []Operation
	Else  []Operation

	stats Stats
}

func (g *Group) Name() string {
	if g.Label == "" {
		return "group"
	}
	return g.Label
}

// Children returns the Then chain followed by the Else chain.
func (g *Group) Children() []Operation {
	out := make([]Operation, 0, len(g.Then)+len(g.Else))
	out = append(out, g.Then...)
	return append(out, g.Else...)
}

// Validate checks the group and every nested group.
func (g *Group) Validate() error {
	if len(g.Then) == 0 {
		return errors.Validation(fmt.Sprintf("group %s: then chain is empty", g.Name()))
	}
	if len(g.Else) > 0 && g.If == nil {
		return errors.Validation(fmt.Sprintf("group %s: else chain requires a predicate", g.Name()))
	}
	for _, child := range g.Children() {
		if _, ok := child.(Batcher); ok {
			return errors.Validation(fmt.Sprintf("group %s: deferred operation %s cannot be a group child", g.Name(), child.Name()))
		}
		if nested, ok := child.(interface{ Validate() error }); ok {
			if err := nested.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Prepare validates the group. Children are prepared by the lifecycle walker.
func (g *Group) Prepare(_ context.Context) error {
	return g.Validate()
}

func (g *Group) Apply(ctx context.Context, r *row.Row) error {
	branch := g.Then
	if g.If != nil && !g.If(r) {
		branch = g.Else
		g.stats.Inc("else")
	} else {
		g.stats.Inc("then")
	}
	for i, op := range branch {
		if !r.IsNormal() {
			return nil
		}
		if err := op.Apply(ctx, r); err != nil {
			return errors.OperationFailed(op.Name(), i, err)
		}
	}
	return nil
}

func (g *Group) Counters() map[string]int64 { return g.stats.Counters() }
