package mutator

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/kbukum/rowflow/logger"
	"github.com/kbukum/rowflow/operation"
	"github.com/kbukum/rowflow/pipeline"
	"github.com/kbukum/rowflow/row"
)

// Chain runs mutators one after the other over a lazy stream of rows.
type Chain struct {
	name     string
	mutators []Mutator
	log      *logger.Logger
}

// NewChain creates a chain and assigns each mutator its index.
func NewChain(name string, mutators ...Mutator) *Chain {
	for i, m := range mutators {
		if ix, ok := m.(operation.Indexable); ok {
			ix.SetIndex(i)
		}
	}
	return &Chain{name: name, mutators: mutators, log: logger.Get("mutator")}
}

// WithLogger replaces the chain logger.
func (c *Chain) WithLogger(l *logger.Logger) *Chain {
	c.log = logger.OrGet(l, "mutator")
	return c
}

func (c *Chain) Name() string { return c.name }

// Apply stacks every mutator on src.
func (c *Chain) Apply(src *pipeline.Pipeline[*row.Row]) *pipeline.Pipeline[*row.Row] {
	p := src
	for _, m := range c.mutators {
		p = m.Mutate(p)
	}
	return p
}

// Run pulls every row of src through the chain and hands it to sink. The
// counters of every mutator are logged when the run ends.
func (c *Chain) Run(ctx context.Context, src *pipeline.Pipeline[*row.Row], sink func(context.Context, *row.Row) error) error {
	start := time.Now()
	log := c.log.WithContext(ctx).WithFields(logger.Fields(logger.FieldProcess, c.name))

	n := 0
	err := pipeline.ForEach(ctx, c.Apply(src), func(ctx context.Context, r *row.Row) error {
		n++
		if sink == nil {
			return nil
		}
		return sink(ctx, r)
	})

	counters := c.Counters()
	for _, name := range slices.Sorted(maps.Keys(counters)) {
		fields := logger.Fields(logger.FieldOperation, name)
		for k, v := range counters[name] {
			fields[k] = v
		}
		log.Info("Mutator counters", fields)
	}

	fields := logger.Fields(logger.FieldCount, n, logger.FieldDuration, time.Since(start).Milliseconds())
	if err != nil {
		fields[logger.FieldError] = err.Error()
		log.Error("Mutator chain failed", fields)
		return err
	}
	log.Info("Mutator chain completed", fields)
	return nil
}

// Counters returns the counters of every mutator exposing them, keyed by
// name. Repeated names get a "#n" suffix.
func (c *Chain) Counters() map[string]map[string]int64 {
	out := make(map[string]map[string]int64)
	seen := make(map[string]int)
	for _, m := range c.mutators {
		cm, ok := m.(operation.Counted)
		if !ok {
			continue
		}
		key := m.Name()
		seen[key]++
		if n := seen[key]; n > 1 {
			key = fmt.Sprintf("%s#%d", key, n)
		}
		out[key] = cm.Counters()
	}
	return out
}
