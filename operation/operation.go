package operation

import (
	"context"

	"github.com/kbukum/rowflow/row"
)

// Operation is a single step a row passes through.
type Operation interface {
	// Name identifies the operation in logs, errors and counters.
	Name() string
	// Apply processes one row. It may mutate the row's values or change its
	// state through the host found in ctx.
	Apply(ctx context.Context, r *row.Row) error
}

// Preparer is implemented by operations that need setup before a run.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// Shutdowner is implemented by operations that release resources after a run.
// Shutdown runs on every exit path for operations that prepared successfully.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Composite is implemented by operations holding child operations.
type Composite interface {
	Children() []Operation
}

// Batcher is implemented by deferred operations that hold rows until a batch
// is complete.
type Batcher interface {
	BatchSize() int
}

// Counted is implemented by operations exposing named counters.
type Counted interface {
	Counters() map[string]int64
}

// Indexable is implemented by operations that want to know their position
// in the chain that owns them.
type Indexable interface {
	SetIndex(index int)
}

// Predicate decides whether a row matches.
type Predicate func(r *row.Row) bool

// Walk visits ops depth-first in tree order, descending into composites.
// It stops at the first error returned by fn.
func Walk(ops []Operation, fn func(op Operation, depth int) error) error {
	return walk(ops, 0, fn)
}

func walk(ops []Operation, depth int, fn func(Operation, int) error) error {
	for _, op := range ops {
		if err := fn(op, depth); err != nil {
			return err
		}
		if c, ok := op.(Composite); ok {
			if err := walk(c.Children(), depth+1, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
