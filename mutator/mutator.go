package mutator

import (
	"context"

	"github.com/kbukum/rowflow/errors"
	"github.com/kbukum/rowflow/operation"
	"github.com/kbukum/rowflow/pipeline"
	"github.com/kbukum/rowflow/row"
)

// Mutator is one stage of a single-threaded chain. It wraps the lazy stream
// of rows coming from the previous stage; all work happens on the goroutine
// pulling from the result.
type Mutator interface {
	Name() string
	Mutate(in *pipeline.Pipeline[*row.Row]) *pipeline.Pipeline[*row.Row]
}

// Func is a per-row mutator. Heartbeat rows pass through untouched and rows
// that end up Removed are dropped from the stream.
type Func struct {
	label string
	fn    func(ctx context.Context, r *row.Row) error
	index int
	stats operation.Stats
}

// NewFunc creates a mutator applying fn to every data row.
func NewFunc(name string, fn func(ctx context.Context, r *row.Row) error) *Func {
	return &Func{label: name, fn: fn, index: -1}
}

// NewFilter creates a mutator dropping rows for which keep is false.
func NewFilter(name string, keep operation.Predicate) *Func {
	return NewFunc(name, func(_ context.Context, r *row.Row) error {
		if !keep(r) {
			r.Remove()
		}
		return nil
	})
}

// FromOperation runs op as a per-row mutator. Deferred operations cannot be
// adapted; they need a worker pool to resume parked rows.
func FromOperation(op operation.Operation) *Func {
	return NewFunc(op.Name(), func(ctx context.Context, r *row.Row) error {
		err := op.Apply(ctx, r)
		if errors.Is(err, operation.ErrParked) {
			return errors.Validation("operation " + op.Name() + " parks rows and cannot run in a mutator chain")
		}
		return err
	})
}

func (f *Func) Name() string { return f.label }

func (f *Func) SetIndex(index int) { f.index = index }

func (f *Func) Counters() map[string]int64 { return f.stats.Counters() }

func (f *Func) Mutate(in *pipeline.Pipeline[*row.Row]) *pipeline.Pipeline[*row.Row] {
	return pipeline.FromFunc(func(ctx context.Context) pipeline.Iterator[*row.Row] {
		return &funcIter{f: f, source: in.Iter(ctx)}
	})
}

type funcIter struct {
	f      *Func
	source pipeline.Iterator[*row.Row]
}

func (it *funcIter) Next(ctx context.Context) (*row.Row, bool, error) {
	for {
		r, ok, err := it.source.Next(ctx)
		if err != nil || !ok {
			return nil, false, err
		}
		if r.IsHeartbeat() {
			return r, true, nil
		}
		if !r.IsNormal() {
			continue
		}
		if err := it.f.fn(ctx, r); err != nil {
			it.f.stats.Inc("errors")
			return nil, false, errors.OperationFailed(it.f.label, it.f.index, err).
				WithDetails(map[string]any{"row_seq": r.Seq, "row_id": r.ID})
		}
		if r.State() == row.Removed {
			it.f.stats.Inc("removed")
			continue
		}
		it.f.stats.Inc("applied")
		return r, true, nil
	}
}

func (it *funcIter) Close() error { return it.source.Close() }
