package operation

import (
	"context"

	"github.com/kbukum/rowflow/row"
)

// Func adapts a function into an Operation.
type Func struct {
	label string
	fn    func(ctx context.Context, r *row.Row) error
	stats Stats
}

// NewFunc creates an operation applying fn to every row.
func NewFunc(name string, fn func(ctx context.Context, r *row.Row) error) *Func {
	return &Func{label: name, fn: fn}
}

func (f *Func) Name() string { return f.label }

func (f *Func) Apply(ctx context.Context, r *row.Row) error {
	if err := f.fn(ctx, r); err != nil {
		f.stats.Inc("errors")
		return err
	}
	f.stats.Inc("applied")
	return nil
}

func (f *Func) Counters() map[string]int64 { return f.stats.Counters() }

// Filter removes rows that do not satisfy Keep.
type Filter struct {
	label string
	keep  Predicate
	stats Stats
}

// NewFilter creates an operation removing every row for which keep is false.
func NewFilter(name string, keep Predicate) *Filter {
	return &Filter{label: name, keep: keep}
}

func (f *Filter) Name() string { return f.label }

func (f *Filter) Apply(ctx context.Context, r *row.Row) error {
	if f.keep(r) {
		f.stats.Inc("kept")
		return nil
	}
	f.stats.Inc("removed")
	removeRow(ctx, r)
	return nil
}

func (f *Filter) Counters() map[string]int64 { return f.stats.Counters() }

// Tap observes rows without changing them.
type Tap struct {
	label string
	fn    func(ctx context.Context, r *row.Row)
}

// NewTap creates an operation calling fn for every row.
func NewTap(name string, fn func(ctx context.Context, r *row.Row)) *Tap {
	return &Tap{label: name, fn: fn}
}

func (t *Tap) Name() string { return t.label }

func (t *Tap) Apply(ctx context.Context, r *row.Row) error {
	t.fn(ctx, r)
	return nil
}
