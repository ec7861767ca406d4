package source

import (
	"context"
	"maps"

	"github.com/kbukum/rowflow/engine"
	"github.com/kbukum/rowflow/pipeline"
	"github.com/kbukum/rowflow/row"
)

// Slice is a source over a fixed set of values. Every run gets fresh rows.
type Slice struct {
	name   string
	values []map[string]any
}

var _ engine.Source = (*Slice)(nil)

// NewSlice creates a source emitting one row per element of values.
func NewSlice(name string, values ...map[string]any) *Slice {
	return &Slice{name: name, values: values}
}

func (s *Slice) Name() string { return s.name }

// Len returns the number of rows a run emits.
func (s *Slice) Len() int { return len(s.values) }

func (s *Slice) Rows(_ context.Context) pipeline.Iterator[*row.Row] {
	return &sliceIter{values: s.values}
}

type sliceIter struct {
	values []map[string]any
	pos    int
}

func (it *sliceIter) Next(ctx context.Context) (*row.Row, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if it.pos >= len(it.values) {
		return nil, false, nil
	}
	v := it.values[it.pos]
	it.pos++
	return row.New(maps.Clone(v)), true, nil
}

func (it *sliceIter) Close() error {
	it.pos = len(it.values)
	return nil
}
