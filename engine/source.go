package engine

import (
	"context"

	"github.com/kbukum/rowflow/pipeline"
	"github.com/kbukum/rowflow/row"
)

// Source supplies the input rows of a process.
type Source interface {
	Name() string
	Rows(ctx context.Context) pipeline.Iterator[*row.Row]
}

// Unbuffered is implemented by sources whose rows must be enqueued one at a
// time instead of in InputBufferSize chunks, such as cursors holding a
// connection open while rows are in flight.
type Unbuffered interface {
	NoBuffer() bool
}

type pipelineSource struct {
	name string
	p    *pipeline.Pipeline[*row.Row]
}

// FromPipeline adapts a pipeline of rows into a Source.
func FromPipeline(name string, p *pipeline.Pipeline[*row.Row]) Source {
	return &pipelineSource{name: name, p: p}
}

// FromRows returns a Source over a fixed set of rows.
func FromRows(name string, rows ...*row.Row) Source {
	return FromPipeline(name, pipeline.FromSlice(rows))
}

func (s *pipelineSource) Name() string { return s.name }

func (s *pipelineSource) Rows(ctx context.Context) pipeline.Iterator[*row.Row] {
	return s.p.Iter(ctx)
}

func isUnbuffered(src Source) bool {
	u, ok := src.(Unbuffered)
	return ok && u.NoBuffer()
}
