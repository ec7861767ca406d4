package source

import (
	"context"

	"github.com/kbukum/rowflow/engine"
	"github.com/kbukum/rowflow/pipeline"
	"github.com/kbukum/rowflow/row"
)

type heartbeat struct {
	engine.Source
	every int
}

// Heartbeat wraps src so a heartbeat row follows every n rows. Heartbeat
// rows pass operations untouched and let batching stages check their flush
// timeout. n <= 0 returns src unchanged.
func Heartbeat(src engine.Source, n int) engine.Source {
	if n <= 0 {
		return src
	}
	return &heartbeat{Source: src, every: n}
}

func (h *heartbeat) Rows(ctx context.Context) pipeline.Iterator[*row.Row] {
	return &heartbeatIter{source: h.Source.Rows(ctx), every: h.every}
}

// NoBuffer forwards the wrapped source's buffering preference.
func (h *heartbeat) NoBuffer() bool {
	u, ok := h.Source.(engine.Unbuffered)
	return ok && u.NoBuffer()
}

type heartbeatIter struct {
	source pipeline.Iterator[*row.Row]
	every  int
	seen   int
}

func (it *heartbeatIter) Next(ctx context.Context) (*row.Row, bool, error) {
	if it.seen == it.every {
		it.seen = 0
		return row.NewHeartbeat(), true, nil
	}
	r, ok, err := it.source.Next(ctx)
	if ok {
		it.seen++
	}
	return r, ok, err
}

func (it *heartbeatIter) Close() error { return it.source.Close() }
