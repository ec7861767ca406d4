package mutator

import (
	"context"
	"time"

	"github.com/kbukum/rowflow/errors"
	"github.com/kbukum/rowflow/operation"
	"github.com/kbukum/rowflow/pipeline"
	"github.com/kbukum/rowflow/row"
)

// KeyFunc returns the batch key of a row.
type KeyFunc func(r *row.Row) string

// Batched groups rows into batches handed to a process function, then emits
// the rows of each batch in order.
//
// A batch flushes when it holds BatchSize rows, or when no row joined it for
// ForceFlush. Both rules are checked when a row is pulled; there are no
// timers. A row pulled after such an idle gap is added to the next batch. Heartbeat rows give the time rule a chance to fire and are
// emitted after the batch they triggered.
//
// With a key function the size rule counts distinct keys: a row whose key
// is already in the batch always joins it, and the batch flushes before the
// first row of a key that would exceed BatchSize. The size rule never splits
// rows of one key across batches.
type Batched struct {
	label   string
	cfg     operation.DeferredConfig
	key     KeyFunc
	process operation.ProcessFunc
	index   int
	stats   operation.Stats
	now     func() time.Time
}

// NewBatched creates a batched mutator. Zero config values take defaults.
func NewBatched(name string, cfg operation.DeferredConfig, process operation.ProcessFunc) *Batched {
	cfg.ApplyDefaults()
	return &Batched{label: name, cfg: cfg, process: process, index: -1, now: time.Now}
}

// WithKey switches the size rule to count distinct keys.
func (b *Batched) WithKey(key KeyFunc) *Batched {
	b.key = key
	return b
}

func (b *Batched) Name() string { return b.label }

func (b *Batched) SetIndex(index int) { b.index = index }

func (b *Batched) BatchSize() int { return b.cfg.BatchSize }

func (b *Batched) Counters() map[string]int64 { return b.stats.Counters() }

func (b *Batched) Mutate(in *pipeline.Pipeline[*row.Row]) *pipeline.Pipeline[*row.Row] {
	return pipeline.FromFunc(func(ctx context.Context) pipeline.Iterator[*row.Row] {
		return &batchedIter{b: b, source: in.Iter(ctx)}
	})
}

type batchedIter struct {
	b      *Batched
	source pipeline.Iterator[*row.Row]

	pending []*row.Row
	keys    map[string]struct{}
	lastAdd time.Time

	out  []*row.Row
	done bool
	err  error
}

func (it *batchedIter) Next(ctx context.Context) (*row.Row, bool, error) {
	for {
		if len(it.out) > 0 {
			r := it.out[0]
			it.out[0] = nil
			it.out = it.out[1:]
			return r, true, nil
		}
		if it.done {
			err := it.err
			it.err = nil
			return nil, false, err
		}

		r, ok, err := it.source.Next(ctx)
		if err != nil || !ok {
			it.done = true
			it.err = err
			if ferr := it.flush(ctx, "final"); ferr != nil {
				it.err = ferr
			}
			continue
		}

		if r.IsHeartbeat() {
			if it.expired() {
				if err := it.flush(ctx, "time"); err != nil {
					return it.fail(err)
				}
			}
			it.out = append(it.out, r)
			continue
		}
		if !r.IsNormal() {
			continue
		}
		if it.expired() {
			if err := it.flush(ctx, "time"); err != nil {
				return it.fail(err)
			}
		}

		if it.b.key != nil {
			k := it.b.key(r)
			if _, seen := it.keys[k]; !seen && len(it.keys) >= it.b.cfg.BatchSize {
				if err := it.flush(ctx, "size"); err != nil {
					return it.fail(err)
				}
			}
			it.add(r)
			if it.keys == nil {
				it.keys = make(map[string]struct{})
			}
			it.keys[k] = struct{}{}
		} else {
			it.add(r)
			if len(it.pending) >= it.b.cfg.BatchSize {
				if err := it.flush(ctx, "size"); err != nil {
					return it.fail(err)
				}
			}
		}
	}
}

func (it *batchedIter) add(r *row.Row) {
	it.pending = append(it.pending, r)
	it.lastAdd = it.b.now()
}

func (it *batchedIter) expired() bool {
	return len(it.pending) > 0 && it.b.now().Sub(it.lastAdd) >= it.b.cfg.ForceFlush
}

// flush processes the pending batch and moves its surviving rows to out.
func (it *batchedIter) flush(ctx context.Context, trigger string) error {
	if len(it.pending) == 0 {
		return nil
	}
	batch := it.pending
	it.pending = nil
	clear(it.keys)

	it.b.stats.Inc("flushes")
	it.b.stats.Inc("flushes_" + trigger)
	it.b.stats.Add("flushed", int64(len(batch)))
	if err := it.b.process(ctx, batch); err != nil {
		it.b.stats.Inc("errors")
		return errors.OperationFailed(it.b.label, it.b.index, err).WithDetail("batch_size", len(batch))
	}
	for _, r := range batch {
		if r.State() == row.Removed {
			it.b.stats.Inc("removed")
			continue
		}
		it.out = append(it.out, r)
	}
	return nil
}

func (it *batchedIter) fail(err error) (*row.Row, bool, error) {
	it.done = true
	it.pending = nil
	it.out = nil
	return nil, false, err
}

func (it *batchedIter) Close() error { return it.source.Close() }
