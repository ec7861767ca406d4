package rowqueue

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/kbukum/rowflow/errors"
	"github.com/kbukum/rowflow/row"
)

// Kind names a queue implementation.
type Kind string

const (
	// KindList is an unbounded mutex-guarded FIFO with coalesced wakeups.
	KindList Kind = "list"
	// KindChannel is a buffered-channel FIFO that spills into an overflow
	// list when the buffer is full.
	KindChannel Kind = "channel"
)

// Queue is the FIFO handoff between a process and its workers.
type Queue interface {
	// Add enqueues r and wakes one consumer.
	Add(r *row.Row)
	// AddMany enqueues rows without waking anyone. Follow it with Signal.
	AddMany(rows []*row.Row)
	// Signal wakes a consumer if rows are waiting.
	Signal()
	// Take blocks until a row is available, ctx is done or the queue is
	// closed. The boolean is false when no row was taken.
	Take(ctx context.Context) (*row.Row, bool)
	// All ranges over rows until ctx is done or the queue is closed.
	All(ctx context.Context) iter.Seq[*row.Row]
	// Len returns the number of waiting rows.
	Len() int
	// Close releases blocked consumers. Further Takes return false.
	Close()
}

// Options configures a queue.
type Options struct {
	// Capacity sizes the buffer of channel queues. Zero uses DefaultCapacity.
	Capacity int `yaml:"capacity" mapstructure:"capacity"`
}

// DefaultCapacity is the buffer size of channel queues.
const DefaultCapacity = 1 << 16

// Factory builds a queue.
type Factory func(opts Options) Queue

var (
	registryMu sync.RWMutex
	registry   = map[Kind]Factory{
		KindList:    func(Options) Queue { return NewList() },
		KindChannel: func(o Options) Queue { return NewChannel(o.Capacity) },
	}
)

// Register adds or replaces the factory for kind.
func Register(kind Kind, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = f
}

// Registered reports whether kind has a factory.
func Registered(kind Kind) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[kind]
	return ok
}

// Kinds returns the registered kinds in sorted order.
func Kinds() []Kind {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Kind, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// New builds a queue of the given kind.
func New(kind Kind, opts Options) (Queue, error) {
	registryMu.RLock()
	f, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.InvalidConfig("row_queue_kind", fmt.Sprintf("unknown queue kind %q", kind))
	}
	return f(opts), nil
}

// seq adapts Take into a range-over-func sequence.
func seq(ctx context.Context, q Queue) iter.Seq[*row.Row] {
	return func(yield func(*row.Row) bool) {
		for {
			r, ok := q.Take(ctx)
			if !ok || !yield(r) {
				return
			}
		}
	}
}
