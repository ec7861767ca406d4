package rowqueue

import (
	"context"
	"iter"
	"sync"

	"github.com/kbukum/rowflow/row"
)

// Channel is a FIFO backed by a buffered channel. Rows that do not fit the
// buffer spill into an overflow list and move into the channel as consumers
// free slots, so enqueueing never blocks. Every enqueue wakes a consumer by
// itself; Signal is a no-op.
type Channel struct {
	ch   chan *row.Row
	done chan struct{}
	once sync.Once

	// mu serializes every send on ch. Overflow rows are always older than
	// any row still to be added.
	mu       sync.Mutex
	overflow []*row.Row
}

// NewChannel creates a channel queue buffering up to capacity rows.
func NewChannel(capacity int) *Channel {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Channel{
		ch:   make(chan *row.Row, capacity),
		done: make(chan struct{}),
	}
}

func (q *Channel) Add(r *row.Row) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.push(r)
}

func (q *Channel) AddMany(rows []*row.Row) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, r := range rows {
		q.push(r)
	}
}

// push sends r or spills it. Caller holds mu.
func (q *Channel) push(r *row.Row) {
	if len(q.overflow) == 0 {
		select {
		case q.ch <- r:
			return
		default:
		}
	}
	q.overflow = append(q.overflow, r)
	q.refill()
}

// refill moves overflow rows into free channel slots. Caller holds mu.
func (q *Channel) refill() {
	n := 0
	for n < len(q.overflow) {
		select {
		case q.ch <- q.overflow[n]:
			q.overflow[n] = nil
			n++
			continue
		default:
		}
		break
	}
	if n == len(q.overflow) {
		q.overflow = nil
		return
	}
	q.overflow = q.overflow[n:]
}

func (q *Channel) Signal() {}

func (q *Channel) Take(ctx context.Context) (*row.Row, bool) {
	select {
	case <-ctx.Done():
		return nil, false
	case <-q.done:
		return nil, false
	default:
	}
	select {
	case r := <-q.ch:
		q.mu.Lock()
		if len(q.overflow) > 0 {
			q.refill()
		}
		q.mu.Unlock()
		return r, true
	case <-ctx.Done():
		return nil, false
	case <-q.done:
		return nil, false
	}
}

func (q *Channel) All(ctx context.Context) iter.Seq[*row.Row] { return seq(ctx, q) }

func (q *Channel) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ch) + len(q.overflow)
}

// Spilled returns the number of rows waiting in the overflow list.
func (q *Channel) Spilled() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.overflow)
}

func (q *Channel) Close() {
	q.once.Do(func() { close(q.done) })
}
