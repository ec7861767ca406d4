package rowqueue

import (
	"context"
	"iter"
	"sync"

	"github.com/kbukum/rowflow/row"
)

// compactAt is the consumed prefix length after which the backing slice is shifted.
const compactAt = 1024

// List is an unbounded FIFO. Wakeups coalesce into a single pending signal;
// a consumer that finds more rows after taking one passes the signal on.
type List struct {
	mu     sync.Mutex
	items  []*row.Row
	head   int
	closed bool

	notify chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewList creates an empty list queue.
func NewList() *List {
	return &List{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (q *List) Add(r *row.Row) {
	q.mu.Lock()
	q.items = append(q.items, r)
	q.mu.Unlock()
	q.Signal()
}

func (q *List) AddMany(rows []*row.Row) {
	if len(rows) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, rows...)
	q.mu.Unlock()
}

func (q *List) Signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *List) Take(ctx context.Context) (*row.Row, bool) {
	for {
		if r, more, ok := q.pop(); ok {
			if more {
				q.Signal()
			}
			return r, true
		}
		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, false
		case <-q.done:
			return nil, false
		}
	}
}

func (q *List) pop() (r *row.Row, more bool, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || q.head >= len(q.items) {
		return nil, false, false
	}
	r = q.items[q.head]
	q.items[q.head] = nil
	q.head++
	if q.head >= compactAt && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return r, q.head < len(q.items), true
}

func (q *List) All(ctx context.Context) iter.Seq[*row.Row] { return seq(ctx, q) }

func (q *List) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

func (q *List) Close() {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.done)
	})
}
