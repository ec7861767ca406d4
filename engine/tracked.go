package engine

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kbukum/rowflow/row"
)

// maxReaders is the weight of the write side of rwLock.
const maxReaders = 1 << 10

// rwLock is a read/write lock whose acquisition can give up. Writers take
// the full weight, readers take one unit. semaphore.Weighted serves waiters
// in order so a waiting writer is not starved by readers.
type rwLock struct {
	sem *semaphore.Weighted
}

func newRWLock() *rwLock {
	return &rwLock{sem: semaphore.NewWeighted(maxReaders)}
}

// Lock blocks until the write lock is held or ctx is done.
func (l *rwLock) Lock(ctx context.Context) error { return l.sem.Acquire(ctx, maxReaders) }

// TryLock waits at most timeout for the write lock.
func (l *rwLock) TryLock(timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return l.sem.Acquire(ctx, maxReaders) == nil
}

func (l *rwLock) Unlock() { l.sem.Release(maxReaders) }

// RLock blocks until a read lock is held or ctx is done.
func (l *rwLock) RLock(ctx context.Context) error { return l.sem.Acquire(ctx, 1) }

func (l *rwLock) RUnlock() { l.sem.Release(1) }

// tracked holds every row of a run from intake until it is emitted.
type tracked struct {
	lock    *rwLock
	rows    []*row.Row
	next    int64
	ordered bool
}

func newTracked(ordered bool) *tracked {
	return &tracked{lock: newRWLock(), ordered: ordered}
}

// add appends rows and stamps their arrival sequence.
func (t *tracked) add(ctx context.Context, rows []*row.Row) error {
	if err := t.lock.Lock(ctx); err != nil {
		return err
	}
	defer t.lock.Unlock()
	for _, r := range rows {
		t.next++
		r.Seq = t.next
	}
	t.rows = append(t.rows, rows...)
	return nil
}

// Len returns the number of tracked rows.
func (t *tracked) Len(ctx context.Context) (int, error) {
	if err := t.lock.RLock(ctx); err != nil {
		return 0, err
	}
	defer t.lock.RUnlock()
	return len(t.rows), nil
}

// wipe drops terminal rows and returns the Finished ones in emission order.
// ok is false when the lock was not acquired within timeout and the pass was
// skipped.
func (t *tracked) wipe(timeout time.Duration) (out []*row.Row, ok bool) {
	if !t.lock.TryLock(timeout) {
		return nil, false
	}
	defer t.lock.Unlock()
	if t.ordered {
		return t.wipePrefix(), true
	}
	return t.wipeAll(), true
}

// wipePrefix releases the leading run of terminal rows up to the first
// Normal row.
func (t *tracked) wipePrefix() []*row.Row {
	n := 0
	for n < len(t.rows) && t.rows[n].State().Terminal() {
		n++
	}
	if n == 0 {
		return nil
	}
	out := make([]*row.Row, 0, n)
	for _, r := range t.rows[:n] {
		if r.State() == row.Finished {
			out = append(out, r)
		}
	}
	clear(t.rows[:n])
	t.rows = t.rows[n:]
	return out
}

// wipeAll keeps Normal rows in place and releases every terminal row.
func (t *tracked) wipeAll() []*row.Row {
	var out []*row.Row
	keep := 0
	for _, r := range t.rows {
		switch r.State() {
		case row.Normal:
			t.rows[keep] = r
			keep++
		case row.Finished:
			out = append(out, r)
		}
	}
	clear(t.rows[keep:])
	t.rows = t.rows[:keep]
	return out
}

// drain empties the list and returns every Finished row in arrival order.
// Rows still Normal are dropped.
func (t *tracked) drain(ctx context.Context) []*row.Row {
	if err := t.lock.Lock(ctx); err != nil {
		return nil
	}
	defer t.lock.Unlock()
	var out []*row.Row
	for _, r := range t.rows {
		if r.State() == row.Finished {
			out = append(out, r)
		}
	}
	clear(t.rows)
	t.rows = nil
	return out
}
