package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/rowflow/row"
)

// Recorder is an operation that records every (row, name) it applies to.
type Recorder struct {
	Label string
	// Delay is slept before each Apply.
	Delay time.Duration

	mu   sync.Mutex
	seen []*row.Row
}

// NewRecorder creates a recorder named name.
func NewRecorder(name string) *Recorder { return &Recorder{Label: name} }

func (r *Recorder) Name() string { return r.Label }

func (r *Recorder) Apply(ctx context.Context, rw *row.Row) error {
	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, rw)
	return nil
}

// Seen returns the rows applied so far.
func (r *Recorder) Seen() []*row.Row {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*row.Row(nil), r.seen...)
}

// Count returns how many times Apply ran for each row id.
func (r *Recorder) Count() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.seen))
	for _, rw := range r.seen {
		out[rw.ID]++
	}
	return out
}

// FailOn is an operation failing for rows matching When.
type FailOn struct {
	Label string
	When  func(r *row.Row) bool
	Panic bool
}

func (f *FailOn) Name() string { return f.Label }

func (f *FailOn) Apply(_ context.Context, r *row.Row) error {
	if !f.When(r) {
		return nil
	}
	if f.Panic {
		panic(fmt.Sprintf("%s exploded on row %d", f.Label, r.Seq))
	}
	return fmt.Errorf("%s failed on row %d", f.Label, r.Seq)
}

// Lifecycle is an operation counting Prepare and Shutdown calls.
type Lifecycle struct {
	Label      string
	PrepareErr error

	mu        sync.Mutex
	prepares  int
	shutdowns int
}

func (l *Lifecycle) Name() string { return l.Label }

func (l *Lifecycle) Apply(context.Context, *row.Row) error { return nil }

func (l *Lifecycle) Prepare(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prepares++
	return l.PrepareErr
}

func (l *Lifecycle) Shutdown(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shutdowns++
	return nil
}

// Calls returns the number of Prepare and Shutdown calls.
func (l *Lifecycle) Calls() (prepares, shutdowns int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.prepares, l.shutdowns
}
