package errors

import (
	"sync"
	"sync/atomic"
)

// Sink collects errors raised on any goroutine, preserving the order in
// which they were recorded. The driver polls Len at every loop boundary and
// treats a non-empty sink as a request for orderly shutdown.
type Sink struct {
	mu   sync.Mutex
	errs []error
	n    atomic.Int64
}

// Add records err. Nil errors are ignored.
func (s *Sink) Add(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.n.Store(int64(len(s.errs)))
	s.mu.Unlock()
}

// Len returns the number of recorded errors without taking the lock.
func (s *Sink) Len() int { return int(s.n.Load()) }

// Errors returns a copy of the recorded errors in recording order.
func (s *Sink) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]error, len(s.errs))
	copy(out, s.errs)
	return out
}

// Err joins every recorded error, or returns nil when the sink is empty.
func (s *Sink) Err() error {
	if s.Len() == 0 {
		return nil
	}
	return Join(s.Errors()...)
}
