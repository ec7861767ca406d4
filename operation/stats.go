package operation

import (
	"fmt"
	"maps"
	"sync"
)

// Stats is a set of named counters safe for concurrent use.
type Stats struct {
	mu sync.Mutex
	m  map[string]int64
}

// Add increments counter name by n.
func (s *Stats) Add(name string, n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = make(map[string]int64)
	}
	s.m[name] += n
}

// Inc increments counter name by one.
func (s *Stats) Inc(name string) { s.Add(name, 1) }

// Get returns the value of counter name.
func (s *Stats) Get(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[name]
}

// Counters returns a snapshot of every counter.
func (s *Stats) Counters() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.m)
}

// Reset clears every counter.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.m)
}

// Counters collects the counters of every Counted operation in the tree,
// keyed by operation name. Repeated names get a "#n" suffix.
func Counters(ops []Operation) map[string]map[string]int64 {
	out := make(map[string]map[string]int64)
	seen := make(map[string]int)
	_ = Walk(ops, func(op Operation, _ int) error {
		c, ok := op.(Counted)
		if !ok {
			return nil
		}
		key := op.Name()
		seen[key]++
		if n := seen[key]; n > 1 {
			key = fmt.Sprintf("%s#%d", key, n)
		}
		out[key] = c.Counters()
		return nil
	})
	return out
}
