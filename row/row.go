package row

import (
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// State is the lifecycle state of a row.
type State int32

const (
	// Normal rows are still walking their chain.
	Normal State = iota
	// Finished rows completed the chain and will be emitted.
	Finished
	// Removed rows were dropped by an operation and are never emitted.
	Removed
)

func (s State) String() string {
	switch s {
	case Normal:
		return "normal"
	case Finished:
		return "finished"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether no further transition is allowed from s.
func (s State) Terminal() bool { return s == Finished || s == Removed }

// DeferState tracks a row parked by a deferred operation.
type DeferState int32

const (
	DeferNone DeferState = iota
	// DeferWait rows are held by a deferred operation until its batch flushes.
	DeferWait
	// DeferDone rows were flushed and resume at the next operation.
	DeferDone
)

func (s DeferState) String() string {
	switch s {
	case DeferNone:
		return "none"
	case DeferWait:
		return "wait"
	case DeferDone:
		return "done"
	default:
		return fmt.Sprintf("defer(%d)", int32(s))
	}
}

// NoOperation is the current operation index of a row that has not entered its chain.
const NoOperation = -1

// TagHeartbeat marks a row that carries no data and only signals progress.
const TagHeartbeat = "heartbeat"

// Row is one record flowing through a process.
//
// Lifecycle fields are atomics so the driver can observe them while a worker
// owns the row. Values are only mutated by the owning worker.
type Row struct {
	ID  string
	Seq int64
	Tag string

	state      atomic.Int32
	deferState atomic.Int32
	current    atomic.Int64

	mu     sync.RWMutex
	values map[string]any
}

// New creates a Normal row holding values. The map is used as is.
func New(values map[string]any) *Row {
	if values == nil {
		values = make(map[string]any)
	}
	r := &Row{ID: uuid.NewString(), values: values}
	r.current.Store(NoOperation)
	return r
}

// NewHeartbeat creates a row tagged as a heartbeat.
func NewHeartbeat() *Row {
	r := New(nil)
	r.Tag = TagHeartbeat
	return r
}

// IsHeartbeat reports whether the row is a heartbeat marker.
func (r *Row) IsHeartbeat() bool { return r.Tag == TagHeartbeat }

// State returns the lifecycle state.
func (r *Row) State() State { return State(r.state.Load()) }

// IsNormal reports whether the row is still in flight.
func (r *Row) IsNormal() bool { return r.State() == Normal }

// Finish flags the row Finished. It returns false when the row was already
// terminal, so callers can act exactly once on completion.
func (r *Row) Finish() bool {
	return r.state.CompareAndSwap(int32(Normal), int32(Finished))
}

// Remove flags the row Removed. It returns false when the row was already terminal.
func (r *Row) Remove() bool {
	return r.state.CompareAndSwap(int32(Normal), int32(Removed))
}

// DeferState returns the deferral state.
func (r *Row) DeferState() DeferState { return DeferState(r.deferState.Load()) }

// MarkDeferWait parks the row. Only allowed from DeferNone.
func (r *Row) MarkDeferWait() bool {
	return r.deferState.CompareAndSwap(int32(DeferNone), int32(DeferWait))
}

// MarkDeferDone releases a parked row. Only allowed from DeferWait.
func (r *Row) MarkDeferDone() bool {
	return r.deferState.CompareAndSwap(int32(DeferWait), int32(DeferDone))
}

// ResetDefer clears a released row. Only allowed from DeferDone.
func (r *Row) ResetDefer() bool {
	return r.deferState.CompareAndSwap(int32(DeferDone), int32(DeferNone))
}

// Current returns the index of the operation the row is at, or NoOperation.
func (r *Row) Current() int { return int(r.current.Load()) }

// SetCurrent records the index of the operation about to be applied.
func (r *Row) SetCurrent(index int) { r.current.Store(int64(index)) }

// Get returns the value stored under key.
func (r *Row) Get(key string) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.values[key]
}

// Lookup returns the value stored under key and whether it was present.
func (r *Row) Lookup(key string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[key]
	return v, ok
}

// String returns the value under key formatted with %v, or "" when absent.
func (r *Row) String(key string) string {
	v, ok := r.Lookup(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Set stores value under key.
func (r *Row) Set(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = value
}

// Delete removes key from the row.
func (r *Row) Delete(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.values, key)
}

// Values returns a copy of the row's values.
func (r *Row) Values() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.values)
}

// Len returns the number of values.
func (r *Row) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.values)
}

func (r *Row) GoString() string {
	return fmt.Sprintf("row{seq=%d id=%s state=%s defer=%s op=%d}",
		r.Seq, r.ID, r.State(), r.DeferState(), r.Current())
}

// Fresh reports whether the row has not entered a chain yet.
func (r *Row) Fresh() bool {
	return r.IsNormal() && r.DeferState() == DeferNone && r.Current() == NoOperation
}

// Clone returns a fresh Normal row with the same ID, tag and a copy of the
// values. Used to feed the output of one process into another.
func (r *Row) Clone() *Row {
	c := New(r.Values())
	c.ID = r.ID
	c.Tag = r.Tag
	return c
}
