package testutil

import (
	"sync"
	"sync/atomic"

	"github.com/kbukum/rowflow/operation"
	"github.com/kbukum/rowflow/row"
)

// Host is an operation.Host that records requests and forwards resumed rows
// to an optional callback.
type Host struct {
	OnResume func(rows ...*row.Row)

	mu      sync.Mutex
	added   []*row.Row
	removed []*row.Row
	resumed []*row.Row
	failed  []error

	Finished atomic.Int64
}

var _ operation.Host = (*Host)(nil)

func (h *Host) Name() string { return "test" }

func (h *Host) AddRow(r *row.Row) { h.AddRows(r) }

func (h *Host) AddRows(rows ...*row.Row) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.added = append(h.added, rows...)
}

func (h *Host) RemoveRow(r *row.Row) { h.RemoveRows(r) }

func (h *Host) RemoveRows(rows ...*row.Row) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range rows {
		if r.Remove() {
			h.removed = append(h.removed, r)
		}
	}
}

func (h *Host) FlagRowAsFinished(r *row.Row) {
	if r.Finish() {
		h.Finished.Add(1)
	}
}

func (h *Host) Resume(rows ...*row.Row) {
	h.mu.Lock()
	h.resumed = append(h.resumed, rows...)
	cb := h.OnResume
	h.mu.Unlock()
	if cb != nil {
		cb(rows...)
	}
}

func (h *Host) Fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed = append(h.failed, err)
}

// Added returns the rows injected through AddRow/AddRows.
func (h *Host) Added() []*row.Row { return h.snapshot(&h.added) }

// Removed returns the rows removed through the host.
func (h *Host) Removed() []*row.Row { return h.snapshot(&h.removed) }

// Resumed returns the rows handed back by deferred operations.
func (h *Host) Resumed() []*row.Row { return h.snapshot(&h.resumed) }

// Failures returns the errors reported through Fail.
func (h *Host) Failures() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.failed...)
}

func (h *Host) snapshot(s *[]*row.Row) []*row.Row {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*row.Row(nil), (*s)...)
}
