package operation

import (
	"context"

	"github.com/kbukum/rowflow/row"
)

// Host is the process running a chain. Operations reach it through the
// context passed to Apply, Prepare and Shutdown.
type Host interface {
	Name() string
	// AddRow injects a new row into the process.
	AddRow(r *row.Row)
	AddRows(rows ...*row.Row)
	// RemoveRow flags a row Removed. Removed rows are never emitted.
	RemoveRow(r *row.Row)
	RemoveRows(rows ...*row.Row)
	// FlagRowAsFinished flags a row Finished ahead of its chain end.
	FlagRowAsFinished(r *row.Row)
	// Resume hands parked rows back for processing. Terminal rows are skipped.
	Resume(rows ...*row.Row)
	// Fail records an error raised outside of Apply and stops the run.
	Fail(err error)
}

type hostKey struct{}

// WithHost returns a context carrying h.
func WithHost(ctx context.Context, h Host) context.Context {
	return context.WithValue(ctx, hostKey{}, h)
}

// HostFrom returns the host carried by ctx.
func HostFrom(ctx context.Context) (Host, bool) {
	h, ok := ctx.Value(hostKey{}).(Host)
	return h, ok
}

// removeRow removes r through the host when one is present.
func removeRow(ctx context.Context, r *row.Row) {
	if h, ok := HostFrom(ctx); ok {
		h.RemoveRow(r)
		return
	}
	r.Remove()
}
