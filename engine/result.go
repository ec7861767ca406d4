package engine

import (
	"time"

	"github.com/kbukum/rowflow/errors"
	"github.com/kbukum/rowflow/observability"
)

// Result is the outcome of one process run.
type Result struct {
	RunID string
	// Success is true when no error was recorded. A cancelled run without
	// errors is successful.
	Success   bool
	Cancelled bool
	// Errors holds every recorded error in the order it was raised.
	Errors []error
	// Counters holds the named counters of each operation.
	Counters map[string]map[string]int64

	Input    int64
	Finished int64
	Removed  int64
	Duration time.Duration
}

// Err joins the recorded errors, or returns nil.
func (r *Result) Err() error {
	if r == nil || len(r.Errors) == 0 {
		return nil
	}
	return errors.Join(r.Errors...)
}

func (r *Result) status() string {
	switch {
	case !r.Success:
		return observability.StatusFailed
	case r.Cancelled:
		return observability.StatusCancelled
	default:
		return observability.StatusSuccess
	}
}
