package resilience

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/kbukum/rowflow/errors"
	"github.com/kbukum/rowflow/operation"
	"github.com/kbukum/rowflow/row"
)

// Decorated runs an operation through a resilience policy.
//
// The wrapped operation is exposed as the only child, so the lifecycle
// prepares and shuts it down and its counters are reported. Deferred
// operations cannot be decorated; wrap their batch handler with
// RetryProcess or BreakerProcess instead.
type Decorated struct {
	policy string
	op     operation.Operation
	call   func(ctx context.Context, fn func() error) error
	stats  operation.Stats
}

var (
	_ operation.Composite = (*Decorated)(nil)
	_ operation.Preparer  = (*Decorated)(nil)
	_ operation.Counted   = (*Decorated)(nil)
)

// WithRetry re-applies op to the same row until it succeeds or cfg gives
// up. op must tolerate being applied more than once.
func WithRetry(op operation.Operation, cfg RetryConfig) *Decorated {
	cfg.ApplyDefaults()
	d := &Decorated{policy: "retry", op: op}
	onRetry := cfg.OnRetry
	cfg.OnRetry = func(attempt int, err error, backoff time.Duration) {
		d.stats.Inc("retries")
		if onRetry != nil {
			onRetry(attempt, err, backoff)
		}
	}
	d.call = func(ctx context.Context, fn func() error) error {
		return RetryFunc(ctx, cfg, fn)
	}
	return d
}

// WithCircuitBreaker fails rows fast with ErrCircuitOpen while cb is open.
func WithCircuitBreaker(op operation.Operation, cb *CircuitBreaker) *Decorated {
	d := &Decorated{policy: "breaker", op: op}
	d.call = func(_ context.Context, fn func() error) error {
		err := cb.Execute(fn)
		if stderrors.Is(err, ErrCircuitOpen) {
			d.stats.Inc("rejected")
		}
		return err
	}
	return d
}

// WithBulkhead limits how many workers apply op at once.
func WithBulkhead(op operation.Operation, b *Bulkhead) *Decorated {
	d := &Decorated{policy: "bulkhead", op: op}
	d.call = func(ctx context.Context, fn func() error) error {
		err := b.Execute(ctx, fn)
		if stderrors.Is(err, ErrBulkheadFull) || stderrors.Is(err, ErrBulkheadTimeout) {
			d.stats.Inc("rejected")
		}
		return err
	}
	return d
}

// WithRateLimit delays rows so op is applied at most rl.Rate() times per
// second across all workers.
func WithRateLimit(op operation.Operation, rl *RateLimiter) *Decorated {
	d := &Decorated{policy: "ratelimit", op: op}
	d.call = func(ctx context.Context, fn func() error) error {
		return rl.ExecuteWait(ctx, fn)
	}
	return d
}

// Name returns "<policy>(<operation>)".
func (d *Decorated) Name() string { return d.policy + "(" + d.op.Name() + ")" }

// Unwrap returns the decorated operation.
func (d *Decorated) Unwrap() operation.Operation { return d.op }

func (d *Decorated) Children() []operation.Operation { return []operation.Operation{d.op} }

// SetIndex forwards the chain position to the decorated operation.
func (d *Decorated) SetIndex(index int) {
	if ix, ok := d.op.(operation.Indexable); ok {
		ix.SetIndex(index)
	}
}

// Prepare rejects deferred operations.
func (d *Decorated) Prepare(_ context.Context) error {
	if _, ok := d.op.(operation.Batcher); ok {
		return errors.Validation(fmt.Sprintf("%s: deferred operation %s cannot be decorated", d.policy, d.op.Name()))
	}
	return nil
}

func (d *Decorated) Counters() map[string]int64 { return d.stats.Counters() }

func (d *Decorated) Apply(ctx context.Context, r *row.Row) error {
	d.stats.Inc("calls")
	err := d.call(ctx, func() error {
		if !r.IsNormal() {
			return nil
		}
		return d.op.Apply(ctx, r)
	})
	if err != nil {
		d.stats.Inc("failures")
	}
	return err
}
