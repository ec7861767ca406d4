package operation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/rowflow/errors"
	"github.com/kbukum/rowflow/logger"
	"github.com/kbukum/rowflow/row"
)

const (
	DefaultBatchSize  = 1000
	DefaultForceFlush = time.Second
)

// DeferredConfig configures batch accumulation.
type DeferredConfig struct {
	// BatchSize is the number of rows that triggers a flush.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size" validate:"gte=0"`
	// ForceFlush flushes a non-empty batch after this much idle time.
	ForceFlush time.Duration `yaml:"force_flush" mapstructure:"force_flush" validate:"gte=0"`
}

// ApplyDefaults fills zero values.
func (c *DeferredConfig) ApplyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.ForceFlush <= 0 {
		c.ForceFlush = DefaultForceFlush
	}
}

// Validate checks the configuration.
func (c *DeferredConfig) Validate() error {
	if c.BatchSize <= 0 {
		return errors.InvalidConfig("batch_size", "must be positive")
	}
	if c.ForceFlush <= 0 {
		return errors.InvalidConfig("force_flush", "must be positive")
	}
	return nil
}

// ErrParked is returned by Apply when the row was accepted into a batch and
// is now held by the operation. Callers must stop processing the row.
var ErrParked = errors.New(errors.ErrCodeInternal, "row parked by deferred operation")

// ProcessFunc handles one flushed batch.
type ProcessFunc func(ctx context.Context, batch []*row.Row) error

// Deferred holds rows until BatchSize rows arrived or ForceFlush elapsed
// without a new row, then processes them as one batch.
//
// Accepted rows are parked with DeferWait and Apply returns ErrParked. On
// flush every row is marked DeferDone; the row whose Apply triggered the
// flush is reset and continues with its worker, the others are handed back
// to the host.
type Deferred struct {
	label   string
	cfg     DeferredConfig
	when    Predicate
	process ProcessFunc
	index   int
	stats   Stats
	log     *logger.Logger

	mu      sync.Mutex
	batch   []*row.Row
	timer   *time.Timer
	lastAdd time.Time
	runCtx  context.Context
	closed  bool

	flushMu sync.Mutex
}

// NewDeferred creates a deferred operation. Zero config values take defaults.
func NewDeferred(name string, cfg DeferredConfig, process ProcessFunc) *Deferred {
	cfg.ApplyDefaults()
	return &Deferred{
		label:   name,
		cfg:     cfg,
		process: process,
		index:   -1,
		log:     logger.Get("operation.deferred").WithFields(logger.Fields(logger.FieldOperation, name)),
	}
}

// When restricts the operation to rows matching p. Other rows pass through.
func (d *Deferred) When(p Predicate) *Deferred {
	d.when = p
	return d
}

// SetProcess replaces the batch handler. Used by types embedding Deferred.
func (d *Deferred) SetProcess(process ProcessFunc) { d.process = process }

func (d *Deferred) Name() string { return d.label }

func (d *Deferred) SetIndex(index int) { d.index = index }

func (d *Deferred) BatchSize() int { return d.cfg.BatchSize }

// ForceFlush returns the idle flush delay.
func (d *Deferred) ForceFlush() time.Duration { return d.cfg.ForceFlush }

// Stats exposes the counters so embedding types can add their own.
func (d *Deferred) Stats() *Stats { return &d.stats }

func (d *Deferred) Counters() map[string]int64 { return d.stats.Counters() }

// Pending returns the number of rows waiting for a flush.
func (d *Deferred) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.batch)
}

// Prepare resets the accumulator and captures ctx for idle flushes.
func (d *Deferred) Prepare(ctx context.Context) error {
	if err := d.cfg.Validate(); err != nil {
		return err
	}
	if d.process == nil {
		return errors.MissingField(d.label + ".process")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.batch = nil
	d.closed = false
	d.runCtx = ctx
	if d.timer == nil {
		d.timer = time.AfterFunc(d.cfg.ForceFlush, d.idleFlush)
	}
	d.timer.Stop()
	return nil
}

// Shutdown stops the idle timer and waits for an in-flight flush.
// Rows still pending are dropped; a completed run never leaves any.
func (d *Deferred) Shutdown(_ context.Context) error {
	d.mu.Lock()
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
	}
	dropped := len(d.batch)
	d.batch = nil
	d.mu.Unlock()

	d.flushMu.Lock()
	defer d.flushMu.Unlock()
	if dropped > 0 {
		d.stats.Add("dropped", int64(dropped))
		d.log.Warn("Deferred rows dropped at shutdown", logger.Fields(logger.FieldCount, dropped))
	}
	return nil
}

func (d *Deferred) Apply(ctx context.Context, r *row.Row) error {
	if d.when != nil && !d.when(r) {
		d.stats.Inc("skipped")
		return nil
	}
	if r.DeferState() != row.DeferNone {
		return ErrParked
	}

	d.mu.Lock()
	if d.runCtx == nil {
		d.runCtx = ctx
	}
	if d.timer == nil {
		d.timer = time.AfterFunc(d.cfg.ForceFlush, d.idleFlush)
	}
	d.batch = append(d.batch, r)
	r.MarkDeferWait()
	d.stats.Inc("rows")
	d.lastAdd = time.Now()
	if len(d.batch) < d.cfg.BatchSize {
		d.timer.Reset(d.cfg.ForceFlush)
		d.mu.Unlock()
		return ErrParked
	}
	batch := d.take()
	d.mu.Unlock()

	return d.flush(ctx, batch, r)
}

// take detaches the current batch. Caller holds mu.
func (d *Deferred) take() []*row.Row {
	batch := d.batch
	d.batch = nil
	d.timer.Stop()
	return batch
}

func (d *Deferred) idleFlush() {
	d.mu.Lock()
	if d.closed || len(d.batch) == 0 {
		d.mu.Unlock()
		return
	}
	if idle := time.Since(d.lastAdd); idle < d.cfg.ForceFlush {
		d.timer.Reset(d.cfg.ForceFlush - idle)
		d.mu.Unlock()
		return
	}
	ctx := d.runCtx
	batch := d.take()
	d.mu.Unlock()

	d.stats.Inc("idle_flushes")
	if err := d.flush(ctx, batch, nil); err != nil {
		if h, ok := HostFrom(ctx); ok {
			h.Fail(errors.OperationFailed(d.label, d.index, err))
			return
		}
		d.log.Error("Idle flush failed", logger.ErrorFields(d.label, err))
	}
}

// flush processes batch. trigger is the row whose Apply caused the flush, or
// nil for an idle flush.
func (d *Deferred) flush(ctx context.Context, batch []*row.Row, trigger *row.Row) error {
	d.flushMu.Lock()
	defer d.flushMu.Unlock()

	start := time.Now()
	err := d.process(ctx, batch)
	d.stats.Inc("flushes")
	d.stats.Add("flushed", int64(len(batch)))

	parked := make([]*row.Row, 0, len(batch))
	for _, r := range batch {
		r.MarkDeferDone()
		if r != trigger {
			parked = append(parked, r)
		}
	}
	if trigger != nil {
		trigger.ResetDefer()
	}

	if err != nil {
		d.stats.Inc("errors")
		d.log.Error("Batch processing failed", logger.Fields(
			logger.FieldCount, len(batch), logger.FieldError, err.Error()))
		return fmt.Errorf("flush of %d rows: %w", len(batch), err)
	}

	d.log.Debug("Batch flushed", logger.Fields(
		logger.FieldCount, len(batch), logger.FieldDuration, time.Since(start).Milliseconds()))

	if h, ok := HostFrom(ctx); ok && len(parked) > 0 {
		h.Resume(parked...)
	}
	return nil
}
