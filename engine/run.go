package engine

import (
	"context"
	"maps"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/rowflow/errors"
	"github.com/kbukum/rowflow/logger"
	"github.com/kbukum/rowflow/observability"
	"github.com/kbukum/rowflow/operation"
	"github.com/kbukum/rowflow/row"
	"github.com/kbukum/rowflow/rowqueue"
	"github.com/kbukum/rowflow/worker"
)

// run is the state of one process execution. It is the operation.Host seen
// by the chain.
//
// The driver goroutine owns input, throttling, compaction and emission.
// Host methods may be called from any goroutine.
type run struct {
	e   *Engine
	id  string
	cfg Config
	log *logger.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	queue   rowqueue.Queue
	tracked *tracked
	sink    errors.Sink

	active   atomic.Int64
	input    atomic.Int64
	finished atomic.Int64
	removed  atomic.Int64

	// driver goroutine only
	yield   func(*row.Row) bool
	stopped bool
}

var _ operation.Host = (*run)(nil)

func newRun(e *Engine) *run {
	id := uuid.NewString()
	return &run{
		e:       e,
		id:      id,
		cfg:     e.cfg,
		log:     e.log.WithProcess(e.name, id),
		tracked: newTracked(e.cfg.KeepOrder),
		cancel:  func() {},
	}
}

func (e *Engine) run(ctx context.Context, yield func(*row.Row) bool) *Result {
	r, err := e.begin()
	if err != nil {
		return &Result{Errors: []error{err}}
	}
	res := r.execute(ctx, yield)
	e.end(res)
	return res
}

func (r *run) execute(parent context.Context, yield func(*row.Row) bool) *Result {
	start := time.Now()
	r.yield = yield

	if err := r.cfg.validateRun(r.e.source, r.e.chain); err != nil {
		r.log.Error("Invalid process configuration", logger.Fields(logger.FieldError, err.Error()))
		r.sink.Add(err)
		return r.result(start, false)
	}

	rc := observability.NewRunContext(r.e.name, r.id, r.e.metrics)
	ctx, span := rc.Start(logger.ContextWithRunID(parent, r.id))
	ctx, r.cancel = context.WithCancel(ctx)
	defer r.cancel()
	ctx = operation.WithHost(ctx, r)
	r.ctx = ctx

	r.log.Info("Process started", logger.Fields(
		"source", r.e.source.Name(),
		"operations", r.e.chain.Len(),
		"workers", r.cfg.WorkerCount,
		"queue", string(r.cfg.RowQueueKind),
		"keep_order", r.cfg.KeepOrder,
	))

	lc := operation.NewLifecycle(r.e.chain, r.log)
	var pool *worker.Pool
	if r.prepare(ctx, rc, lc) {
		pool = worker.New(r.cfg.WorkerCount, r.queue, r.e.chain, r, &r.sink, r.log.WithComponent("worker"))
		pool.Start(ctx)
		r.stream(ctx, rc)
		r.drain(ctx, rc)
	}
	cancelled := r.stopped || parent.Err() != nil
	r.finalize(ctx, rc, lc, pool)

	res := r.result(start, cancelled)
	for _, err := range res.Errors {
		code := errors.ErrCodeInternal
		if appErr, ok := errors.AsAppError(err); ok {
			code = appErr.Code
		}
		r.e.metrics.RecordError(ctx, r.e.name, string(code))
	}
	rc.End(ctx, span, res.status(), res.Input, res.Err())

	fields := logger.Fields(
		logger.FieldCount, res.Input,
		"finished", res.Finished,
		"removed", res.Removed,
		"errors", len(res.Errors),
		logger.FieldDuration, res.Duration.Milliseconds(),
	)
	switch {
	case !res.Success:
		r.log.Error("Process failed", fields)
	case res.Cancelled:
		r.log.Warn("Process cancelled", fields)
	default:
		r.log.Info("Process completed", fields)
	}
	return res
}

// prepare builds the queue and prepares the operation tree. It reports
// whether the run can proceed.
func (r *run) prepare(ctx context.Context, rc *observability.RunContext, lc *operation.Lifecycle) bool {
	_, span := rc.Phase(ctx, observability.SpanPrepare)
	defer span.End()

	q, err := rowqueue.New(r.cfg.RowQueueKind, rowqueue.Options{Capacity: r.cfg.QueueCapacity})
	if err != nil {
		r.sink.Add(err)
		return false
	}
	r.queue = q
	r.e.publish(r)

	if err := lc.Prepare(ctx); err != nil {
		span.RecordError(err)
		r.sink.Add(err)
		return false
	}
	return true
}

// stream pulls the source into the queue, throttling and compacting as it
// goes.
func (r *run) stream(ctx context.Context, rc *observability.RunContext) {
	_, span := rc.Phase(ctx, observability.SpanStream)
	defer span.End()
	start := time.Now()

	src := r.e.source
	it := src.Rows(ctx)
	defer func() {
		if err := it.Close(); err != nil {
			r.log.Warn("Closing source failed", logger.Fields("source", src.Name(), logger.FieldError, err.Error()))
		}
	}()

	size := r.cfg.InputBufferSize
	if isUnbuffered(src) {
		size = 1
	}
	buf := make([]*row.Row, 0, size)
	lastWipe := time.Now()

	for r.live(ctx) {
		rw, ok, err := it.Next(ctx)
		if err != nil {
			if !cancelledBy(ctx, err) {
				span.RecordError(err)
				r.sink.Add(errors.SourceFailed(src.Name(), err))
			}
			break
		}
		if !ok {
			r.enqueue(buf)
			break
		}
		buf = append(buf, rw)
		if len(buf) >= size {
			r.enqueue(buf)
			buf = buf[:0]
			r.throttle(ctx)
		}
		if time.Since(lastWipe) >= r.cfg.MainLoopDelay {
			r.wipe()
			lastWipe = time.Now()
		}
	}

	r.log.Debug("Input done", logger.DurationFields("stream", time.Since(start)))
}

// enqueue tracks rows and hands them to the workers with one wakeup.
func (r *run) enqueue(rows []*row.Row) {
	if rows = r.track(rows); len(rows) == 0 {
		return
	}
	r.queue.AddMany(rows)
	r.queue.Signal()
}

// track registers rows with the run. Rows that already went through a chain
// are replaced by fresh clones. It returns the rows to enqueue.
func (r *run) track(rows []*row.Row) []*row.Row {
	if len(rows) == 0 {
		return nil
	}
	for i, rw := range rows {
		if !rw.Fresh() {
			rows[i] = rw.Clone()
		}
	}
	n := int64(len(rows))
	r.active.Add(n)
	if err := r.tracked.add(r.ctx, rows); err != nil {
		r.active.Add(-n)
		r.log.Warn("Rows dropped", logger.Fields(logger.FieldCount, n, logger.FieldError, err.Error()))
		return nil
	}
	r.input.Add(n)
	r.e.metrics.RecordInput(r.ctx, r.e.name, len(rows))
	return rows
}

// throttle holds the input while more than ThrottlingLimit rows are in
// flight, compacting between sleeps. One episode lasts at most
// ThrottlingMaxSleep.
func (r *run) throttle(ctx context.Context) {
	limit := int64(r.cfg.ThrottlingLimit)
	if r.active.Load() <= limit {
		return
	}
	start := time.Now()
	ticker := time.NewTicker(r.cfg.ThrottlingSleepResolution)
	defer ticker.Stop()

	for r.active.Load() > limit && r.live(ctx) {
		if time.Since(start) >= r.cfg.ThrottlingMaxSleep {
			r.log.Warn("Throttling cap reached, resuming input", logger.Fields(
				"active", r.active.Load(),
				"limit", limit,
				logger.FieldDuration, time.Since(start).Milliseconds(),
			))
			break
		}
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
		r.wipe()
	}
	r.e.metrics.RecordThrottle(ctx, r.e.name, time.Since(start))
}

// drain waits for in-flight rows, compacting every MainLoopDelay, until none
// are left, the run is cancelled or an error was recorded.
func (r *run) drain(ctx context.Context, rc *observability.RunContext) {
	_, span := rc.Phase(ctx, observability.SpanDrain)
	defer span.End()

	ticker := time.NewTicker(r.cfg.MainLoopDelay)
	defer ticker.Stop()
	for {
		r.wipe()
		if r.active.Load() <= 0 || !r.live(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// finalize stops the workers, releases the operations and emits the
// Finished rows still tracked.
func (r *run) finalize(ctx context.Context, rc *observability.RunContext, lc *operation.Lifecycle, pool *worker.Pool) {
	_, span := rc.Phase(ctx, observability.SpanFinalize)
	defer span.End()

	r.cancel()
	if r.queue != nil {
		r.queue.Close()
	}
	if pool != nil {
		pool.Wait()
	}

	sctx := context.WithoutCancel(ctx)
	if err := lc.Shutdown(sctx); err != nil {
		r.sink.Add(err)
	}
	r.logCounters()
	r.emit(r.tracked.drain(sctx))
}

// wipe runs one compaction pass and emits the rows it released.
func (r *run) wipe() {
	out, ok := r.tracked.wipe(r.cfg.LockTimeout)
	r.e.metrics.RecordWipe(r.ctx, r.e.name, !ok)
	if !ok {
		r.log.Warn("Compaction skipped, tracked rows are locked", logger.Fields(
			"lock_timeout_ms", r.cfg.LockTimeout.Milliseconds()))
		return
	}
	r.emit(out)
}

// emit hands rows to the consumer. A consumer that stops cancels the run.
func (r *run) emit(rows []*row.Row) {
	for _, rw := range rows {
		if r.stopped {
			return
		}
		if !r.yield(rw) {
			r.stopped = true
			r.log.Debug("Consumer stopped, cancelling process")
			r.cancel()
		}
	}
}

func (r *run) live(ctx context.Context) bool {
	return ctx.Err() == nil && r.sink.Len() == 0 && !r.stopped
}

func (r *run) logCounters() {
	counters := operation.Counters(r.e.chain.Ops())
	for _, name := range slices.Sorted(maps.Keys(counters)) {
		fields := logger.Fields(logger.FieldOperation, name)
		for k, v := range counters[name] {
			fields[k] = v
		}
		r.log.Info("Operation counters", fields)
	}
}

func (r *run) result(start time.Time, cancelled bool) *Result {
	errs := r.sink.Errors()
	return &Result{
		RunID:     r.id,
		Success:   len(errs) == 0,
		Cancelled: cancelled,
		Errors:    errs,
		Counters:  operation.Counters(r.e.chain.Ops()),
		Input:     r.input.Load(),
		Finished:  r.finished.Load(),
		Removed:   r.removed.Load(),
		Duration:  time.Since(start),
	}
}

// --- operation.Host ---

func (r *run) Name() string { return r.e.name }

func (r *run) AddRow(rw *row.Row) { r.AddRows(rw) }

func (r *run) AddRows(rows ...*row.Row) {
	r.enqueue(slices.Clone(rows))
}

func (r *run) RemoveRow(rw *row.Row) { r.RemoveRows(rw) }

// RemoveRows flags rows Removed. Only rows tracked by this run change the
// in-flight count.
func (r *run) RemoveRows(rows ...*row.Row) {
	for _, rw := range rows {
		if rw.Remove() && rw.Seq > 0 {
			r.active.Add(-1)
			r.removed.Add(1)
			r.e.metrics.RecordRemoved(r.ctx, r.e.name)
		}
	}
}

func (r *run) FlagRowAsFinished(rw *row.Row) {
	if rw.Finish() && rw.Seq > 0 {
		r.active.Add(-1)
		r.finished.Add(1)
		r.e.metrics.RecordFinished(r.ctx, r.e.name)
	}
}

// Resume re-enqueues parked rows that are still Normal.
func (r *run) Resume(rows ...*row.Row) {
	live := make([]*row.Row, 0, len(rows))
	for _, rw := range rows {
		if rw.IsNormal() {
			live = append(live, rw)
		}
	}
	if len(live) == 0 {
		return
	}
	r.queue.AddMany(live)
	r.queue.Signal()
}

func (r *run) Fail(err error) { r.sink.Add(err) }

func cancelledBy(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
