package worker

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/kbukum/rowflow/errors"
	"github.com/kbukum/rowflow/logger"
	"github.com/kbukum/rowflow/operation"
	"github.com/kbukum/rowflow/row"
	"github.com/kbukum/rowflow/rowqueue"
)

// DefaultSize returns the default number of workers: one less than the
// number of CPUs, at least one.
func DefaultSize() int {
	return max(1, runtime.NumCPU()-1)
}

// Pool runs a chain over rows taken from a shared queue.
//
// A worker owns a row from Take until the row finishes, fails or is parked
// by a deferred operation. Failures are recorded in the sink and abort only
// the row that raised them.
type Pool struct {
	size  int
	queue rowqueue.Queue
	chain *operation.Chain
	host  operation.Host
	sink  *errors.Sink
	log   *logger.Logger

	wg      sync.WaitGroup
	started atomic.Bool

	finished atomic.Int64
	parked   atomic.Int64
	failed   atomic.Int64
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Finished int64
	Parked   int64
	Failed   int64
}

// New creates a pool. size <= 0 uses DefaultSize.
func New(size int, queue rowqueue.Queue, chain *operation.Chain, host operation.Host, sink *errors.Sink, log *logger.Logger) *Pool {
	if size <= 0 {
		size = DefaultSize()
	}
	return &Pool{
		size:  size,
		queue: queue,
		chain: chain,
		host:  host,
		sink:  sink,
		log:   logger.OrGet(log, "worker"),
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Start launches the workers. They stop when ctx is done or the queue closes.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	ctx = operation.WithHost(ctx, p.host)
	for id := range p.size {
		p.wg.Add(1)
		go p.run(ctx, id)
	}
	p.log.Debug("Workers started", logger.Fields(logger.FieldCount, p.size))
}

// Wait blocks until every worker returned.
func (p *Pool) Wait() { p.wg.Wait() }

// Stats returns the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Finished: p.finished.Load(),
		Parked:   p.parked.Load(),
		Failed:   p.failed.Load(),
	}
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	for r := range p.queue.All(ctx) {
		p.Process(ctx, id, r)
	}
}

// Process walks r through the chain on the calling goroutine. ctx must carry
// the host. Exported for single-row callers and tests.
func (p *Pool) Process(ctx context.Context, id int, r *row.Row) {
	if !r.IsNormal() {
		return
	}
	if r.IsHeartbeat() {
		p.host.FlagRowAsFinished(r)
		return
	}
	switch r.DeferState() {
	case row.DeferDone:
		r.ResetDefer()
	case row.DeferWait:
		// still held by a deferred operation
		return
	}

	for {
		idx, op := p.chain.NextOp(r)
		if op == nil {
			break
		}
		r.SetCurrent(idx)
		err := p.apply(ctx, op, r)
		if errors.Is(err, operation.ErrParked) {
			// the deferred operation owns the row until its batch flushes
			p.parked.Add(1)
			return
		}
		if err != nil {
			p.fail(ctx, id, idx, op, r, err)
			return
		}
	}

	if r.IsNormal() {
		p.host.FlagRowAsFinished(r)
		p.finished.Add(1)
	}
}

func (p *Pool) apply(ctx context.Context, op operation.Operation, r *row.Row) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error("Panic recovered", logger.Fields(
				logger.FieldOperation, op.Name(),
				logger.FieldError, fmt.Sprintf("%v", rec),
				"stack", string(debug.Stack()),
			))
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return op.Apply(ctx, r)
}

func (p *Pool) fail(ctx context.Context, id, idx int, op operation.Operation, r *row.Row, err error) {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return
	}
	p.failed.Add(1)
	appErr := errors.OperationFailed(op.Name(), idx, err).WithDetails(map[string]any{
		"row_seq": r.Seq,
		"row_id":  r.ID,
		"step":    p.chain.Describe(idx),
	})
	p.log.Warn("Row aborted", logger.Fields(
		logger.FieldWorker, id,
		logger.FieldOperation, op.Name(),
		logger.FieldOperationIndex, idx,
		logger.FieldRowSeq, r.Seq,
		logger.FieldError, err.Error(),
	))
	p.sink.Add(appErr)
}
