package engine

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/kbukum/rowflow/errors"
	"github.com/kbukum/rowflow/logger"
	"github.com/kbukum/rowflow/observability"
	"github.com/kbukum/rowflow/operation"
	"github.com/kbukum/rowflow/pipeline"
	"github.com/kbukum/rowflow/row"
)

// Engine drives rows from a source through a chain of operations on a pool
// of workers.
//
// An engine runs one process at a time. While a run is in progress the
// engine is the operation.Host of its chain: AddRow, RemoveRow and
// FlagRowAsFinished act on the current run.
type Engine struct {
	name    string
	cfg     Config
	source  Source
	chain   *operation.Chain
	log     *logger.Logger
	metrics *observability.Metrics

	running atomic.Bool
	mu      sync.Mutex
	current *run
	last    *Result
}

var _ operation.Host = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default is the "engine" component logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMetrics records run metrics on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an engine named name reading from src. Zero tuning values in
// cfg take defaults.
func New(name string, cfg Config, src Source, ops []operation.Operation, opts ...Option) *Engine {
	cfg.ApplyDefaults()
	e := &Engine{
		name:   name,
		cfg:    cfg,
		source: src,
		chain:  operation.NewChain(name, ops...),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = logger.OrGet(e.log, "engine")
	return e
}

func (e *Engine) Name() string { return e.name }

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Chain returns the operation chain.
func (e *Engine) Chain() *operation.Chain { return e.chain }

// Running reports whether a run is in progress.
func (e *Engine) Running() bool { return e.running.Load() }

// LastResult returns the result of the most recent completed run, or nil.
func (e *Engine) LastResult() *Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Execute runs the process to completion and discards the emitted rows.
// The returned error joins every recorded error.
func (e *Engine) Execute(ctx context.Context) (*Result, error) {
	res := e.run(ctx, func(*row.Row) bool { return true })
	return res, res.Err()
}

// Evaluate returns a lazy pipeline of the rows completing the chain. The
// process starts when the pipeline is iterated and stops when the iterator
// is closed. A failed run surfaces its error after the last emitted row.
func (e *Engine) Evaluate() *pipeline.Pipeline[*row.Row] {
	return pipeline.FromSeq(func(ctx context.Context) iter.Seq2[*row.Row, error] {
		return func(yield func(*row.Row, error) bool) {
			open := true
			res := e.run(ctx, func(r *row.Row) bool {
				open = yield(r, nil)
				return open
			})
			if err := res.Err(); err != nil && open {
				yield(nil, err)
			}
		}
	})
}

// AsSource exposes the rows emitted by e as the input of another engine.
func (e *Engine) AsSource() Source {
	return FromPipeline(e.name, e.Evaluate())
}

// Host methods delegate to the run in progress.

func (e *Engine) host() *run {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// AddRow injects r into the running process.
func (e *Engine) AddRow(r *row.Row) { e.AddRows(r) }

// AddRows injects rows into the running process. Outside of a run the rows
// are dropped.
func (e *Engine) AddRows(rows ...*row.Row) {
	if h := e.host(); h != nil {
		h.AddRows(rows...)
		return
	}
	e.log.Warn("Rows added outside of a run dropped", logger.Fields(logger.FieldProcess, e.name, logger.FieldCount, len(rows)))
}

// RemoveRow flags r Removed.
func (e *Engine) RemoveRow(r *row.Row) { e.RemoveRows(r) }

// RemoveRows flags rows Removed. Rows already terminal are left unchanged.
func (e *Engine) RemoveRows(rows ...*row.Row) {
	if h := e.host(); h != nil {
		h.RemoveRows(rows...)
		return
	}
	for _, r := range rows {
		r.Remove()
	}
}

// FlagRowAsFinished flags r Finished ahead of its chain end.
func (e *Engine) FlagRowAsFinished(r *row.Row) {
	if h := e.host(); h != nil {
		h.FlagRowAsFinished(r)
		return
	}
	r.Finish()
}

// Resume hands parked rows back to the running process.
func (e *Engine) Resume(rows ...*row.Row) {
	if h := e.host(); h != nil {
		h.Resume(rows...)
	}
}

// Fail records err on the running process, which then stops.
func (e *Engine) Fail(err error) {
	if h := e.host(); h != nil {
		h.Fail(err)
		return
	}
	e.log.Error("Failure reported outside of a run", logger.Fields(logger.FieldProcess, e.name, logger.FieldError, err.Error()))
}

func (e *Engine) begin() (*run, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, errors.New(errors.ErrCodeInternal, "process "+e.name+" is already running")
	}
	return newRun(e), nil
}

// publish makes r the target of the engine's host methods.
func (e *Engine) publish(r *run) {
	e.mu.Lock()
	e.current = r
	e.mu.Unlock()
}

func (e *Engine) end(res *Result) {
	e.mu.Lock()
	e.current = nil
	e.last = res
	e.mu.Unlock()
	e.running.Store(false)
}
