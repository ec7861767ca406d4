package operation

import (
	"context"

	"github.com/kbukum/rowflow/errors"
	"github.com/kbukum/rowflow/logger"
)

// Lifecycle prepares and shuts down every operation of a chain.
//
// Operations are prepared depth-first in tree order and preparation stops at
// the first failure. Shutdown runs in reverse order over every operation that
// was reached successfully, whether or not it implements Preparer.
type Lifecycle struct {
	chain   *Chain
	reached []Operation
	log     *logger.Logger
}

// NewLifecycle creates a lifecycle walker for chain.
func NewLifecycle(chain *Chain, log *logger.Logger) *Lifecycle {
	return &Lifecycle{chain: chain, log: logger.OrGet(log, "operation")}
}

// Prepare runs Prepare hooks. On failure the operations already prepared are
// shut down before the error is returned.
func (l *Lifecycle) Prepare(ctx context.Context) error {
	l.reached = l.reached[:0]
	err := Walk(l.chain.Ops(), func(op Operation, depth int) error {
		if p, ok := op.(Preparer); ok {
			l.log.Debug("Preparing operation", logger.Fields(logger.FieldOperation, op.Name(), "depth", depth))
			if err := p.Prepare(ctx); err != nil {
				if errors.HasCode(err, errors.ErrCodeValidation) {
					return err
				}
				return errors.PrepareFailed(op.Name(), err)
			}
		}
		l.reached = append(l.reached, op)
		return nil
	})
	if err != nil {
		l.log.Error("Prepare failed", logger.Fields(logger.FieldError, err.Error()))
		if serr := l.Shutdown(ctx); serr != nil {
			return errors.Join(err, serr)
		}
		return err
	}
	return nil
}

// Shutdown runs Shutdown hooks in reverse order and collects their errors.
// It is safe to call more than once.
func (l *Lifecycle) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(l.reached) - 1; i >= 0; i-- {
		op := l.reached[i]
		s, ok := op.(Shutdowner)
		if !ok {
			continue
		}
		if err := s.Shutdown(ctx); err != nil {
			l.log.Error("Shutdown failed", logger.ErrorFields(op.Name(), err))
			errs = append(errs, errors.ShutdownFailed(op.Name(), err))
		}
	}
	l.reached = l.reached[:0]
	return errors.Join(errs...)
}

// Prepared returns the number of operations currently prepared.
func (l *Lifecycle) Prepared() int { return len(l.reached) }
