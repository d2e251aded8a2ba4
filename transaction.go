package tagstore

import (
	"context"
)

// RunTransaction runs fn inside one storage transaction. Every store call
// made with the context handed to fn joins it; nested calls join the
// outermost transaction.
//
// On failure the returned error is a *TransactionError. If fn failed before
// any in-memory index changed, the outcome is TxRolledBackCleanly and the
// store stays usable. If indexes changed, or the commit itself failed, the
// outcome is TxPossiblyInconsistent and every later operation returns
// ErrReloadRequired until Reload. A panic in fn rolls storage back, drops the
// queued events and, if indexes changed, marks the store for reload before
// propagating.
func (s *Store[T]) RunTransaction(ctx context.Context, fn func(ctx context.Context) error) (TxOutcome, error) {
	if err := s.ready(); err != nil {
		return TxRolledBackCleanly, err
	}

	if s.txDepth > 0 {
		before := s.mutations
		if err := fn(ctx); err != nil {
			outcome := s.classify(before, err, true)
			return outcome, &TransactionError{Outcome: outcome, Err: err}
		}
		return TxCommitted, nil
	}

	before := s.mutations
	defer func() {
		if r := recover(); r != nil {
			s.pendingEvents = nil
			if s.mutations != before {
				s.desynced = true
				s.stats.transactions.WithLabelValues(TxPossiblyInconsistent.String()).Inc()
				s.logger.Error("transaction panicked after indexes changed; reload required", "panic", r)
			}
			panic(r)
		}
	}()

	var fnErr error
	err := s.withDepth(func() error {
		return s.backend.WithTransaction(ctx, func(ctx context.Context) error {
			fnErr = fn(ctx)
			return fnErr
		})
	})

	pending := s.pendingEvents
	s.pendingEvents = nil

	if err == nil {
		s.stats.transactions.WithLabelValues(TxCommitted.String()).Inc()
		s.deliver(pending)
		return TxCommitted, nil
	}

	outcome := s.classify(before, fnErr, err == fnErr)
	s.stats.transactions.WithLabelValues(outcome.String()).Inc()
	if outcome == TxPossiblyInconsistent {
		s.desynced = true
		s.logger.Error("transaction left store possibly inconsistent; reload required", "err", err)
	}
	return outcome, &TransactionError{Outcome: outcome, Err: err}
}

// classify decides the outcome of a failed transaction. fnErr is nil when fn
// succeeded and the commit failed; cleanRollback is false when the backend
// reported trouble beyond fn's own error.
func (s *Store[T]) classify(before uint64, fnErr error, cleanRollback bool) TxOutcome {
	if fnErr == nil || !cleanRollback || s.mutations != before {
		return TxPossiblyInconsistent
	}
	return TxRolledBackCleanly
}

func (s *Store[T]) withDepth(fn func() error) error {
	s.txDepth++
	defer func() { s.txDepth-- }()
	return fn()
}
