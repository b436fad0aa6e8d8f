package locking

import (
	"context"
	"errors"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/iris/pkg/database"
	"github.com/Ramsey-B/iris/pkg/tracing"
)

// AdvisoryLocker takes postgres transaction-scoped advisory locks. They are released by
// commit or rollback, so the release func is a no-op.
type AdvisoryLocker struct {
	db     database.DB
	logger ectologger.Logger
}

func NewAdvisoryLocker(db database.DB, logger ectologger.Logger) *AdvisoryLocker {
	return &AdvisoryLocker{db: db, logger: logger}
}

func (l *AdvisoryLocker) Lock(ctx context.Context, keys []string) (func(), error) {
	ctx, span := tracing.StartSpan(ctx, "locking.AdvisoryLocker.Lock")
	defer span.End()

	keys = normalise(keys)
	if len(keys) == 0 {
		return noop, nil
	}
	if database.TxFromContext(ctx) == nil {
		err := errors.New("advisory locks require an open transaction")
		tracing.RecordError(span, err)
		return noop, err
	}

	exec := l.db.Executor(ctx)
	for _, key := range keys {
		if _, err := exec.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", key); err != nil {
			err = database.Classify(err)
			tracing.RecordError(span, err)
			if database.IsTransient(err) {
				return noop, err
			}
			l.logger.WithContext(ctx).WithError(err).WithField("lock_key", key).Error("failed to acquire advisory lock")
			return noop, httperror.NewHTTPError(500, "failed to acquire lock")
		}
	}

	return noop, nil
}
