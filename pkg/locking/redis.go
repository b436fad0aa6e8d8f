package locking

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/iris/pkg/redis"
	"github.com/Ramsey-B/iris/pkg/tracing"
)

// RedisLocker takes SET NX locks with a TTL. Locks are held until release is called,
// so the caller must release only after its transaction has committed.
type RedisLocker struct {
	locker *redis.Locker
	ttl    time.Duration
	wait   time.Duration
	logger ectologger.Logger
}

func NewRedisLocker(client *redis.Client, ttl, wait time.Duration, logger ectologger.Logger) *RedisLocker {
	return &RedisLocker{
		locker: redis.NewLocker(client, "iris:lock:"),
		ttl:    ttl,
		wait:   wait,
		logger: logger,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, keys []string) (func(), error) {
	ctx, span := tracing.StartSpan(ctx, "locking.RedisLocker.Lock")
	defer span.End()

	var held []*redis.Lock
	release := func() {
		// releasing must outlive a cancelled request context
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Release(releaseCtx); err != nil {
				l.logger.WithContext(ctx).WithError(err).WithField("lock_key", held[i].Key()).Warn("failed to release lock")
			}
		}
	}

	for _, key := range normalise(keys) {
		lock, err := l.locker.TryAcquire(ctx, key, l.ttl, l.wait)
		if err != nil {
			release()
			if errors.Is(err, redis.ErrLockNotAcquired) {
				err = ErrLockTimeout
			}
			tracing.RecordError(span, err)
			return noop, err
		}
		held = append(held, lock)
	}

	return release, nil
}
