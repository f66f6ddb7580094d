package lock

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/logger"
	"github.com/redis/go-redis/v9"
)

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

// RedisLocker provides a Redis-backed distributed lock.
type RedisLocker struct {
	client       redis.UniversalClient
	retryBackoff time.Duration
	logger       *logger.Logger
}

func NewRedisLocker(client redis.UniversalClient, retryBackoff time.Duration, logger *logger.Logger) *RedisLocker {
	if retryBackoff <= 0 {
		retryBackoff = 50 * time.Millisecond
	}
	return &RedisLocker{client: client, retryBackoff: retryBackoff, logger: logger}
}

func (l *RedisLocker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if fn == nil {
		return ierr.NewError("lock callback not provided").Mark(ierr.ErrSystem)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return ierr.WithError(err).
				WithHintf("Failed to acquire lock %s", key).
				Mark(ierr.ErrSystem)
		}
		if ok {
			defer l.release(key, token)
			return fn(ctx)
		}

		timer := time.NewTimer(l.retryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ierr.WithError(ctx.Err()).
				WithHintf("Timed out waiting for lock %s", key).
				Mark(ierr.ErrVersionConflict)
		case <-timer.C:
		}
	}
}

// release deletes the key only when it still holds our token, so a holder
// whose ttl expired cannot free someone else's lock.
func (l *RedisLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := l.client.Eval(ctx, releaseScript, []string{key}, token).Err()
	if err == nil {
		return
	}
	if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
		_ = l.client.Del(ctx, key).Err()
		return
	}
	l.logger.Warnw("failed to release lock", "key", key, "error", err)
}
