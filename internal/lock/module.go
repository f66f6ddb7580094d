package lock

import (
	"context"

	"github.com/mspfin/billing-engine/internal/config"
	"github.com/mspfin/billing-engine/internal/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// NewLocker returns a RedisLocker when redis is configured and a MemoryLocker otherwise.
func NewLocker(lc fx.Lifecycle, cfg *config.Configuration, log *logger.Logger) (Locker, error) {
	locker, closeFn, err := Open(cfg, log)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return closeFn()
		},
	})
	return locker, nil
}

// Open builds the locker outside the fx container. The returned function
// releases the redis connection.
func Open(cfg *config.Configuration, log *logger.Logger) (Locker, func() error, error) {
	if cfg.Redis.Address == "" {
		log.Warn("redis address not configured, using process-local locks")
		return NewMemoryLocker(), func() error { return nil }, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return NewRedisLocker(client, 0, log), client.Close, nil
}
