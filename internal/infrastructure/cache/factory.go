package cache

import (
	"context"
	"fmt"

	"github.com/erp/stockledger/internal/infrastructure/config"
	"go.uber.org/zap"
)

// NewStore builds the store selected by cfg.Idempotency.Store
func NewStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (IdempotencyStore, error) {
	switch cfg.Idempotency.Store {
	case config.IdempotencyStoreRedis:
		store, err := NewRedisIdempotencyStore(ctx, RedisConfig{
			Addr:      cfg.Redis.Addr(),
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Idempotency.KeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis idempotency store: %w", err)
		}
		log.Info("idempotency keys kept in redis", zap.String("prefix", cfg.Idempotency.KeyPrefix))
		return store, nil

	case config.IdempotencyStoreMemory:
		log.Info("idempotency keys kept in memory")
		return NewInMemoryIdempotencyStore(0), nil
	}
	return nil, fmt.Errorf("unknown idempotency store %q", cfg.Idempotency.Store)
}
