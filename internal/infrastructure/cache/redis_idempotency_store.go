package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingMarker = "pending"

// RedisIdempotencyStore keeps idempotency state in Redis so that every
// replica sees the same claims
type RedisIdempotencyStore struct {
	client    *redis.Client
	keyPrefix string
	ownClient bool
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NewRedisIdempotencyStore connects to Redis and verifies the connection
func NewRedisIdempotencyStore(ctx context.Context, cfg RedisConfig) (*RedisIdempotencyStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	store := NewRedisIdempotencyStoreWithClient(client, cfg.KeyPrefix)
	store.ownClient = true
	return store, nil
}

// NewRedisIdempotencyStoreWithClient wraps an existing client. Close leaves
// the client open.
func NewRedisIdempotencyStoreWithClient(client *redis.Client, keyPrefix string) *RedisIdempotencyStore {
	if keyPrefix == "" {
		keyPrefix = "stockledger:idempotency:"
	}
	return &RedisIdempotencyStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Claim uses SETNX so that exactly one replica wins the key
func (s *RedisIdempotencyStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, pendingMarker, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	return ok, nil
}

func (s *RedisIdempotencyStore) Load(ctx context.Context, key string) (*CachedResponse, error) {
	raw, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load idempotency key: %w", err)
	}
	if string(raw) == pendingMarker {
		return nil, ErrNotCached
	}

	var resp CachedResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode cached response: %w", err)
	}
	return &resp, nil
}

func (s *RedisIdempotencyStore) Store(ctx context.Context, key string, resp CachedResponse, ttl time.Duration) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode cached response: %w", err)
	}
	if err := s.client.Set(ctx, s.keyPrefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store idempotency key: %w", err)
	}
	return nil
}

func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// Close closes the client only when the store created it
func (s *RedisIdempotencyStore) Close() error {
	if !s.ownClient {
		return nil
	}
	return s.client.Close()
}

var _ IdempotencyStore = (*RedisIdempotencyStore)(nil)
