// Package cache holds the stores behind Idempotency-Key replay. A key is first
// claimed with a short pending marker, then either filled with the response
// that completed the request or released so the client can retry.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotCached is returned by Load when the key has no completed response
var ErrNotCached = errors.New("idempotency: no cached response")

// CachedResponse is the replayable part of a completed request
type CachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
}

// IdempotencyStore records which requests already ran and what they returned
type IdempotencyStore interface {
	// Claim reserves key for ttl. It returns false when the key is already
	// claimed or completed.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Load returns the stored response, or ErrNotCached while the key is
	// only claimed or unknown.
	Load(ctx context.Context, key string) (*CachedResponse, error)
	Store(ctx context.Context, key string, resp CachedResponse, ttl time.Duration) error
	Release(ctx context.Context, key string) error
	Close() error
}
