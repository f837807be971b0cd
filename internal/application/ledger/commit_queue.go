package ledger

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// CommitQueue collects side effects (notifications, event publication) raised
// inside a transaction and runs them only after the transaction commits.
type CommitQueue struct {
	mu        sync.Mutex
	callbacks []func(ctx context.Context) error
}

// NewCommitQueue creates an empty queue
func NewCommitQueue() *CommitQueue {
	return &CommitQueue{}
}

// Add queues a callback
func (q *CommitQueue) Add(fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.callbacks = append(q.callbacks, fn)
}

// Len returns the number of queued callbacks
func (q *CommitQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.callbacks)
}

// Truncate drops every callback queued after the first n.
// Used to forget the callbacks of a rolled-back savepoint.
func (q *CommitQueue) Truncate(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n < len(q.callbacks) {
		q.callbacks = q.callbacks[:n]
	}
}

// Drain runs and clears every queued callback in order. A failing or
// panicking callback is logged and does not stop the rest.
func (q *CommitQueue) Drain(ctx context.Context, logger *zap.Logger) int {
	q.mu.Lock()
	callbacks := q.callbacks
	q.callbacks = nil
	q.mu.Unlock()

	failed := 0
	for i, fn := range callbacks {
		if err := runCallback(ctx, fn); err != nil {
			failed++
			logger.Error("after-commit callback failed",
				zap.Int("index", i),
				zap.Error(err),
			)
		}
	}
	return failed
}

func runCallback(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in after-commit callback: %v", r)
		}
	}()
	return fn(ctx)
}
