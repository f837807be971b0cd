package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	resp      *CachedResponse // nil while pending
	expiresAt time.Time
}

// InMemoryIdempotencyStore keeps idempotency state in process. Suitable for a
// single replica and for tests.
type InMemoryIdempotencyStore struct {
	mu        sync.Mutex
	entries   map[string]entry
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryIdempotencyStore starts a goroutine that drops expired entries
// every cleanupInterval. Zero selects five minutes.
func NewInMemoryIdempotencyStore(cleanupInterval time.Duration) *InMemoryIdempotencyStore {
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	store := &InMemoryIdempotencyStore{
		entries:  make(map[string]entry),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	store.wg.Add(1)
	go store.cleanupLoop(cleanupInterval)

	return store
}

func (s *InMemoryIdempotencyStore) live(key string) (entry, bool) {
	e, ok := s.entries[key]
	if !ok || !s.now().Before(e.expiresAt) {
		return entry{}, false
	}
	return e, true
}

func (s *InMemoryIdempotencyStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.live(key); ok {
		return false, nil
	}
	s.entries[key] = entry{expiresAt: s.now().Add(ttl)}
	return true, nil
}

func (s *InMemoryIdempotencyStore) Load(_ context.Context, key string) (*CachedResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok || e.resp == nil {
		return nil, ErrNotCached
	}
	resp := *e.resp
	resp.Body = append([]byte(nil), e.resp.Body...)
	return &resp, nil
}

func (s *InMemoryIdempotencyStore) Store(_ context.Context, key string, resp CachedResponse, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp.Body = append([]byte(nil), resp.Body...)
	s.entries[key] = entry{resp: &resp, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *InMemoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *InMemoryIdempotencyStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

func (s *InMemoryIdempotencyStore) cleanupLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *InMemoryIdempotencyStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, key)
		}
	}
}

// Size returns the number of entries, expired ones included until the next cleanup
func (s *InMemoryIdempotencyStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

var _ IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
