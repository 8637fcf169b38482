package nonce

import (
	"context"
	"sync"
	"time"
)

const sweepInterval = time.Minute

// InMemoryStore is a process-local Store for tests and dev mode. Marks
// are lost on restart, so production deployments should use the redis
// store instead.
type InMemoryStore struct {
	mu     sync.Mutex
	marked map[string]time.Time // key -> expiry
	ttl    time.Duration
	quit   chan struct{}
	once   sync.Once
}

// NewInMemoryStore creates an in-memory Store with the given TTL,
// defaulting to DefaultTTL. It runs a background sweeper, call Close on
// teardown.
func NewInMemoryStore(ttl time.Duration) *InMemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &InMemoryStore{
		marked: make(map[string]time.Time),
		ttl:    ttl,
		quit:   make(chan struct{}),
	}
	go s.sweep()
	return s
}

func (s *InMemoryStore) ValidateAndMark(_ context.Context, nonce, scope string, _ time.Time) error {
	k := key(nonce, scope)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if exp, ok := s.marked[k]; ok && exp.After(now) {
		return ErrAlreadyUsed
	}
	s.marked[k] = now.Add(s.ttl)
	return nil
}

func (s *InMemoryStore) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() { close(s.quit) })
}

func (s *InMemoryStore) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			s.mu.Lock()
			for key, exp := range s.marked {
				if exp.Before(now) {
					delete(s.marked, key)
				}
			}
			s.mu.Unlock()
		case <-s.quit:
			return
		}
	}
}
