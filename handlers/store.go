package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrDuplicate is returned by ResultStore.Put for a repeated idempotency
// key within its retention window.
var ErrDuplicate = errors.New("duplicate result submission")

// Result is one stored test-result record per scope.
type Result struct {
	Passed   int       `json:"passed"`
	Failed   int       `json:"failed"`
	Skipped  int       `json:"skipped"`
	URL      string    `json:"url,omitempty"`
	Commit   string    `json:"commit,omitempty"`
	Key      string    `json:"key,omitempty"`
	Recorded time.Time `json:"recorded"`
}

// ResultStore persists the latest test result per scope. A scope is the
// owner/repo/platform/branch composite.
type ResultStore interface {
	Put(ctx context.Context, scope string, rec Result) error
	Get(ctx context.Context, scope string) (Result, bool, error)
	Close()
}

// MemoryResultStore is a process-local ResultStore for tests and dev
// mode.
type MemoryResultStore struct {
	mu      sync.Mutex
	results map[string]Result
	seen    map[string]bool
}

func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{
		results: make(map[string]Result),
		seen:    make(map[string]bool),
	}
}

func (s *MemoryResultStore) Put(_ context.Context, scope string, rec Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.Key != "" {
		k := scope + ":" + rec.Key
		if s.seen[k] {
			return ErrDuplicate
		}
		s.seen[k] = true
	}
	s.results[scope] = rec
	return nil
}

func (s *MemoryResultStore) Get(_ context.Context, scope string) (Result, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.results[scope]
	return rec, ok, nil
}

func (s *MemoryResultStore) Close() {}

const (
	resultKeyPrefix      = "badged:results"
	idempotencyKeyPrefix = "badged:results:key"
	idempotencyTTL       = 24 * time.Hour
)

// RedisResultStore persists results in a redis ring shared with the
// nonce store deployment. Idempotency keys are claimed with SET NX, the
// same primitive the nonce store relies on.
type RedisResultStore struct {
	ring *redis.Ring
}

// NewRedisResultStore creates a ResultStore over the given ring. The
// ring stays owned by the caller, Close here is a no-op.
func NewRedisResultStore(ring *redis.Ring) *RedisResultStore {
	return &RedisResultStore{ring: ring}
}

func (s *RedisResultStore) Put(ctx context.Context, scope string, rec Result) error {
	if rec.Key != "" {
		ok, err := s.ring.SetNX(ctx, idempotencyKeyPrefix+":"+scope+":"+rec.Key, "1", idempotencyTTL).Result()
		if err != nil {
			return fmt.Errorf("result store: %w", err)
		}
		if !ok {
			return ErrDuplicate
		}
	}
	dat, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.ring.Set(ctx, resultKeyPrefix+":"+scope, dat, 0).Err(); err != nil {
		return fmt.Errorf("result store: %w", err)
	}
	return nil
}

func (s *RedisResultStore) Get(ctx context.Context, scope string) (Result, bool, error) {
	dat, err := s.ring.Get(ctx, resultKeyPrefix+":"+scope).Bytes()
	if errors.Is(err, redis.Nil) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("result store: %w", err)
	}
	var rec Result
	if err := json.Unmarshal(dat, &rec); err != nil {
		return Result{}, false, err
	}
	return rec, true, nil
}

func (s *RedisResultStore) Close() {}
