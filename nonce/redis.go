package nonce

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"

	"github.com/badgeworks/badged/logging"
)

// RedisOptions configures the redis ring behind a RedisStore.
type RedisOptions struct {
	// Addrs are the redis shard addresses.
	Addrs []string

	// ReadTimeout for redis socket reads.
	ReadTimeout time.Duration
	// WriteTimeout for redis socket writes.
	WriteTimeout time.Duration
	// DialTimeout is the max time.Duration to dial a new connection.
	DialTimeout time.Duration
	// PoolTimeout is the max time.Duration to get a connection from pool.
	PoolTimeout time.Duration
	// MinIdleConns is the minimum number of socket connections to redis.
	MinIdleConns int
	// MaxIdleConns is the maximum number of socket connections to redis.
	MaxIdleConns int

	// TTL overrides DefaultTTL for nonce marks.
	TTL time.Duration

	// KeyPrefix namespaces the nonce keys, defaults to "badged:nonce".
	KeyPrefix string

	// Log is the logger that is used.
	Log logging.Logger
}

const (
	defaultReadTimeout  = 25 * time.Millisecond
	defaultWriteTimeout = 25 * time.Millisecond
	defaultPoolTimeout  = 25 * time.Millisecond
	defaultDialTimeout  = 25 * time.Millisecond

	defaultKeyPrefix = "badged:nonce"
)

// RedisStore marks nonces in a redis ring. The insert-if-absent race is
// resolved by redis itself: SET NX succeeds for exactly one writer per
// key, everyone else gets ErrAlreadyUsed.
type RedisStore struct {
	ring   *redis.Ring
	ttl    time.Duration
	prefix string
	log    logging.Logger
}

// NewRedisStore creates a Store over a redis ring.
func NewRedisStore(o RedisOptions) *RedisStore {
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = defaultReadTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.PoolTimeout <= 0 {
		o.PoolTimeout = defaultPoolTimeout
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = defaultDialTimeout
	}
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.KeyPrefix == "" {
		o.KeyPrefix = defaultKeyPrefix
	}
	if o.Log == nil {
		o.Log = logging.New()
	}

	ringOptions := &redis.RingOptions{
		Addrs:        map[string]string{},
		ReadTimeout:  o.ReadTimeout,
		WriteTimeout: o.WriteTimeout,
		PoolTimeout:  o.PoolTimeout,
		DialTimeout:  o.DialTimeout,
		MinIdleConns: o.MinIdleConns,
		PoolSize:     o.MaxIdleConns,
	}
	for idx, addr := range o.Addrs {
		ringOptions.Addrs[fmt.Sprintf("redis%d", idx)] = addr
	}

	return &RedisStore{
		ring:   redis.NewRing(ringOptions),
		ttl:    o.TTL,
		prefix: o.KeyPrefix,
		log:    o.Log,
	}
}

// Available pings the ring with exponential backoff and reports whether
// it responded. Meant for startup checks.
func (s *RedisStore) Available(ctx context.Context) bool {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := s.ring.Ping(ctx).Err()
		if err != nil {
			s.log.Infof("failed to ping redis, retry with backoff: %v", err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(8))
	return err == nil
}

// Ring exposes the underlying ring so other stores of the same
// deployment can share the connection pool.
func (s *RedisStore) Ring() *redis.Ring { return s.ring }

func (s *RedisStore) ValidateAndMark(ctx context.Context, nonce, scope string, ts time.Time) error {
	k := s.prefix + ":" + key(nonce, scope)
	ok, err := s.ring.SetNX(ctx, k, ts.UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return fmt.Errorf("nonce store: %w", err)
	}
	if !ok {
		return ErrAlreadyUsed
	}
	return nil
}

func (s *RedisStore) Close() {
	if s == nil {
		return
	}
	if err := s.ring.Close(); err != nil {
		s.log.Errorf("failed to close redis ring: %v", err)
	}
}
