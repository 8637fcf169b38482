package secrets

import (
	"context"
	"sync"
	"time"
)

// DefaultCacheTTL bounds the staleness of cached secrets.
const DefaultCacheTTL = 15 * time.Minute

type cacheEntry struct {
	secret  []byte
	found   bool
	expires time.Time
}

// CachingReader caches source lookups for a TTL. Concurrent fills for
// the same key may race, which is fine: every racer fetched the same
// value, last write wins.
type CachingReader struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	source  Source
	ttl     time.Duration
	now     func() time.Time
}

// NewCachingReader wraps source with a TTL cache, defaulting to
// DefaultCacheTTL. Negative lookups are cached too, so a flood of
// requests for an unknown organization does not hammer the source.
func NewCachingReader(source Source, ttl time.Duration) *CachingReader {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachingReader{
		entries: make(map[string]cacheEntry),
		source:  source,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *CachingReader) GetSecret(ctx context.Context, org, tokenType string) ([]byte, bool, error) {
	key := org + "/" + tokenType

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && e.expires.After(c.now()) {
		return e.secret, e.found, nil
	}

	secret, found, err := c.source.GetSecret(ctx, org, tokenType)
	if err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{secret: secret, found: found, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return secret, found, nil
}

func (c *CachingReader) Close() {
	if c == nil {
		return
	}
	c.source.Close()
}
