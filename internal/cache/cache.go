package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrMiss is returned by a Backend when nothing is stored under the name.
var ErrMiss = errors.New("cache miss")

// Backend stores one opaque record per artifact name. Expiry is enforced by Store
// from the record's own timestamp; ttl is only a hint for backends that evict.
type Backend interface {
	Get(ctx context.Context, name string) ([]byte, error)
	Set(ctx context.Context, name string, data []byte, ttl time.Duration) error
}

// MemoryBackend implements Backend using an in-memory map with TTL-based expiration.
// Expired records are removed on access. Safe for concurrent use.
type MemoryBackend struct {
	mu   sync.Mutex
	data map[string]memoryRecord
	now  func() time.Time
}

type memoryRecord struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data: make(map[string]memoryRecord),
		now:  time.Now,
	}
}

// Get returns the record for name, or ErrMiss when absent or expired.
func (c *MemoryBackend) Get(ctx context.Context, name string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.data[name]
	if !ok {
		return nil, ErrMiss
	}
	if !rec.expiresAt.IsZero() && c.now().After(rec.expiresAt) {
		delete(c.data, name)
		return nil, ErrMiss
	}
	return append([]byte(nil), rec.value...), nil
}

// Set stores data under name. A non-positive ttl never expires.
func (c *MemoryBackend) Set(ctx context.Context, name string, data []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := memoryRecord{value: append([]byte(nil), data...)}
	if ttl > 0 {
		rec.expiresAt = c.now().Add(ttl)
	}
	c.data[name] = rec
	return nil
}
