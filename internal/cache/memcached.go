package cache

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const (
	keyNamespace         = "weathr:"
	defaultMemcachedAddr = "localhost:11211"

	// Expirations above 30 days are read by memcached as absolute unix times.
	maxMemcachedRelativeTTL = 30 * 24 * time.Hour
)

// MemcachedBackend stores artifact records in memcached so several machines on a
// LAN can share location, geocode and weather lookups.
type MemcachedBackend struct {
	client *memcache.Client
}

// NewMemcachedBackend accepts a comma-separated server list. Zero timeout or
// maxIdleConns keep the client defaults.
func NewMemcachedBackend(addrs string, timeout time.Duration, maxIdleConns int) *MemcachedBackend {
	var servers []string
	for _, a := range strings.Split(addrs, ",") {
		if a = strings.TrimSpace(a); a != "" {
			servers = append(servers, a)
		}
	}
	if len(servers) == 0 {
		servers = []string{defaultMemcachedAddr}
	}

	mc := memcache.New(servers...)
	if timeout > 0 {
		mc.Timeout = timeout
	}
	if maxIdleConns > 0 {
		mc.MaxIdleConns = maxIdleConns
	}
	return &MemcachedBackend{client: mc}
}

// Get implements Backend. A memcached miss is reported as ErrMiss.
func (c *MemcachedBackend) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	item, err := c.client.Get(keyNamespace + name)
	switch {
	case errors.Is(err, memcache.ErrCacheMiss):
		return nil, ErrMiss
	case err != nil:
		return nil, err
	}
	return item.Value, nil
}

// Set implements Backend. The record TTL is rounded up to whole seconds; the
// store still checks cached_at on read, so memcached expiry only reclaims space.
func (c *MemcachedBackend) Set(ctx context.Context, name string, data []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.client.Set(&memcache.Item{
		Key:        keyNamespace + name,
		Value:      data,
		Expiration: memcachedExpiration(ttl),
	})
}

func memcachedExpiration(ttl time.Duration) int32 {
	if ttl <= 0 {
		return 0
	}
	if ttl > maxMemcachedRelativeTTL {
		ttl = maxMemcachedRelativeTTL
	}
	return int32(math.Ceil(ttl.Seconds()))
}

// Ping reports whether every configured server answers.
func (c *MemcachedBackend) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.client.Ping()
}

func (c *MemcachedBackend) Close() error {
	return c.client.Close()
}
