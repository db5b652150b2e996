package memorystore

import (
	"context"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/PaulFidika/mealkit/cache"
)

// Cache is an in-process cache.Cache with per-key expiry. It is the
// single-node fallback when no Redis is configured.
type Cache struct {
	// takeMu serializes Take so a value is handed out at most once.
	takeMu sync.Mutex
	c      *gocache.Cache
}

var _ cache.Cache = (*Cache)(nil)

// NewCache creates a cache whose expired entries are purged every
// cleanupInterval (default one minute).
func NewCache(cleanupInterval time.Duration) *Cache {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &Cache{c: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func ttlOf(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

func (m *Cache) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, cache.ErrMiss
	}
	b := v.([]byte)
	return append([]byte(nil), b...), nil
}

func (m *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.c.Set(key, append([]byte(nil), value...), ttlOf(ttl))
	return nil
}

func (m *Cache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.c.Delete(k)
	}
	return nil
}

func (m *Cache) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.takeMu.Lock()
	defer m.takeMu.Unlock()
	v, ok := m.c.Get(key)
	if !ok {
		return cache.ErrMiss
	}
	m.c.Set(key, v, ttlOf(ttl))
	return nil
}

func (m *Cache) Take(_ context.Context, key string) ([]byte, error) {
	m.takeMu.Lock()
	defer m.takeMu.Unlock()
	v, ok := m.c.Get(key)
	if !ok {
		return nil, cache.ErrMiss
	}
	m.c.Delete(key)
	return v.([]byte), nil
}

func (m *Cache) DeletePrefix(_ context.Context, prefix string) error {
	for k := range m.c.Items() {
		if strings.HasPrefix(k, prefix) {
			m.c.Delete(k)
		}
	}
	return nil
}

// Flush drops every entry.
func (m *Cache) Flush() { m.c.Flush() }
