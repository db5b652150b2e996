// Package cache is the key-value abstraction the engine caches through. Two
// implementations exist: storage/redis (networked) and storage/memory
// (in-process, with expiry). One is chosen at startup and injected.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache stores opaque byte values with a time-to-live.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// Expire resets the TTL of an existing key. Missing keys return ErrMiss.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Take atomically returns and deletes key; a second Take of the same key
	// is a miss. Used for single-use challenges.
	Take(ctx context.Context, key string) ([]byte, error)
	// DeletePrefix drops every key starting with prefix, including keys
	// written by other processes sharing the cache.
	DeletePrefix(ctx context.Context, prefix string) error
}

// GetJSON reads key and decodes it into v.
func GetJSON(ctx context.Context, c Cache, key string, v any) error {
	b, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, b, ttl)
}
