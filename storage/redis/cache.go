package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/PaulFidika/mealkit/cache"
)

// Cache is a Redis-backed cache.Cache. Keys are namespaced by prefix.
type Cache struct {
	rdb   redis.UniversalClient
	keyNS string
}

var _ cache.Cache = (*Cache)(nil)

// NewCache wraps rdb. An empty prefix defaults to "mealkit:".
func NewCache(rdb redis.UniversalClient, keyPrefix string) *Cache {
	if keyPrefix == "" {
		keyPrefix = "mealkit:"
	}
	return &Cache{rdb: rdb, keyNS: keyPrefix}
}

func (c *Cache) key(k string) string { return c.keyNS + k }

func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if err == redis.Nil {
		return nil, cache.ErrMiss
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, c.key(key), value, ttl).Err()
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	return c.rdb.Del(ctx, full...).Err()
}

func (c *Cache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ok, err := c.rdb.Expire(ctx, c.key(key), ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return cache.ErrMiss
	}
	return nil
}

// DeletePrefix walks the keyspace with SCAN and unlinks matches one key at a
// time, so it is safe on a cluster where a multi-key DEL would cross slots.
func (c *Cache) DeletePrefix(ctx context.Context, prefix string) error {
	match := c.key(prefix) + "*"
	if cc, ok := c.rdb.(*redis.ClusterClient); ok {
		return cc.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			return unlinkMatching(ctx, node, match)
		})
	}
	return unlinkMatching(ctx, c.rdb, match)
}

func unlinkMatching(ctx context.Context, rdb redis.Cmdable, match string) error {
	iter := rdb.Scan(ctx, 0, match, 200).Iterator()
	pipe := rdb.Pipeline()
	n := 0
	for iter.Next(ctx) {
		pipe.Unlink(ctx, iter.Val())
		if n++; n%200 == 0 {
			if _, err := pipe.Exec(ctx); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if n%200 != 0 {
		_, err := pipe.Exec(ctx)
		return err
	}
	return nil
}

// Take uses GETDEL so concurrent takers never both see the value.
func (c *Cache) Take(ctx context.Context, key string) ([]byte, error) {
	val, err := c.rdb.GetDel(ctx, c.key(key)).Bytes()
	if err == redis.Nil {
		return nil, cache.ErrMiss
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}
