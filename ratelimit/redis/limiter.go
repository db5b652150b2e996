package redislimiter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/PaulFidika/mealkit/ratelimit"
)

// Limiter is a Redis sliding-window limiter over sorted sets, shared by
// every engine replica.
type Limiter struct {
	rdb    redis.UniversalClient
	prefix string
	limits map[string]ratelimit.Limit
	now    func() time.Time
}

var _ ratelimit.Limiter = (*Limiter)(nil)

func New(rdb redis.UniversalClient, limits map[string]ratelimit.Limit) *Limiter {
	if limits == nil {
		limits = ratelimit.Defaults()
	}
	return &Limiter{rdb: rdb, prefix: "mealkit:rl:", limits: limits, now: time.Now}
}

// Allow records the event, then removes it again if it pushed the set over
// the limit.
func (l *Limiter) Allow(ctx context.Context, bucket, key string) (bool, error) {
	if l == nil || l.rdb == nil {
		return true, nil
	}
	if bucket == "" || key == "" {
		return false, fmt.Errorf("bucket and key required")
	}
	lim := ratelimit.Lookup(l.limits, bucket)
	now := l.now().UnixMilli()
	start := now - lim.Window.Milliseconds()
	id := l.prefix + bucket + ":" + key
	member := strconv.FormatInt(now, 10) + "-" + uuid.NewString()

	pipe := l.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, id, "-inf", strconv.FormatInt(start, 10))
	pipe.ZAdd(ctx, id, redis.Z{Score: float64(now), Member: member})
	count := pipe.ZCard(ctx, id)
	pipe.Expire(ctx, id, lim.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	if count.Val() > int64(lim.Limit) {
		if err := l.rdb.ZRem(ctx, id, member).Err(); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}
