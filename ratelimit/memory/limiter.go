package memorylimiter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PaulFidika/mealkit/ratelimit"
)

type bucketState struct {
	// stamps are event times in Unix ms, oldest first.
	stamps []int64
}

// Limiter is an in-memory sliding-window limiter for single-node
// deployments and tests.
type Limiter struct {
	mu      sync.Mutex
	limits  map[string]ratelimit.Limit
	buckets map[string]*bucketState
	now     func() time.Time
}

var _ ratelimit.Limiter = (*Limiter)(nil)

func New(limits map[string]ratelimit.Limit) *Limiter {
	if limits == nil {
		limits = ratelimit.Defaults()
	}
	return &Limiter{limits: limits, buckets: make(map[string]*bucketState), now: time.Now}
}

// WithClock replaces the time source.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow prunes expired events on every call and drops empty buckets so
// idle identities do not accumulate.
func (l *Limiter) Allow(_ context.Context, bucket, key string) (bool, error) {
	if l == nil {
		return true, nil
	}
	if bucket == "" || key == "" {
		return false, fmt.Errorf("bucket and key required")
	}
	lim := ratelimit.Lookup(l.limits, bucket)
	nowMs := l.now().UnixMilli()
	windowStart := nowMs - lim.Window.Milliseconds()
	id := bucket + ":" + key

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[id]
	if !ok {
		b = &bucketState{}
		l.buckets[id] = b
	}
	i := 0
	for i < len(b.stamps) && b.stamps[i] <= windowStart {
		i++
	}
	b.stamps = b.stamps[i:]

	if len(b.stamps) >= lim.Limit {
		return false, nil
	}
	b.stamps = append(b.stamps, nowMs)
	return true, nil
}

// Sweep drops buckets whose events have all expired.
func (l *Limiter) Sweep() {
	nowMs := l.now().UnixMilli()
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, b := range l.buckets {
		bucket, _, _ := strings.Cut(id, ":")
		lim := ratelimit.Lookup(l.limits, bucket)
		if n := len(b.stamps); n == 0 || b.stamps[n-1] <= nowMs-lim.Window.Milliseconds() {
			delete(l.buckets, id)
		}
	}
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
