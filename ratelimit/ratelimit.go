// Package ratelimit defines the named-bucket limiter the HTTP adapter puts
// in front of scans, challenges and enrollment. Backends live in the
// memory and redis subpackages.
package ratelimit

import (
	"context"
	"time"
)

// Bucket names used by the adapter.
const (
	BucketScan      = "scan"
	BucketChallenge = "challenge"
	BucketEnroll    = "enroll"
	BucketManual    = "manual"
	BucketDefault   = "default"
)

// Limit allows Limit events per sliding Window.
type Limit struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// Limiter reports whether key may spend one event from bucket.
type Limiter interface {
	Allow(ctx context.Context, bucket, key string) (bool, error)
}

// Defaults are generous enough for a queue at a hall door and tight enough
// to stop a client from hammering the verifier.
func Defaults() map[string]Limit {
	return map[string]Limit{
		BucketScan:      {Limit: 10, Window: time.Minute},
		BucketChallenge: {Limit: 20, Window: time.Minute},
		BucketEnroll:    {Limit: 5, Window: time.Hour},
		BucketManual:    {Limit: 120, Window: time.Minute},
		BucketDefault:   {Limit: 100, Window: time.Minute},
	}
}

// Lookup resolves bucket against limits, falling back to the "default"
// entry and then to 100 per minute.
func Lookup(limits map[string]Limit, bucket string) Limit {
	if v, ok := limits[bucket]; ok {
		return v
	}
	if v, ok := limits[BucketDefault]; ok {
		return v
	}
	return Limit{Limit: 100, Window: time.Minute}
}
