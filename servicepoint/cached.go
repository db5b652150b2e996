package servicepoint

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/PaulFidika/mealkit/cache"
)

// CachedDirectory is a read-through cache in front of a Directory. Cached
// records must be dropped with Invalidate when the administrative layer
// rotates a secret or edits a service point.
type CachedDirectory struct {
	src   Directory
	c     cache.Cache
	ttl   time.Duration
	keyNS string
	log   logrus.FieldLogger
}

var (
	_ Directory   = (*CachedDirectory)(nil)
	_ Invalidator = (*CachedDirectory)(nil)
)

// NewCachedDirectory wraps src. ttl <= 0 defaults to five minutes.
func NewCachedDirectory(src Directory, c cache.Cache, ttl time.Duration, log logrus.FieldLogger) *CachedDirectory {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CachedDirectory{
		src:   src,
		c:     c,
		ttl:   ttl,
		keyNS: "servicepoint:",
		log:   log.WithField("component", "servicepoint_cache"),
	}
}

func (d *CachedDirectory) key(id string) string { return d.keyNS + id }

// Get serves from cache and falls back to the source on miss. Cache faults
// are logged and bypassed; they never fail a lookup on their own.
func (d *CachedDirectory) Get(ctx context.Context, id string) (ServicePoint, error) {
	var sp ServicePoint
	err := cache.GetJSON(ctx, d.c, d.key(id), &sp)
	if err == nil {
		return sp, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		d.log.WithError(err).WithField("service_point", id).Warn("cache read failed")
	}
	sp, err = d.src.Get(ctx, id)
	if err != nil {
		return ServicePoint{}, err
	}
	if err := cache.SetJSON(ctx, d.c, d.key(id), sp, d.ttl); err != nil {
		d.log.WithError(err).WithField("service_point", id).Warn("cache write failed")
	}
	return sp, nil
}

// Invalidate drops the cached copy of the given service points.
func (d *CachedDirectory) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = d.key(id)
	}
	d.log.WithField("service_points", ids).Info("service point cache invalidated")
	return d.c.Delete(ctx, keys...)
}

// Flush drops every cached service point, whichever process cached it. It
// runs on a schedule as a safety net for missed rotation events.
func (d *CachedDirectory) Flush(ctx context.Context) error {
	d.log.Debug("flushing service point cache")
	return d.c.DeletePrefix(ctx, d.keyNS)
}
