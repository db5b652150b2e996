package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Flusher drops cached records. servicepoint.CachedDirectory implements it.
type Flusher interface {
	Flush(ctx context.Context) error
}

// FlushFunc adapts a function to Flusher.
type FlushFunc func(ctx context.Context) error

func (f FlushFunc) Flush(ctx context.Context) error { return f(ctx) }

// FlushScheduler periodically flushes a cache so a missed invalidation
// cannot keep a rotated secret or moved hall alive past one period.
type FlushScheduler struct {
	target Flusher
	spec   string
	cron   *cron.Cron
	log    logrus.FieldLogger

	mu      sync.Mutex
	running bool
}

// NewFlushScheduler schedules target on spec, a standard five-field cron
// expression or a descriptor such as "@every 15m".
func NewFlushScheduler(target Flusher, spec string, log logrus.FieldLogger) *FlushScheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &FlushScheduler{
		target: target,
		spec:   spec,
		cron:   cron.New(),
		log:    log.WithField("component", "cache_flush"),
	}
}

func (s *FlushScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("flush scheduler already running")
	}
	if _, err := s.cron.AddFunc(s.spec, s.RunNow); err != nil {
		return err
	}
	s.cron.Start()
	s.running = true
	s.log.WithField("schedule", s.spec).Info("cache flush scheduler started")
	return nil
}

// Stop halts scheduling; the returned context is done once a running flush
// finishes.
func (s *FlushScheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	s.running = false
	return s.cron.Stop()
}

// RunNow flushes immediately.
func (s *FlushScheduler) RunNow() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.target.Flush(ctx); err != nil {
		s.log.WithError(err).Error("cache flush failed")
	}
}
