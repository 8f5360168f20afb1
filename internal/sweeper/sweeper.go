// Package sweeper periodically purges expired entries from the revocation ledger.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"distributor.app/internal/obs"
)

// Purger is the part of auth.RevocationLedger the sweeper needs.
type Purger interface {
	PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// Sweeper runs Purger on a cron schedule. A failed run is logged and the
// next tick simply tries again.
type Sweeper struct {
	purger    Purger
	retention time.Duration
	interval  time.Duration
	timeout   time.Duration
	log       *logrus.Logger
	cron      *cron.Cron
}

// Option configures Sweeper.
type Option func(*Sweeper)

// WithTimeout bounds a single run.
func WithTimeout(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger overrides the shared logger.
func WithLogger(l *logrus.Logger) Option {
	return func(s *Sweeper) {
		if l != nil {
			s.log = l
		}
	}
}

// New returns a Sweeper deleting entries older than retention every interval.
func New(p Purger, retention, interval time.Duration, opts ...Option) *Sweeper {
	s := &Sweeper{
		purger:    p,
		retention: retention,
		interval:  interval,
		timeout:   5 * time.Minute,
		log:       obs.Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start schedules the sweep and returns immediately.
func (s *Sweeper) Start() error {
	if s.cron != nil {
		return fmt.Errorf("sweeper already started")
	}
	cronLog := cron.PrintfLogger(s.log)
	c := cron.New(cron.WithChain(
		cron.Recover(cronLog),
		cron.SkipIfStillRunning(cronLog),
	))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), func() { s.RunOnce(context.Background()) }); err != nil {
		return fmt.Errorf("schedule revocation sweep: %w", err)
	}
	c.Start()
	s.cron = c
	s.log.WithFields(logrus.Fields{
		"interval":  s.interval.String(),
		"retention": s.retention.String(),
	}).Info("revocation sweeper started")
	return nil
}

// Stop waits for a running sweep to finish or ctx to end.
func (s *Sweeper) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	s.cron = nil
}

// RunOnce performs one purge. Errors are logged and returned, never fatal.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	n, err := s.purger.PurgeOlderThan(ctx, s.retention)
	obs.ObserveSweep(n, err)
	entry := s.log.WithFields(logrus.Fields{
		"duration_ms": time.Since(start).Milliseconds(),
		"retention":   s.retention.String(),
	})
	if err != nil {
		entry.WithError(err).Error("revocation sweep failed; will retry on next tick")
		return 0, err
	}
	entry.WithField("purged", n).Info("revocation sweep complete")
	return n, nil
}
