// Package expiration decides when shortlinks expire and disables the expired ones.
package expiration

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/penshort/shortlink/internal/cache"
	"github.com/penshort/shortlink/internal/config"
	"github.com/penshort/shortlink/internal/metrics"
	"github.com/penshort/shortlink/internal/model"
	"github.com/penshort/shortlink/internal/repository"
)

const day = 24 * time.Hour

// IsExpired reports whether s has passed any of its expiration rules at now.
func IsExpired(s *model.Shortlink, now time.Time) bool {
	if s.ExpiresAt != nil && !now.Before(*s.ExpiresAt) {
		return true
	}

	if s.MaxClicks > 0 && s.ClickCount >= s.MaxClicks {
		return true
	}

	if s.ExpireIfInactiveDays > 0 {
		threshold := now.Add(-time.Duration(s.ExpireIfInactiveDays) * day)
		last := s.LastAccessed
		if last == nil && !s.CreatedAt.IsZero() {
			last = &s.CreatedAt
		}
		if last != nil && last.Before(threshold) {
			return true
		}
	}

	return false
}

// HasRule reports whether s carries any expiration rule.
func HasRule(s *model.Shortlink) bool {
	return s.ExpiresAt != nil || s.MaxClicks > 0 || s.ExpireIfInactiveDays > 0
}

// ApplyDefaults sets the configured default rule on a shortlink that has none.
func ApplyDefaults(s *model.Shortlink, settings config.ExpirationSettings, now time.Time) {
	if HasRule(s) {
		return
	}

	switch settings.DefaultType {
	case config.ExpirationTypeTime:
		if settings.DefaultExpireDays > 0 {
			at := now.Add(time.Duration(settings.DefaultExpireDays) * day)
			s.ExpiresAt = &at
		}
	case config.ExpirationTypeMaxClicks:
		s.MaxClicks = settings.DefaultMaxClicks
	case config.ExpirationTypeInactive:
		s.ExpireIfInactiveDays = settings.DefaultInactiveDays
	}
}

// Store is the persistence the sweeper needs.
type Store interface {
	ListEnabledShortlinkIDs(ctx context.Context) ([]int64, error)
	GetShortlink(ctx context.Context, id int64) (*model.Shortlink, error)
	SetEnabled(ctx context.Context, id int64, enabled bool) error
}

// Locker serializes sweeps across processes. *cache.Cache implements it.
type Locker interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error)
}

// Result summarizes a sweep.
type Result struct {
	Checked    int     `json:"checked"`
	Expired    int     `json:"expired"`
	Failed     int     `json:"failed"`
	ExpiredIDs []int64 `json:"expired_ids,omitempty"`
}

const (
	lockName = "expiration_sweep"
	lockTTL  = 10 * time.Minute
)

// Sweeper disables expired shortlinks.
type Sweeper struct {
	store   Store
	locker  Locker
	workers int
	now     func() time.Time
	logger  *zap.Logger
	metrics metrics.Recorder
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithLocker makes Run take a distributed lock first.
func WithLocker(l Locker) SweeperOption {
	return func(s *Sweeper) { s.locker = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) SweeperOption {
	return func(s *Sweeper) { s.metrics = r }
}

// NewSweeper creates a Sweeper running at most workers units at once.
func NewSweeper(store Store, workers int, logger *zap.Logger, opts ...SweeperOption) *Sweeper {
	if workers <= 0 {
		workers = 1
	}
	s := &Sweeper{
		store:   store,
		workers: workers,
		now:     time.Now,
		logger:  logger.With(zap.String("component", "expiration.sweeper")),
		metrics: metrics.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run checks every enabled shortlink and disables the expired ones.
// Units are independent: a failing unit is logged and counted, never fatal.
func (s *Sweeper) Run(ctx context.Context) (Result, error) {
	if s.locker != nil {
		release, err := s.locker.AcquireLock(ctx, lockName, lockTTL)
		if err != nil {
			if errors.Is(err, cache.ErrLockHeld) {
				s.logger.Info("expiration sweep already running elsewhere")
			}
			return Result{}, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("failed to release sweep lock", zap.Error(err))
			}
		}()
	}

	ids, err := s.store.ListEnabledShortlinkIDs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list enabled shortlinks: %w", err)
	}

	now := s.now()
	var failed atomic.Int64
	expired := make(chan int64, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, id := range ids {
		g.Go(func() error {
			ok, err := s.expireOne(gctx, id, now)
			if err != nil {
				failed.Add(1)
				s.logger.Warn("expiration check failed", zap.Int64("shortlink_id", id), zap.Error(err))
				return nil
			}
			if ok {
				expired <- id
			}
			return nil
		})
	}
	_ = g.Wait()
	close(expired)

	res := Result{Checked: len(ids), Failed: int(failed.Load())}
	for id := range expired {
		res.ExpiredIDs = append(res.ExpiredIDs, id)
	}
	res.Expired = len(res.ExpiredIDs)

	s.metrics.AddShortlinksExpired(res.Expired)
	s.logger.Info("expiration sweep finished",
		zap.Int("checked", res.Checked),
		zap.Int("expired", res.Expired),
		zap.Int("failed", res.Failed),
	)

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// ExpireOne runs a single unit: reload, re-check, evaluate, disable.
// It reports whether the shortlink was disabled by this call.
func (s *Sweeper) ExpireOne(ctx context.Context, id int64) (bool, error) {
	return s.expireOne(ctx, id, s.now())
}

func (s *Sweeper) expireOne(ctx context.Context, id int64, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	link, err := s.store.GetShortlink(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrShortlinkNotFound) {
			return false, nil
		}
		return false, err
	}
	if !link.Enabled || !IsExpired(link, now) {
		return false, nil
	}

	if err := s.store.SetEnabled(ctx, id, false); err != nil {
		if errors.Is(err, repository.ErrShortlinkNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to disable shortlink: %w", err)
	}

	s.logger.Info("shortlink_expired", zap.Int64("shortlink_id", id), zap.String("path", link.Path))
	return true, nil
}
