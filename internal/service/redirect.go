package service

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/penshort/shortlink/internal/analytics"
	"github.com/penshort/shortlink/internal/config"
	"github.com/penshort/shortlink/internal/destination"
	"github.com/penshort/shortlink/internal/errx"
	"github.com/penshort/shortlink/internal/expiration"
	"github.com/penshort/shortlink/internal/metrics"
	"github.com/penshort/shortlink/internal/model"
	"github.com/penshort/shortlink/internal/repository"
)

var slugPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// RedirectStore is the persistence RedirectService needs.
type RedirectStore interface {
	GetEnabledShortlinkByPath(ctx context.Context, path string) (*model.Shortlink, error)
	RecordAccess(ctx context.Context, id int64, at time.Time) error
	SetEnabled(ctx context.Context, id int64, enabled bool) error
}

// DestinationResolver resolves where a shortlink goes. *destination.Resolver implements it.
type DestinationResolver interface {
	Resolve(ctx context.Context, s *model.Shortlink) (destination.Resolved, error)
}

// ClickRecorder records clicks without blocking. *analytics.Tracker implements it.
type ClickRecorder interface {
	Record(shortlinkID int64, meta analytics.RequestMeta, now time.Time)
}

// Redirect is the response to a resolved shortlink request.
type Redirect struct {
	Status      int
	URL         string
	External    bool
	ShortlinkID int64
	Path        string
}

// RedirectService turns inbound slugs into redirects.
type RedirectService struct {
	store    RedirectStore
	resolver DestinationResolver
	tracker  ClickRecorder
	cache    NegativeCache
	settings *config.SettingsStore
	logger   *zap.Logger
	metrics  metrics.Recorder
	now      func() time.Time
}

// NewRedirectService creates a new RedirectService. tracker and cache may be nil.
func NewRedirectService(store RedirectStore, resolver DestinationResolver, tracker ClickRecorder, cache NegativeCache, settings *config.SettingsStore, logger *zap.Logger, recorder metrics.Recorder) *RedirectService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &RedirectService{
		store:    store,
		resolver: resolver,
		tracker:  tracker,
		cache:    cache,
		settings: settings,
		logger:   logger.With(zap.String("component", "service.redirect")),
		metrics:  recorder,
		now:      time.Now,
	}
}

// Handle resolves slug under the configured prefix.
// This is the hot path: click counting and tracking never fail the redirect.
func (s *RedirectService) Handle(ctx context.Context, slug string, meta analytics.RequestMeta) (redirect *Redirect, err error) {
	const op = "redirect.handle"
	start := time.Now()
	defer func() {
		s.metrics.ObserveRedirectDuration(time.Since(start))
		switch errx.KindOf(err) {
		case errx.Unknown:
			if err == nil {
				s.metrics.IncRedirect(metrics.OutcomeRedirect)
			} else {
				s.metrics.IncRedirect(metrics.OutcomeError)
			}
		case errx.NotFound:
			s.metrics.IncRedirect(metrics.OutcomeNotFound)
		default:
			s.metrics.IncRedirect(metrics.OutcomeError)
		}
	}()

	if !slugPattern.MatchString(slug) {
		return nil, errx.E(op, errx.NotFound, ErrNotFound)
	}

	settings := s.settings.Current()
	fullPath := model.FullPath(settings.PathPrefix, slug)

	// Misses are only cached when the generation was read before the lookup.
	var generation int64
	cacheMiss := false
	if s.cache != nil {
		cached, gen, cerr := s.cache.IsNegativelyCached(ctx, fullPath)
		switch {
		case cerr != nil:
			s.logger.Warn("negative cache lookup failed", zap.String("path", fullPath), zap.Error(cerr))
		case cached:
			s.metrics.IncNegativeCacheHit()
			return nil, errx.E(op, errx.NotFound, ErrNotFound)
		default:
			generation, cacheMiss = gen, true
		}
	}

	link, err := s.store.GetEnabledShortlinkByPath(ctx, fullPath)
	if err != nil {
		if errors.Is(err, repository.ErrShortlinkNotFound) {
			if cacheMiss {
				s.markMissing(ctx, fullPath, generation)
			}
			return nil, errx.E(op, errx.NotFound, ErrNotFound)
		}
		return nil, storeErr(op, err)
	}

	now := s.now().UTC()
	if expiration.IsExpired(link, now) {
		if err := s.store.SetEnabled(ctx, link.ID, false); err != nil {
			s.logger.Warn("failed to disable expired shortlink", zap.Int64("shortlink_id", link.ID), zap.Error(err))
		}
		s.logger.Info("shortlink_expired", zap.Int64("shortlink_id", link.ID), zap.String("path", link.Path))
		return nil, errx.E(op, errx.NotFound, ErrExpired)
	}

	if err := s.store.RecordAccess(context.WithoutCancel(ctx), link.ID, now); err != nil {
		s.logger.Warn("failed to record shortlink access", zap.Int64("shortlink_id", link.ID), zap.Error(err))
	}

	dest, err := s.resolver.Resolve(ctx, link)
	if err != nil {
		if errors.Is(err, destination.ErrDestinationNotFound) {
			s.logger.Info("redirect_destination_missing",
				zap.Int64("shortlink_id", link.ID),
				zap.String("path", link.Path),
				zap.Error(err),
			)
			return nil, errx.E(op, errx.NotFound, err)
		}
		return nil, errx.E(op, errx.Internal, err)
	}

	if s.tracker != nil {
		s.tracker.Record(link.ID, meta, now)
	}

	return &Redirect{
		Status:      settings.RedirectStatus,
		URL:         dest.URL,
		External:    dest.External,
		ShortlinkID: link.ID,
		Path:        link.Path,
	}, nil
}

func (s *RedirectService) markMissing(ctx context.Context, path string, generation int64) {
	written, err := s.cache.SetNegativeCache(ctx, path, generation)
	if err != nil {
		s.logger.Warn("failed to set negative cache", zap.String("path", path), zap.Error(err))
		return
	}
	if !written {
		s.logger.Debug("negative cache write skipped, path changed during lookup", zap.String("path", path))
	}
}
