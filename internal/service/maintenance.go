package service

import (
	"context"
	"errors"
	"maps"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/penshort/shortlink/internal/cache"
	"github.com/penshort/shortlink/internal/config"
	"github.com/penshort/shortlink/internal/errx"
	"github.com/penshort/shortlink/internal/expiration"
	"github.com/penshort/shortlink/internal/model"
)

// Sweeper disables expired shortlinks. *expiration.Sweeper implements it.
type Sweeper interface {
	Run(ctx context.Context) (expiration.Result, error)
}

// ClickPurger deletes old click events. *analytics.Tracker implements it.
type ClickPurger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// DestinationAuditor audits shortlink destinations. *health.Checker implements it.
type DestinationAuditor interface {
	CheckDestinations(ctx context.Context) (map[int64]model.DestinationIssue, error)
	CheckRedirectChains(ctx context.Context) (map[int64]model.RedirectChain, error)
	FlagBrokenDestinations(ctx context.Context, issues map[int64]model.DestinationIssue) error
}

// Notifier delivers maintenance events to the host site. *webhook.Notifier implements it.
type Notifier interface {
	Notify(ctx context.Context, eventType model.EventType, data any) error
}

// PurgeResult reports a retention purge.
type PurgeResult struct {
	Deleted int64      `json:"deleted"`
	Cutoff  *time.Time `json:"cutoff,omitempty"`
}

// MaintenanceService runs the periodic and on-demand jobs.
type MaintenanceService struct {
	sweeper  Sweeper
	purger   ClickPurger
	auditor  DestinationAuditor
	bulk     *BulkService
	settings *config.SettingsStore
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewMaintenanceService creates a new MaintenanceService.
func NewMaintenanceService(sweeper Sweeper, purger ClickPurger, auditor DestinationAuditor, bulk *BulkService, settings *config.SettingsStore, logger *zap.Logger) *MaintenanceService {
	return &MaintenanceService{
		sweeper:  sweeper,
		purger:   purger,
		auditor:  auditor,
		bulk:     bulk,
		settings: settings,
		logger:   logger.With(zap.String("component", "service.maintenance")),
		now:      time.Now,
	}
}

// SetNotifier enables event delivery after expiration sweeps and flagging runs.
func (s *MaintenanceService) SetNotifier(n Notifier) {
	s.notifier = n
}

// notify delivers an event best-effort; failures are logged.
func (s *MaintenanceService) notify(ctx context.Context, eventType model.EventType, data any) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, eventType, data); err != nil {
		s.logger.Warn("maintenance notification failed", zap.String("event", string(eventType)), zap.Error(err))
	}
}

// Expire disables expired shortlinks when the sweep is enabled in settings.
func (s *MaintenanceService) Expire(ctx context.Context) (expiration.Result, error) {
	const op = "maintenance.expire"
	if !s.settings.Current().Expiration.Enabled {
		s.logger.Info("expiration sweep disabled in settings")
		return expiration.Result{}, nil
	}
	res, err := s.sweeper.Run(ctx)
	if errors.Is(err, cache.ErrLockHeld) {
		return res, errx.E(op, errx.Conflict, err)
	}
	if err != nil {
		return res, errx.E(op, errx.Unavailable, err)
	}
	if res.Expired > 0 {
		s.notify(ctx, model.EventShortlinksExpired, model.ShortlinksExpiredData{Count: res.Expired, IDs: res.ExpiredIDs})
	}
	return res, nil
}

// PurgeExpiredClicks deletes click events older than the retention window.
// A retention of 0 days keeps everything.
func (s *MaintenanceService) PurgeExpiredClicks(ctx context.Context) (PurgeResult, error) {
	const op = "maintenance.purge_clicks"
	days := s.settings.Current().Expiration.ClickLogRetentionDays
	if days <= 0 {
		return PurgeResult{}, nil
	}

	cutoff := s.now().UTC().AddDate(0, 0, -days)
	n, err := s.purger.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return PurgeResult{}, errx.E(op, errx.Persistence, err)
	}
	s.logger.Info("click events purged", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
	return PurgeResult{Deleted: n, Cutoff: &cutoff}, nil
}

// CheckDestinations audits destinations and, when flag is set, replaces the broken flags.
func (s *MaintenanceService) CheckDestinations(ctx context.Context, flag bool) (map[int64]model.DestinationIssue, error) {
	const op = "maintenance.check_destinations"
	issues, err := s.auditor.CheckDestinations(ctx)
	if err != nil {
		return nil, errx.E(op, errx.Persistence, err)
	}
	if flag {
		if err := s.auditor.FlagBrokenDestinations(ctx, issues); err != nil {
			return nil, errx.E(op, errx.Persistence, err)
		}
		if len(issues) > 0 {
			ordered := make([]model.DestinationIssue, 0, len(issues))
			for _, id := range slices.Sorted(maps.Keys(issues)) {
				ordered = append(ordered, issues[id])
			}
			s.notify(ctx, model.EventDestinationsBroken, model.DestinationsBrokenData{Count: len(ordered), Issues: ordered})
		}
	}
	return issues, nil
}

// CheckRedirectChains reports destinations that answer with a redirect.
func (s *MaintenanceService) CheckRedirectChains(ctx context.Context) (map[int64]model.RedirectChain, error) {
	chains, err := s.auditor.CheckRedirectChains(ctx)
	if err != nil {
		return nil, errx.E("maintenance.check_redirect_chains", errx.Persistence, err)
	}
	return chains, nil
}

// AddMissingLinks runs bulk generation.
func (s *MaintenanceService) AddMissingLinks(ctx context.Context) (BulkResult, error) {
	return s.bulk.AddMissingLinks(ctx)
}
