package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/penshort/shortlink/internal/config"
	"github.com/penshort/shortlink/internal/errx"
	"github.com/penshort/shortlink/internal/model"
	"github.com/penshort/shortlink/internal/repository"
)

// BulkStore is the persistence BulkService needs.
type BulkStore interface {
	ListPublishedTargets(ctx context.Context, entityType, bundle string) ([]*model.Target, error)
	ShortlinkExistsForTarget(ctx context.Context, entityType, entityID, parameterSetID string) (bool, error)
	GetParameterSet(ctx context.Context, id string) (*model.ParameterSet, error)
}

// BulkResult counts the outcome of AddMissingLinks.
type BulkResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// BulkService creates shortlinks for content that should have one.
type BulkService struct {
	store      BulkStore
	shortlinks *ShortlinkService
	settings   *config.SettingsStore
	workers    int
	logger     *zap.Logger
}

// NewBulkService creates a new BulkService.
func NewBulkService(store BulkStore, shortlinks *ShortlinkService, settings *config.SettingsStore, workers int, logger *zap.Logger) *BulkService {
	return &BulkService{
		store:      store,
		shortlinks: shortlinks,
		settings:   settings,
		workers:    max(1, workers),
		logger:     logger.With(zap.String("component", "service.bulk")),
	}
}

type bulkUnit struct {
	target *model.Target
	set    *model.ParameterSet
}

// AddMissingLinks creates one shortlink per published target and configured
// parameter set for every auto_generate rule, skipping pairs that already have one.
func (s *BulkService) AddMissingLinks(ctx context.Context) (BulkResult, error) {
	const op = "bulk.add_missing_links"
	rules := s.settings.Current().AutoGenerate

	var units []bulkUnit
	for _, rule := range rules {
		sets, err := s.ruleSets(ctx, rule)
		if err != nil {
			return BulkResult{}, errx.E(op, errx.Persistence, err)
		}
		targets, err := s.store.ListPublishedTargets(ctx, rule.EntityType, rule.Bundle)
		if err != nil {
			return BulkResult{}, storeErr(op, err)
		}
		for _, t := range targets {
			for _, set := range sets {
				units = append(units, bulkUnit{target: t, set: set})
			}
		}
	}

	var created, skipped, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, u := range units {
		g.Go(func() error {
			ok, err := s.addOne(gctx, u)
			switch {
			case err != nil:
				failed.Add(1)
				s.logger.Warn("failed to create shortlink",
					zap.String("entity_type", u.target.EntityType),
					zap.String("entity_id", u.target.EntityID),
					zap.Error(err),
				)
			case ok:
				created.Add(1)
			default:
				skipped.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := BulkResult{Created: int(created.Load()), Skipped: int(skipped.Load()), Failed: int(failed.Load())}
	s.logger.Info("missing shortlinks added",
		zap.Int("created", res.Created),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)
	if err := ctx.Err(); err != nil {
		return res, errx.E(op, errx.Unavailable, err)
	}
	return res, nil
}

// ruleSets loads the parameter sets of a rule. A rule without sets yields a single nil set.
func (s *BulkService) ruleSets(ctx context.Context, rule config.AutoGenerateRule) ([]*model.ParameterSet, error) {
	if len(rule.ParameterSets) == 0 {
		return []*model.ParameterSet{nil}, nil
	}
	sets := make([]*model.ParameterSet, 0, len(rule.ParameterSets))
	for _, id := range rule.ParameterSets {
		set, err := s.store.GetParameterSet(ctx, id)
		if errors.Is(err, repository.ErrParameterSetNotFound) {
			s.logger.Warn("auto_generate rule references a missing parameter set",
				zap.String("entity_type", rule.EntityType),
				zap.String("parameter_set_id", id),
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load parameter set %s: %w", id, err)
		}
		sets = append(sets, set)
	}
	return sets, nil
}

func (s *BulkService) addOne(ctx context.Context, u bulkUnit) (bool, error) {
	setID := ""
	label := fmt.Sprintf("Auto-generated for %s", u.target.Label)
	description := fmt.Sprintf("Auto-generated for %s", u.target.Bundle)
	if u.set != nil {
		setID = u.set.ID
		label = fmt.Sprintf("Auto-generated for %s (%s)", u.target.Label, u.set.Label)
		description = fmt.Sprintf("Auto-generated for %s with parameter set: %s", u.target.Bundle, u.set.Label)
	}

	exists, err := s.store.ShortlinkExistsForTarget(ctx, u.target.EntityType, u.target.EntityID, setID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	_, err = s.shortlinks.Create(ctx, CreateShortlinkInput{
		Label:            label,
		Description:      description,
		TargetEntityType: u.target.EntityType,
		TargetEntityID:   u.target.EntityID,
		ParameterSetID:   setID,
	})
	return err == nil, err
}
