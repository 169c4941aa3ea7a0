package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/penshort/shortlink/internal/model"
	"github.com/penshort/shortlink/internal/repository"
)

// TargetStore is the persistence TargetService needs.
type TargetStore interface {
	repository.TargetStore
	repository.AliasStore
	DeleteShortlinksForTarget(ctx context.Context, entityType, entityID string) (int64, error)
}

// TargetService keeps the registry of host content and path aliases in sync.
type TargetService struct {
	store  TargetStore
	logger *zap.Logger
}

// NewTargetService creates a new TargetService.
func NewTargetService(store TargetStore, logger *zap.Logger) *TargetService {
	return &TargetService{
		store:  store,
		logger: logger.With(zap.String("component", "service.target")),
	}
}

// Upsert stores a target pushed by the host site.
func (s *TargetService) Upsert(ctx context.Context, t *model.Target) (*model.Target, error) {
	const op = "target.upsert"
	t.EntityType = strings.TrimSpace(t.EntityType)
	t.EntityID = strings.TrimSpace(t.EntityID)
	t.CanonicalURL = strings.TrimSpace(t.CanonicalURL)

	var msgs []string
	if t.EntityType == "" || t.EntityID == "" {
		msgs = append(msgs, "Entity type and entity id are required.")
	}
	if t.CanonicalURL == "" {
		msgs = append(msgs, "A canonical URL is required.")
	} else if msg := validateOverride(t.CanonicalURL); msg != "" {
		msgs = append(msgs, "The canonical URL must start with / or be an absolute URL.")
	}
	if len(msgs) > 0 {
		return nil, invalid(op, msgs...)
	}

	if err := s.store.UpsertTarget(ctx, t); err != nil {
		return nil, storeErr(op, err)
	}
	return t, nil
}

// Get returns a target.
func (s *TargetService) Get(ctx context.Context, entityType, entityID string) (*model.Target, error) {
	t, err := s.store.GetTarget(ctx, entityType, entityID)
	if err != nil {
		return nil, storeErr("target.get", err)
	}
	return t, nil
}

// Delete removes a target together with its shortlinks and returns how many shortlinks went with it.
func (s *TargetService) Delete(ctx context.Context, entityType, entityID string) (int64, error) {
	const op = "target.delete"
	// Shortlinks may exist for targets that were never registered.
	if err := s.store.DeleteTarget(ctx, entityType, entityID); err != nil && !errors.Is(err, repository.ErrTargetNotFound) {
		return 0, storeErr(op, err)
	}
	n, err := s.store.DeleteShortlinksForTarget(ctx, entityType, entityID)
	if err != nil {
		return 0, storeErr(op, err)
	}
	s.logger.Info("target_deleted",
		zap.String("entity_type", entityType),
		zap.String("entity_id", entityID),
		zap.Int64("shortlinks_deleted", n),
	)
	return n, nil
}

// UpsertAlias stores a host path alias. Both sides are site paths.
func (s *TargetService) UpsertAlias(ctx context.Context, a *model.PathAlias) (*model.PathAlias, error) {
	const op = "alias.upsert"
	a.Alias = normalizeSitePath(a.Alias)
	a.SystemPath = normalizeSitePath(a.SystemPath)
	if a.Alias == "/" || a.SystemPath == "/" {
		return nil, invalid(op, "Alias and system path are required.")
	}
	if err := s.store.UpsertAlias(ctx, a); err != nil {
		return nil, storeErr(op, err)
	}
	return a, nil
}

// DeleteAlias removes a host path alias.
func (s *TargetService) DeleteAlias(ctx context.Context, alias string) error {
	if err := s.store.DeleteAlias(ctx, normalizeSitePath(alias)); err != nil {
		return storeErr("alias.delete", err)
	}
	return nil
}

func normalizeSitePath(p string) string {
	p = strings.TrimSpace(p)
	return "/" + strings.TrimLeft(p, "/")
}
