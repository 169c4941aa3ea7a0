package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/penshort/shortlink/internal/config"
	"github.com/penshort/shortlink/internal/destination"
	"github.com/penshort/shortlink/internal/errx"
	"github.com/penshort/shortlink/internal/expiration"
	"github.com/penshort/shortlink/internal/metrics"
	"github.com/penshort/shortlink/internal/model"
	"github.com/penshort/shortlink/internal/pathgen"
	"github.com/penshort/shortlink/internal/repository"
)

const (
	maxLabelLength       = 255
	maxDestinationLength = 2048
	defaultListLimit     = 50
	maxListLimit         = 200
)

// ShortlinkStore is the persistence ShortlinkService needs.
type ShortlinkStore interface {
	repository.ShortlinkStore
	GetParameterSet(ctx context.Context, id string) (*model.ParameterSet, error)
}

// ShortlinkService handles shortlink business logic.
type ShortlinkService struct {
	store    ShortlinkStore
	settings *config.SettingsStore
	paths    PathChecker
	cache    NegativeCache
	logger   *zap.Logger
	metrics  metrics.Recorder
	now      func() time.Time
}

// NewShortlinkService creates a new ShortlinkService. paths and cache may be nil.
func NewShortlinkService(store ShortlinkStore, settings *config.SettingsStore, paths PathChecker, cache NegativeCache, logger *zap.Logger, recorder metrics.Recorder) *ShortlinkService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &ShortlinkService{
		store:    store,
		settings: settings,
		paths:    paths,
		cache:    cache,
		logger:   logger.With(zap.String("component", "service.shortlink")),
		metrics:  recorder,
		now:      time.Now,
	}
}

// CreateShortlinkInput defines input for creating a shortlink.
// An empty CustomSlug generates a path.
type CreateShortlinkInput struct {
	Label                string
	Description          string
	TargetEntityType     string
	TargetEntityID       string
	DestinationOverride  string
	ParameterSetID       string
	CustomSlug           string
	Enabled              *bool
	ExpiresAt            *time.Time
	MaxClicks            int64
	ExpireIfInactiveDays int
}

// Create validates and persists a new shortlink.
func (s *ShortlinkService) Create(ctx context.Context, input CreateShortlinkInput) (*model.Shortlink, error) {
	const op = "shortlink.create"
	settings := s.settings.Current()

	link := &model.Shortlink{
		Label:                strings.TrimSpace(input.Label),
		Description:          strings.TrimSpace(input.Description),
		TargetEntityType:     strings.TrimSpace(input.TargetEntityType),
		TargetEntityID:       strings.TrimSpace(input.TargetEntityID),
		DestinationOverride:  strings.TrimSpace(input.DestinationOverride),
		ParameterSetID:       strings.TrimSpace(input.ParameterSetID),
		Enabled:              input.Enabled == nil || *input.Enabled,
		ExpiresAt:            input.ExpiresAt,
		MaxClicks:            input.MaxClicks,
		ExpireIfInactiveDays: input.ExpireIfInactiveDays,
	}

	msgs, err := s.validate(ctx, link, settings)
	if err != nil {
		return nil, errx.E(op, errx.Persistence, err)
	}
	if len(msgs) > 0 {
		return nil, invalid(op, msgs...)
	}

	custom := strings.TrimSpace(input.CustomSlug)
	if custom != "" {
		msgs, err := s.validator().ValidateCustomSlug(ctx, custom, settings.PathPrefix, 0)
		if err != nil {
			return nil, errx.E(op, errx.Persistence, err)
		}
		if len(msgs) > 0 {
			return nil, invalid(op, msgs...)
		}
		link.Path = model.FullPath(settings.PathPrefix, custom)
	}

	if settings.Expiration.Enabled {
		expiration.ApplyDefaults(link, settings.Expiration, s.now().UTC())
	}

	// A generated path gets one more round if a concurrent writer took it first.
	for attempt := 0; ; attempt++ {
		if custom == "" {
			path, err := pathgen.Generate(ctx, settings.PathPrefix, settings.PathLength, s.store.PathExists)
			if err != nil {
				return nil, generateErr(op, err)
			}
			link.Path = path
		}

		err := s.store.CreateShortlink(ctx, link)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrPathExists) {
			return nil, storeErr(op, err)
		}
		if custom != "" {
			return nil, invalid(op, duplicatePathMessage(link.Path))
		}
		if attempt > 0 {
			return nil, errx.E(op, errx.Conflict, err)
		}
		s.logger.Warn("generated path taken concurrently, regenerating", zap.String("path", link.Path))
	}

	s.clearNegative(ctx, link.Path)
	s.metrics.IncShortlinkCreated()
	s.logger.Info("shortlink_created",
		zap.Int64("shortlink_id", link.ID),
		zap.String("path", link.Path),
		zap.Bool("custom_path", custom != ""),
	)
	return link, nil
}

// UpdateShortlinkInput defines input for updating a shortlink. Nil fields are left unchanged.
type UpdateShortlinkInput struct {
	ID                   int64
	Label                *string
	Description          *string
	TargetEntityType     *string
	TargetEntityID       *string
	DestinationOverride  *string
	ParameterSetID       *string
	CustomSlug           *string
	Enabled              *bool
	ExpiresAt            *time.Time
	ClearExpiry          bool
	MaxClicks            *int64
	ExpireIfInactiveDays *int
}

// Update applies input to an existing shortlink.
func (s *ShortlinkService) Update(ctx context.Context, input UpdateShortlinkInput) (*model.Shortlink, error) {
	const op = "shortlink.update"
	settings := s.settings.Current()

	link, err := s.store.GetShortlink(ctx, input.ID)
	if err != nil {
		return nil, storeErr(op, err)
	}
	oldPath := link.Path

	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	setString(&link.Label, input.Label)
	setString(&link.Description, input.Description)
	setString(&link.TargetEntityType, input.TargetEntityType)
	setString(&link.TargetEntityID, input.TargetEntityID)
	setString(&link.DestinationOverride, input.DestinationOverride)
	setString(&link.ParameterSetID, input.ParameterSetID)
	if input.Enabled != nil {
		link.Enabled = *input.Enabled
	}
	if input.ClearExpiry {
		link.ExpiresAt = nil
	} else if input.ExpiresAt != nil {
		link.ExpiresAt = input.ExpiresAt
	}
	if input.MaxClicks != nil {
		link.MaxClicks = *input.MaxClicks
	}
	if input.ExpireIfInactiveDays != nil {
		link.ExpireIfInactiveDays = *input.ExpireIfInactiveDays
	}

	msgs, err := s.validate(ctx, link, settings)
	if err != nil {
		return nil, errx.E(op, errx.Persistence, err)
	}
	if len(msgs) > 0 {
		return nil, invalid(op, msgs...)
	}

	if input.CustomSlug != nil {
		slug := strings.TrimSpace(*input.CustomSlug)
		prefix := link.Prefix()
		if prefix == "" {
			prefix = settings.PathPrefix
		}
		if model.FullPath(prefix, slug) != link.Path {
			msgs, err := s.validator().ValidateCustomSlug(ctx, slug, prefix, link.ID)
			if err != nil {
				return nil, errx.E(op, errx.Persistence, err)
			}
			if len(msgs) > 0 {
				return nil, invalid(op, msgs...)
			}
			link.Path = model.FullPath(prefix, slug)
		}
	}

	if err := s.store.UpdateShortlink(ctx, link); err != nil {
		if errors.Is(err, repository.ErrPathExists) {
			return nil, invalid(op, duplicatePathMessage(link.Path))
		}
		return nil, storeErr(op, err)
	}

	if link.Enabled {
		s.clearNegative(ctx, link.Path)
	}
	s.metrics.IncShortlinkUpdated()
	s.logger.Info("shortlink_updated",
		zap.Int64("shortlink_id", link.ID),
		zap.String("path", link.Path),
		zap.String("old_path", oldPath),
	)

	updated, err := s.store.GetShortlink(ctx, link.ID)
	if err != nil {
		return nil, storeErr(op, err)
	}
	return updated, nil
}

// Get returns a shortlink by id.
func (s *ShortlinkService) Get(ctx context.Context, id int64) (*model.Shortlink, error) {
	link, err := s.store.GetShortlink(ctx, id)
	if err != nil {
		return nil, storeErr("shortlink.get", err)
	}
	return link, nil
}

// ListShortlinksInput defines input for listing shortlinks.
type ListShortlinksInput struct {
	Filter repository.ShortlinkFilter
	Cursor int64
	Limit  int
}

// ListShortlinksOutput defines output for listing shortlinks.
type ListShortlinksOutput struct {
	Shortlinks []*model.Shortlink
	NextCursor int64
	HasMore    bool
}

// List returns a page of shortlinks ordered by id.
func (s *ShortlinkService) List(ctx context.Context, input ListShortlinksInput) (*ListShortlinksOutput, error) {
	if input.Limit <= 0 {
		input.Limit = defaultListLimit
	}
	input.Limit = min(input.Limit, maxListLimit)

	links, err := s.store.ListShortlinks(ctx, input.Filter, input.Cursor, input.Limit+1)
	if err != nil {
		return nil, storeErr("shortlink.list", err)
	}

	out := &ListShortlinksOutput{Shortlinks: links}
	if len(links) > input.Limit {
		out.Shortlinks = links[:input.Limit]
		out.HasMore = true
		out.NextCursor = out.Shortlinks[input.Limit-1].ID
	}
	return out, nil
}

// Delete removes a shortlink.
func (s *ShortlinkService) Delete(ctx context.Context, id int64) error {
	const op = "shortlink.delete"
	if err := s.store.DeleteShortlink(ctx, id); err != nil {
		return storeErr(op, err)
	}
	s.metrics.IncShortlinkDeleted()
	s.logger.Info("shortlink_deleted", zap.Int64("shortlink_id", id))
	return nil
}

// ForTarget returns the shortlinks pointing at a target.
func (s *ShortlinkService) ForTarget(ctx context.Context, entityType, entityID string) ([]*model.Shortlink, error) {
	links, err := s.store.ShortlinksForTarget(ctx, entityType, entityID)
	if err != nil {
		return nil, storeErr("shortlink.for_target", err)
	}
	return links, nil
}

// DeleteForTarget removes every shortlink pointing at a target.
func (s *ShortlinkService) DeleteForTarget(ctx context.Context, entityType, entityID string) (int64, error) {
	n, err := s.store.DeleteShortlinksForTarget(ctx, entityType, entityID)
	if err != nil {
		return 0, storeErr("shortlink.delete_for_target", err)
	}
	for range n {
		s.metrics.IncShortlinkDeleted()
	}
	if n > 0 {
		s.logger.Info("target shortlinks deleted",
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.Int64("count", n),
		)
	}
	return n, nil
}

// GeneratePath returns a free path using the current prefix and length.
func (s *ShortlinkService) GeneratePath(ctx context.Context) (string, error) {
	const op = "shortlink.generate_path"
	settings := s.settings.Current()
	path, err := pathgen.Generate(ctx, settings.PathPrefix, settings.PathLength, s.store.PathExists)
	if err != nil {
		return "", generateErr(op, err)
	}
	return path, nil
}

// ValidateSlug returns the messages that would reject slug under the current prefix.
func (s *ShortlinkService) ValidateSlug(ctx context.Context, slug string, excludeID int64) ([]string, error) {
	msgs, err := s.validator().ValidateCustomSlug(ctx, slug, s.settings.Current().PathPrefix, excludeID)
	if err != nil {
		return nil, errx.E("shortlink.validate_slug", errx.Persistence, err)
	}
	return msgs, nil
}

func (s *ShortlinkService) validator() pathgen.Validator {
	v := pathgen.Validator{Exists: s.store.PathExists}
	if s.paths != nil {
		v.RouteConflict = s.paths.RouteConflict
		v.AliasConflict = s.paths.AliasConflict
	}
	return v
}

// validate checks the write-time invariants of a shortlink and returns every violation.
func (s *ShortlinkService) validate(ctx context.Context, link *model.Shortlink, settings config.Settings) ([]string, error) {
	var msgs []string

	if link.Label == "" {
		msgs = append(msgs, "A label is required.")
	} else if len(link.Label) > maxLabelLength {
		msgs = append(msgs, fmt.Sprintf("The label may be at most %d characters.", maxLabelLength))
	}

	hasType := link.TargetEntityType != ""
	hasID := link.TargetEntityID != ""
	switch {
	case hasType != hasID:
		msgs = append(msgs, "A target needs both an entity type and an entity id.")
	case hasType && link.HasOverride():
		msgs = append(msgs, "Choose either a target or a destination override, not both.")
	case !hasType && !link.HasOverride():
		msgs = append(msgs, "Either a target or a destination override is required.")
	}

	if hasType && len(settings.AvailableEntityTypes) > 0 && !slices.Contains(settings.AvailableEntityTypes, link.TargetEntityType) {
		msgs = append(msgs, fmt.Sprintf("Entity type %q is not available for shortlinks.", link.TargetEntityType))
	}

	if link.HasOverride() {
		if msg := validateOverride(link.DestinationOverride); msg != "" {
			msgs = append(msgs, msg)
		}
	}

	if link.MaxClicks < 0 {
		msgs = append(msgs, "Maximum clicks cannot be negative.")
	}
	if link.ExpireIfInactiveDays < 0 {
		msgs = append(msgs, "Inactivity days cannot be negative.")
	}

	if link.ParameterSetID != "" {
		if _, err := s.store.GetParameterSet(ctx, link.ParameterSetID); err != nil {
			if !errors.Is(err, repository.ErrParameterSetNotFound) {
				return nil, err
			}
			msgs = append(msgs, fmt.Sprintf("Parameter set %q does not exist.", link.ParameterSetID))
		}
	}

	return msgs, nil
}

// validateOverride accepts site paths and absolute URIs. Tokens are allowed anywhere.
func validateOverride(raw string) string {
	if len(raw) > maxDestinationLength {
		return fmt.Sprintf("The destination may be at most %d characters.", maxDestinationLength)
	}
	if destination.IsInternal(raw) {
		return ""
	}
	if strings.HasPrefix(raw, "[") {
		// Fully tokenized; only resolvable at redirect time.
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return "The destination override must start with / or be an absolute URL."
	}
	return ""
}

func (s *ShortlinkService) clearNegative(ctx context.Context, paths ...string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.ClearNegativeCache(ctx, paths...); err != nil {
		s.logger.Warn("failed to clear negative cache", zap.Strings("paths", paths), zap.Error(err))
	}
}

func generateErr(op string, err error) error {
	if errors.Is(err, pathgen.ErrExhausted) {
		return errx.E(op, errx.Exhausted, err)
	}
	return errx.E(op, errx.Persistence, err)
}

func duplicatePathMessage(path string) string {
	return fmt.Sprintf("A shortlink with the path %s already exists.", path)
}
