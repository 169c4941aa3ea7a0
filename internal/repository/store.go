package repository

import (
	"context"
	"time"

	"github.com/penshort/shortlink/internal/model"
)

// ShortlinkFilter narrows ListShortlinks.
type ShortlinkFilter struct {
	Enabled          *bool
	Broken           *bool
	TargetEntityType string
	TargetEntityID   string
	ParameterSetID   string
}

// ShortlinkStore persists shortlinks.
type ShortlinkStore interface {
	CreateShortlink(ctx context.Context, s *model.Shortlink) error
	GetShortlink(ctx context.Context, id int64) (*model.Shortlink, error)
	GetEnabledShortlinkByPath(ctx context.Context, path string) (*model.Shortlink, error)
	PathExists(ctx context.Context, path string, excludeID int64) (bool, error)
	UpdateShortlink(ctx context.Context, s *model.Shortlink) error
	DeleteShortlink(ctx context.Context, id int64) error
	ListShortlinks(ctx context.Context, filter ShortlinkFilter, afterID int64, limit int) ([]*model.Shortlink, error)
	ListEnabledShortlinkIDs(ctx context.Context) ([]int64, error)
	ShortlinksForTarget(ctx context.Context, entityType, entityID string) ([]*model.Shortlink, error)
	DeleteShortlinksForTarget(ctx context.Context, entityType, entityID string) (int64, error)
	ShortlinkExistsForTarget(ctx context.Context, entityType, entityID, parameterSetID string) (bool, error)
	RecordAccess(ctx context.Context, id int64, at time.Time) error
	SetEnabled(ctx context.Context, id int64, enabled bool) error
	ReplaceBrokenFlags(ctx context.Context, ids []int64) error
}

// ParameterSetStore persists parameter sets.
type ParameterSetStore interface {
	CreateParameterSet(ctx context.Context, set *model.ParameterSet) error
	GetParameterSet(ctx context.Context, id string) (*model.ParameterSet, error)
	UpdateParameterSet(ctx context.Context, set *model.ParameterSet) error
	DeleteParameterSet(ctx context.Context, id string) error
	ListParameterSets(ctx context.Context) ([]*model.ParameterSet, error)
}

// TargetStore persists the target registry synced from the host site.
type TargetStore interface {
	UpsertTarget(ctx context.Context, t *model.Target) error
	GetTarget(ctx context.Context, entityType, entityID string) (*model.Target, error)
	DeleteTarget(ctx context.Context, entityType, entityID string) error
	ListPublishedTargets(ctx context.Context, entityType, bundle string) ([]*model.Target, error)
}

// AliasStore persists host path aliases.
type AliasStore interface {
	UpsertAlias(ctx context.Context, a *model.PathAlias) error
	DeleteAlias(ctx context.Context, alias string) error
	ResolveAlias(ctx context.Context, alias string) (string, error)
	IsKnownSystemPath(ctx context.Context, path string) (bool, error)
}

// ClickStore persists click events and answers reporting queries.
type ClickStore interface {
	BulkInsert(ctx context.Context, events []*model.ClickEvent) error
	TotalClicks(ctx context.Context, r model.TimeRange) (int64, error)
	TopShortlinks(ctx context.Context, limit int, r model.TimeRange) ([]model.ShortlinkClicks, error)
	RecentClicks(ctx context.Context, limit int) ([]*model.ClickEvent, error)
	ClicksByShortlink(ctx context.Context, shortlinkID int64, r model.TimeRange) ([]*model.ClickEvent, error)
	PurgeClicksBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store is the full persistence surface. Both the Postgres and SQLite backends implement it.
type Store interface {
	ShortlinkStore
	ParameterSetStore
	TargetStore
	AliasStore
	ClickStore
	Ping(ctx context.Context) error
	Close()
}
