package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/penshort/shortlink/internal/model"
)

// UpsertTarget inserts or replaces a target registry entry.
func (r *Repository) UpsertTarget(ctx context.Context, t *model.Target) error {
	t.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO targets (entity_type, entity_id, bundle, label, published, canonical_url, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (entity_type, entity_id) DO UPDATE SET
			bundle = EXCLUDED.bundle,
			label = EXCLUDED.label,
			published = EXCLUDED.published,
			canonical_url = EXCLUDED.canonical_url,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.pool.Exec(ctx, query,
		t.EntityType, t.EntityID, t.Bundle, t.Label, t.Published, t.CanonicalURL, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert target: %w", err)
	}
	return nil
}

// GetTarget retrieves a target by its entity reference.
func (r *Repository) GetTarget(ctx context.Context, entityType, entityID string) (*model.Target, error) {
	query := `
		SELECT entity_type, entity_id, bundle, label, published, canonical_url, updated_at
		FROM targets
		WHERE entity_type = $1 AND entity_id = $2
	`

	var t model.Target
	err := r.pool.QueryRow(ctx, query, entityType, entityID).Scan(
		&t.EntityType, &t.EntityID, &t.Bundle, &t.Label, &t.Published, &t.CanonicalURL, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTargetNotFound
		}
		return nil, fmt.Errorf("failed to get target: %w", err)
	}
	return &t, nil
}

// DeleteTarget removes a target registry entry.
func (r *Repository) DeleteTarget(ctx context.Context, entityType, entityID string) error {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM targets WHERE entity_type = $1 AND entity_id = $2`,
		entityType, entityID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete target: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrTargetNotFound
	}
	return nil
}

// ListPublishedTargets returns published targets of a type, optionally narrowed to a bundle.
func (r *Repository) ListPublishedTargets(ctx context.Context, entityType, bundle string) ([]*model.Target, error) {
	query := `
		SELECT entity_type, entity_id, bundle, label, published, canonical_url, updated_at
		FROM targets
		WHERE entity_type = $1 AND published AND ($2 = '' OR bundle = $2)
		ORDER BY entity_id
	`

	rows, err := r.pool.Query(ctx, query, entityType, bundle)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer rows.Close()

	var targets []*model.Target
	for rows.Next() {
		var t model.Target
		if err := rows.Scan(&t.EntityType, &t.EntityID, &t.Bundle, &t.Label, &t.Published, &t.CanonicalURL, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		targets = append(targets, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating targets: %w", err)
	}
	return targets, nil
}

// UpsertAlias inserts or replaces a path alias.
func (r *Repository) UpsertAlias(ctx context.Context, a *model.PathAlias) error {
	a.UpdatedAt = time.Now().UTC()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO path_aliases (alias, system_path, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (alias) DO UPDATE SET system_path = EXCLUDED.system_path, updated_at = EXCLUDED.updated_at`,
		a.Alias, a.SystemPath, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert alias: %w", err)
	}
	return nil
}

// DeleteAlias removes a path alias.
func (r *Repository) DeleteAlias(ctx context.Context, alias string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM path_aliases WHERE alias = $1`, alias)
	if err != nil {
		return fmt.Errorf("failed to delete alias: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAliasNotFound
	}
	return nil
}

// ResolveAlias returns the system path an alias points to.
func (r *Repository) ResolveAlias(ctx context.Context, alias string) (string, error) {
	var systemPath string
	err := r.pool.QueryRow(ctx, `SELECT system_path FROM path_aliases WHERE alias = $1`, alias).Scan(&systemPath)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrAliasNotFound
		}
		return "", fmt.Errorf("failed to resolve alias: %w", err)
	}
	return systemPath, nil
}

// IsKnownSystemPath reports whether path is the system path of an alias or a target's canonical URL.
func (r *Repository) IsKnownSystemPath(ctx context.Context, path string) (bool, error) {
	var known bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM path_aliases WHERE system_path = $1)
			OR EXISTS(SELECT 1 FROM targets WHERE canonical_url = $1)`,
		path,
	).Scan(&known)
	if err != nil {
		return false, fmt.Errorf("failed to check system path: %w", err)
	}
	return known, nil
}
