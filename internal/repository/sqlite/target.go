package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/penshort/shortlink/internal/model"
	"github.com/penshort/shortlink/internal/repository"
)

func (r *Repository) UpsertTarget(ctx context.Context, t *model.Target) error {
	t.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO targets (entity_type, entity_id, bundle, label, published, canonical_url, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (entity_type, entity_id) DO UPDATE SET
			bundle = excluded.bundle,
			label = excluded.label,
			published = excluded.published,
			canonical_url = excluded.canonical_url,
			updated_at = excluded.updated_at`,
		t.EntityType, t.EntityID, t.Bundle, t.Label, t.Published, t.CanonicalURL, toMillis(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert target: %w", err)
	}
	return nil
}

func (r *Repository) GetTarget(ctx context.Context, entityType, entityID string) (*model.Target, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT entity_type, entity_id, bundle, label, published, canonical_url, updated_at
		FROM targets WHERE entity_type = ? AND entity_id = ?`, entityType, entityID)
	t, err := scanTarget(row)
	if isNoRows(err) {
		return nil, repository.ErrTargetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get target: %w", err)
	}
	return t, nil
}

func (r *Repository) DeleteTarget(ctx context.Context, entityType, entityID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM targets WHERE entity_type = ? AND entity_id = ?`, entityType, entityID)
	if err != nil {
		return fmt.Errorf("failed to delete target: %w", err)
	}
	return requireAffected(res, repository.ErrTargetNotFound)
}

func (r *Repository) ListPublishedTargets(ctx context.Context, entityType, bundle string) ([]*model.Target, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT entity_type, entity_id, bundle, label, published, canonical_url, updated_at
		FROM targets
		WHERE entity_type = ? AND published = 1 AND (? = '' OR bundle = ?)
		ORDER BY entity_id`, entityType, bundle, bundle)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer rows.Close()

	var targets []*model.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

func (r *Repository) UpsertAlias(ctx context.Context, a *model.PathAlias) error {
	a.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO path_aliases (alias, system_path, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (alias) DO UPDATE SET system_path = excluded.system_path, updated_at = excluded.updated_at`,
		a.Alias, a.SystemPath, toMillis(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert alias: %w", err)
	}
	return nil
}

func (r *Repository) DeleteAlias(ctx context.Context, alias string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM path_aliases WHERE alias = ?`, alias)
	if err != nil {
		return fmt.Errorf("failed to delete alias: %w", err)
	}
	return requireAffected(res, repository.ErrAliasNotFound)
}

func (r *Repository) ResolveAlias(ctx context.Context, alias string) (string, error) {
	var systemPath string
	err := r.db.QueryRowContext(ctx, `SELECT system_path FROM path_aliases WHERE alias = ?`, alias).Scan(&systemPath)
	if isNoRows(err) {
		return "", repository.ErrAliasNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve alias: %w", err)
	}
	return systemPath, nil
}

func (r *Repository) IsKnownSystemPath(ctx context.Context, path string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM path_aliases WHERE system_path = ?)
			 + (SELECT COUNT(*) FROM targets WHERE canonical_url = ?)`, path, path).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check system path: %w", err)
	}
	return n > 0, nil
}

func scanTarget(row rowScanner) (*model.Target, error) {
	var (
		t         model.Target
		updatedAt int64
	)
	if err := row.Scan(&t.EntityType, &t.EntityID, &t.Bundle, &t.Label, &t.Published, &t.CanonicalURL, &updatedAt); err != nil {
		return nil, err
	}
	t.UpdatedAt = fromMillis(updatedAt)
	return &t, nil
}
