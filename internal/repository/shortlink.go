package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/penshort/shortlink/internal/model"
)

const shortlinkColumns = `
	id, uuid::text, path, label, description, target_entity_type, target_entity_id,
	destination_override, parameter_set_id, enabled, click_count, last_accessed,
	expires_at, max_clicks, expire_if_inactive_days, has_broken_destination, created_at, updated_at`

// CreateShortlink inserts a shortlink, assigning its id and uuid.
func (r *Repository) CreateShortlink(ctx context.Context, s *model.Shortlink) error {
	if s.UUID == "" {
		s.UUID = uuid.NewString()
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	query := `
		INSERT INTO shortlinks (
			uuid, path, label, description, target_entity_type, target_entity_id,
			destination_override, parameter_set_id, enabled, click_count, last_accessed,
			expires_at, max_clicks, expire_if_inactive_days, has_broken_destination, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, query,
		s.UUID,
		s.Path,
		s.Label,
		s.Description,
		nullableString(s.TargetEntityType),
		nullableString(s.TargetEntityID),
		nullableString(s.DestinationOverride),
		nullableString(s.ParameterSetID),
		s.Enabled,
		s.ClickCount,
		s.LastAccessed,
		s.ExpiresAt,
		s.MaxClicks,
		s.ExpireIfInactiveDays,
		s.HasBrokenDestination,
		s.CreatedAt,
		s.UpdatedAt,
	).Scan(&s.ID)
	if err != nil {
		if isUniqueViolation(err, shortlinkPathConstraint) {
			return ErrPathExists
		}
		return fmt.Errorf("failed to create shortlink: %w", err)
	}

	return nil
}

// GetShortlink retrieves a shortlink by id.
func (r *Repository) GetShortlink(ctx context.Context, id int64) (*model.Shortlink, error) {
	query := `SELECT ` + shortlinkColumns + ` FROM shortlinks WHERE id = $1`

	s, err := scanShortlink(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrShortlinkNotFound
		}
		return nil, fmt.Errorf("failed to get shortlink: %w", err)
	}
	return s, nil
}

// GetEnabledShortlinkByPath retrieves the enabled shortlink owning path.
// This is the hot path for redirects.
func (r *Repository) GetEnabledShortlinkByPath(ctx context.Context, path string) (*model.Shortlink, error) {
	query := `SELECT ` + shortlinkColumns + `
		FROM shortlinks
		WHERE path = $1 AND enabled
		ORDER BY id ASC
		LIMIT 1`

	s, err := scanShortlink(r.pool.QueryRow(ctx, query, path))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrShortlinkNotFound
		}
		return nil, fmt.Errorf("failed to get shortlink by path: %w", err)
	}
	return s, nil
}

// PathExists reports whether a shortlink other than excludeID owns path.
func (r *Repository) PathExists(ctx context.Context, path string, excludeID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM shortlinks WHERE path = $1 AND id <> $2)`,
		path, excludeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check path: %w", err)
	}
	return exists, nil
}

// UpdateShortlink updates a shortlink's editable fields.
// Click counters and the broken flag are owned by RecordAccess and ReplaceBrokenFlags.
func (r *Repository) UpdateShortlink(ctx context.Context, s *model.Shortlink) error {
	s.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE shortlinks
		SET path = $2, label = $3, description = $4, target_entity_type = $5, target_entity_id = $6,
			destination_override = $7, parameter_set_id = $8, enabled = $9, expires_at = $10,
			max_clicks = $11, expire_if_inactive_days = $12, updated_at = $13
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		s.ID,
		s.Path,
		s.Label,
		s.Description,
		nullableString(s.TargetEntityType),
		nullableString(s.TargetEntityID),
		nullableString(s.DestinationOverride),
		nullableString(s.ParameterSetID),
		s.Enabled,
		s.ExpiresAt,
		s.MaxClicks,
		s.ExpireIfInactiveDays,
		s.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, shortlinkPathConstraint) {
			return ErrPathExists
		}
		return fmt.Errorf("failed to update shortlink: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrShortlinkNotFound
	}
	return nil
}

// DeleteShortlink removes a shortlink.
func (r *Repository) DeleteShortlink(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM shortlinks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete shortlink: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrShortlinkNotFound
	}
	return nil
}

// ListShortlinks returns up to limit shortlinks with id > afterID, ordered by id.
func (r *Repository) ListShortlinks(ctx context.Context, filter ShortlinkFilter, afterID int64, limit int) ([]*model.Shortlink, error) {
	query := `SELECT ` + shortlinkColumns + ` FROM shortlinks WHERE id > $1`
	args := []any{afterID}
	argIndex := 2

	if filter.Enabled != nil {
		query += fmt.Sprintf(" AND enabled = $%d", argIndex)
		args = append(args, *filter.Enabled)
		argIndex++
	}
	if filter.Broken != nil {
		query += fmt.Sprintf(" AND has_broken_destination = $%d", argIndex)
		args = append(args, *filter.Broken)
		argIndex++
	}
	if filter.TargetEntityType != "" {
		query += fmt.Sprintf(" AND target_entity_type = $%d", argIndex)
		args = append(args, filter.TargetEntityType)
		argIndex++
	}
	if filter.TargetEntityID != "" {
		query += fmt.Sprintf(" AND target_entity_id = $%d", argIndex)
		args = append(args, filter.TargetEntityID)
		argIndex++
	}
	if filter.ParameterSetID != "" {
		query += fmt.Sprintf(" AND parameter_set_id = $%d", argIndex)
		args = append(args, filter.ParameterSetID)
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY id ASC LIMIT $%d", argIndex)
	args = append(args, limit)

	return r.queryShortlinks(ctx, query, args...)
}

// ListEnabledShortlinkIDs returns the ids of all enabled shortlinks.
func (r *Repository) ListEnabledShortlinkIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM shortlinks WHERE enabled ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled shortlinks: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan shortlink id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shortlink ids: %w", err)
	}
	return ids, nil
}

// ShortlinksForTarget returns every shortlink referencing a target.
func (r *Repository) ShortlinksForTarget(ctx context.Context, entityType, entityID string) ([]*model.Shortlink, error) {
	query := `SELECT ` + shortlinkColumns + `
		FROM shortlinks
		WHERE target_entity_type = $1 AND target_entity_id = $2
		ORDER BY id`
	return r.queryShortlinks(ctx, query, entityType, entityID)
}

// DeleteShortlinksForTarget removes every shortlink referencing a target.
func (r *Repository) DeleteShortlinksForTarget(ctx context.Context, entityType, entityID string) (int64, error) {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM shortlinks WHERE target_entity_type = $1 AND target_entity_id = $2`,
		entityType, entityID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete target shortlinks: %w", err)
	}
	return result.RowsAffected(), nil
}

// ShortlinkExistsForTarget reports whether a target already has a shortlink for a parameter set.
// An empty parameterSetID matches shortlinks without a set.
func (r *Repository) ShortlinkExistsForTarget(ctx context.Context, entityType, entityID, parameterSetID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM shortlinks
			WHERE target_entity_type = $1 AND target_entity_id = $2
			  AND COALESCE(parameter_set_id, '') = $3
		)`,
		entityType, entityID, parameterSetID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check target shortlink: %w", err)
	}
	return exists, nil
}

// RecordAccess increments the click counter and stamps last_accessed.
// The increment is a single statement, so concurrent redirects do not lose updates.
func (r *Repository) RecordAccess(ctx context.Context, id int64, at time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE shortlinks
		SET click_count = click_count + 1, last_accessed = $2
		WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("failed to record access: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrShortlinkNotFound
	}
	return nil
}

// SetEnabled sets the status flag of a shortlink.
func (r *Repository) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE shortlinks SET enabled = $2, updated_at = NOW() WHERE id = $1`,
		id, enabled,
	)
	if err != nil {
		return fmt.Errorf("failed to set shortlink status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrShortlinkNotFound
	}
	return nil
}

// ReplaceBrokenFlags clears every broken flag and sets it for exactly ids.
func (r *Repository) ReplaceBrokenFlags(ctx context.Context, ids []int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`UPDATE shortlinks SET has_broken_destination = FALSE WHERE has_broken_destination`,
	); err != nil {
		return fmt.Errorf("failed to clear broken flags: %w", err)
	}

	if len(ids) > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE shortlinks SET has_broken_destination = TRUE WHERE id = ANY($1)`,
			pq.Array(ids),
		); err != nil {
			return fmt.Errorf("failed to set broken flags: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit broken flags: %w", err)
	}
	return nil
}

func (r *Repository) queryShortlinks(ctx context.Context, query string, args ...any) ([]*model.Shortlink, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query shortlinks: %w", err)
	}
	defer rows.Close()

	var out []*model.Shortlink
	for rows.Next() {
		s, err := scanShortlink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shortlink: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shortlinks: %w", err)
	}
	return out, nil
}

// scanShortlink scans a single row; pgx.Rows satisfies pgx.Row.
func scanShortlink(row pgx.Row) (*model.Shortlink, error) {
	var (
		s                                  model.Shortlink
		targetType, targetID, override, ps *string
	)
	err := row.Scan(
		&s.ID,
		&s.UUID,
		&s.Path,
		&s.Label,
		&s.Description,
		&targetType,
		&targetID,
		&override,
		&ps,
		&s.Enabled,
		&s.ClickCount,
		&s.LastAccessed,
		&s.ExpiresAt,
		&s.MaxClicks,
		&s.ExpireIfInactiveDays,
		&s.HasBrokenDestination,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.TargetEntityType = deref(targetType)
	s.TargetEntityID = deref(targetID)
	s.DestinationOverride = deref(override)
	s.ParameterSetID = deref(ps)
	return &s, nil
}

// nullableString returns nil for empty strings so they are stored as NULL.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
