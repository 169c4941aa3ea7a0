package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/penshort/shortlink/internal/model"
	"github.com/penshort/shortlink/internal/repository"
)

const shortlinkColumns = `id, uuid, path, label, description, target_entity_type, target_entity_id,
	destination_override, parameter_set_id, enabled, click_count, last_accessed,
	expires_at, max_clicks, expire_if_inactive_days, has_broken_destination, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Repository) CreateShortlink(ctx context.Context, s *model.Shortlink) error {
	if s.UUID == "" {
		s.UUID = uuid.NewString()
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	query := `INSERT INTO shortlinks (uuid, path, label, description, target_entity_type, target_entity_id,
			destination_override, parameter_set_id, enabled, click_count, last_accessed, expires_at,
			max_clicks, expire_if_inactive_days, has_broken_destination, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query,
		s.UUID, s.Path, s.Label, s.Description,
		nullableString(s.TargetEntityType), nullableString(s.TargetEntityID),
		nullableString(s.DestinationOverride), nullableString(s.ParameterSetID),
		s.Enabled, s.ClickCount, nullableMillis(s.LastAccessed), nullableMillis(s.ExpiresAt),
		s.MaxClicks, s.ExpireIfInactiveDays, s.HasBrokenDestination,
		toMillis(s.CreatedAt), toMillis(s.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err, "shortlinks.path") {
			return repository.ErrPathExists
		}
		return fmt.Errorf("failed to create shortlink: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read shortlink id: %w", err)
	}
	s.ID = id
	return nil
}

func (r *Repository) GetShortlink(ctx context.Context, id int64) (*model.Shortlink, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+shortlinkColumns+` FROM shortlinks WHERE id = ?`, id)
	s, err := scanShortlink(row)
	if isNoRows(err) {
		return nil, repository.ErrShortlinkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shortlink: %w", err)
	}
	return s, nil
}

func (r *Repository) GetEnabledShortlinkByPath(ctx context.Context, path string) (*model.Shortlink, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+shortlinkColumns+` FROM shortlinks WHERE path = ? AND enabled = 1 ORDER BY id LIMIT 1`, path)
	s, err := scanShortlink(row)
	if isNoRows(err) {
		return nil, repository.ErrShortlinkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shortlink by path: %w", err)
	}
	return s, nil
}

func (r *Repository) PathExists(ctx context.Context, path string, excludeID int64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM shortlinks WHERE path = ? AND id <> ?`, path, excludeID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check path: %w", err)
	}
	return n > 0, nil
}

func (r *Repository) UpdateShortlink(ctx context.Context, s *model.Shortlink) error {
	s.UpdatedAt = time.Now().UTC()

	query := `UPDATE shortlinks SET path = ?, label = ?, description = ?, target_entity_type = ?,
			target_entity_id = ?, destination_override = ?, parameter_set_id = ?, enabled = ?,
			expires_at = ?, max_clicks = ?, expire_if_inactive_days = ?, updated_at = ?
		WHERE id = ?`

	res, err := r.db.ExecContext(ctx, query,
		s.Path, s.Label, s.Description,
		nullableString(s.TargetEntityType), nullableString(s.TargetEntityID),
		nullableString(s.DestinationOverride), nullableString(s.ParameterSetID),
		s.Enabled, nullableMillis(s.ExpiresAt), s.MaxClicks, s.ExpireIfInactiveDays,
		toMillis(s.UpdatedAt), s.ID,
	)
	if err != nil {
		if isUniqueViolation(err, "shortlinks.path") {
			return repository.ErrPathExists
		}
		return fmt.Errorf("failed to update shortlink: %w", err)
	}
	return requireAffected(res, repository.ErrShortlinkNotFound)
}

func (r *Repository) DeleteShortlink(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM shortlinks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete shortlink: %w", err)
	}
	return requireAffected(res, repository.ErrShortlinkNotFound)
}

func (r *Repository) ListShortlinks(ctx context.Context, filter repository.ShortlinkFilter, afterID int64, limit int) ([]*model.Shortlink, error) {
	query := `SELECT ` + shortlinkColumns + ` FROM shortlinks WHERE id > ?`
	args := []any{afterID}

	if filter.Enabled != nil {
		query += " AND enabled = ?"
		args = append(args, *filter.Enabled)
	}
	if filter.Broken != nil {
		query += " AND has_broken_destination = ?"
		args = append(args, *filter.Broken)
	}
	if filter.TargetEntityType != "" {
		query += " AND target_entity_type = ?"
		args = append(args, filter.TargetEntityType)
	}
	if filter.TargetEntityID != "" {
		query += " AND target_entity_id = ?"
		args = append(args, filter.TargetEntityID)
	}
	if filter.ParameterSetID != "" {
		query += " AND parameter_set_id = ?"
		args = append(args, filter.ParameterSetID)
	}
	query += " ORDER BY id LIMIT ?"
	args = append(args, limit)

	return r.queryShortlinks(ctx, query, args...)
}

func (r *Repository) ListEnabledShortlinkIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM shortlinks WHERE enabled = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled shortlinks: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repository) ShortlinksForTarget(ctx context.Context, entityType, entityID string) ([]*model.Shortlink, error) {
	return r.queryShortlinks(ctx,
		`SELECT `+shortlinkColumns+` FROM shortlinks WHERE target_entity_type = ? AND target_entity_id = ? ORDER BY id`,
		entityType, entityID)
}

func (r *Repository) DeleteShortlinksForTarget(ctx context.Context, entityType, entityID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM shortlinks WHERE target_entity_type = ? AND target_entity_id = ?`, entityType, entityID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete target shortlinks: %w", err)
	}
	return res.RowsAffected()
}

func (r *Repository) ShortlinkExistsForTarget(ctx context.Context, entityType, entityID, parameterSetID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM shortlinks
		WHERE target_entity_type = ? AND target_entity_id = ? AND COALESCE(parameter_set_id, '') = ?`,
		entityType, entityID, parameterSetID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check target shortlink: %w", err)
	}
	return n > 0, nil
}

func (r *Repository) RecordAccess(ctx context.Context, id int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE shortlinks SET click_count = click_count + 1, last_accessed = ? WHERE id = ?`,
		toMillis(at), id)
	if err != nil {
		return fmt.Errorf("failed to record access: %w", err)
	}
	return requireAffected(res, repository.ErrShortlinkNotFound)
}

func (r *Repository) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE shortlinks SET enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, toMillis(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to set shortlink status: %w", err)
	}
	return requireAffected(res, repository.ErrShortlinkNotFound)
}

func (r *Repository) ReplaceBrokenFlags(ctx context.Context, ids []int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `UPDATE shortlinks SET has_broken_destination = 0 WHERE has_broken_destination = 1`); err != nil {
		return fmt.Errorf("failed to clear broken flags: %w", err)
	}

	if len(ids) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
		args := make([]any, len(ids))
		for i, id := range ids {
			args[i] = id
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE shortlinks SET has_broken_destination = 1 WHERE id IN (`+placeholders+`)`, args...); err != nil {
			return fmt.Errorf("failed to set broken flags: %w", err)
		}
	}

	return tx.Commit()
}

func (r *Repository) queryShortlinks(ctx context.Context, query string, args ...any) ([]*model.Shortlink, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
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
	return out, rows.Err()
}

func scanShortlink(row rowScanner) (*model.Shortlink, error) {
	var (
		s                                  model.Shortlink
		targetType, targetID, override, ps sql.NullString
		lastAccessed, expiresAt            sql.NullInt64
		createdAt, updatedAt               int64
	)
	err := row.Scan(
		&s.ID, &s.UUID, &s.Path, &s.Label, &s.Description,
		&targetType, &targetID, &override, &ps,
		&s.Enabled, &s.ClickCount, &lastAccessed, &expiresAt,
		&s.MaxClicks, &s.ExpireIfInactiveDays, &s.HasBrokenDestination,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.TargetEntityType = targetType.String
	s.TargetEntityID = targetID.String
	s.DestinationOverride = override.String
	s.ParameterSetID = ps.String
	s.LastAccessed = timePtr(lastAccessed)
	s.ExpiresAt = timePtr(expiresAt)
	s.CreatedAt = fromMillis(createdAt)
	s.UpdatedAt = fromMillis(updatedAt)
	return &s, nil
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
