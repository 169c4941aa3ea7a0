package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/penshort/shortlink/internal/model"
)

const parameterSetPKConstraint = "parameter_sets_pkey"

// CreateParameterSet inserts a parameter set. The id is caller-supplied.
func (r *Repository) CreateParameterSet(ctx context.Context, set *model.ParameterSet) error {
	now := time.Now().UTC()
	set.CreatedAt = now
	set.UpdatedAt = now

	query := `
		INSERT INTO parameter_sets (
			id, label, description, enabled, source, medium, campaign, term, content,
			custom_parameters, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.pool.Exec(ctx, query,
		set.ID,
		set.Label,
		set.Description,
		set.Enabled,
		set.Source,
		set.Medium,
		set.Campaign,
		set.Term,
		set.Content,
		pq.Array(set.CustomParameters),
		set.CreatedAt,
		set.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, parameterSetPKConstraint) {
			return ErrParameterSetExists
		}
		return fmt.Errorf("failed to create parameter set: %w", err)
	}
	return nil
}

// GetParameterSet retrieves a parameter set by id.
func (r *Repository) GetParameterSet(ctx context.Context, id string) (*model.ParameterSet, error) {
	query := `
		SELECT id, label, description, enabled, source, medium, campaign, term, content,
			   custom_parameters, created_at, updated_at
		FROM parameter_sets
		WHERE id = $1
	`

	set, err := scanParameterSet(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrParameterSetNotFound
		}
		return nil, fmt.Errorf("failed to get parameter set: %w", err)
	}
	return set, nil
}

// UpdateParameterSet replaces every editable field of a parameter set.
func (r *Repository) UpdateParameterSet(ctx context.Context, set *model.ParameterSet) error {
	set.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE parameter_sets
		SET label = $2, description = $3, enabled = $4, source = $5, medium = $6,
			campaign = $7, term = $8, content = $9, custom_parameters = $10, updated_at = $11
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		set.ID,
		set.Label,
		set.Description,
		set.Enabled,
		set.Source,
		set.Medium,
		set.Campaign,
		set.Term,
		set.Content,
		pq.Array(set.CustomParameters),
		set.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update parameter set: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrParameterSetNotFound
	}
	return nil
}

// DeleteParameterSet removes a parameter set. Shortlinks referencing it fall back to no set.
func (r *Repository) DeleteParameterSet(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM parameter_sets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete parameter set: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrParameterSetNotFound
	}
	return nil
}

// ListParameterSets returns every parameter set ordered by label.
func (r *Repository) ListParameterSets(ctx context.Context) ([]*model.ParameterSet, error) {
	query := `
		SELECT id, label, description, enabled, source, medium, campaign, term, content,
			   custom_parameters, created_at, updated_at
		FROM parameter_sets
		ORDER BY label ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list parameter sets: %w", err)
	}
	defer rows.Close()

	var sets []*model.ParameterSet
	for rows.Next() {
		set, err := scanParameterSet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan parameter set: %w", err)
		}
		sets = append(sets, set)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating parameter sets: %w", err)
	}
	return sets, nil
}

func scanParameterSet(row pgx.Row) (*model.ParameterSet, error) {
	var (
		set    model.ParameterSet
		custom []string
	)
	err := row.Scan(
		&set.ID,
		&set.Label,
		&set.Description,
		&set.Enabled,
		&set.Source,
		&set.Medium,
		&set.Campaign,
		&set.Term,
		&set.Content,
		pq.Array(&custom),
		&set.CreatedAt,
		&set.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	set.CustomParameters = custom
	return &set, nil
}
