package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/penshort/shortlink/internal/model"
	"github.com/penshort/shortlink/internal/repository"
)

const parameterSetColumns = `id, label, description, enabled, source, medium, campaign, term, content,
	custom_parameters, created_at, updated_at`

func (r *Repository) CreateParameterSet(ctx context.Context, set *model.ParameterSet) error {
	now := time.Now().UTC()
	set.CreatedAt = now
	set.UpdatedAt = now

	custom, err := encodeCustom(set.CustomParameters)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO parameter_sets (`+parameterSetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		set.ID, set.Label, set.Description, set.Enabled,
		set.Source, set.Medium, set.Campaign, set.Term, set.Content,
		custom, toMillis(set.CreatedAt), toMillis(set.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err, "parameter_sets.id") {
			return repository.ErrParameterSetExists
		}
		return fmt.Errorf("failed to create parameter set: %w", err)
	}
	return nil
}

func (r *Repository) GetParameterSet(ctx context.Context, id string) (*model.ParameterSet, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+parameterSetColumns+` FROM parameter_sets WHERE id = ?`, id)
	set, err := scanParameterSet(row)
	if isNoRows(err) {
		return nil, repository.ErrParameterSetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get parameter set: %w", err)
	}
	return set, nil
}

func (r *Repository) UpdateParameterSet(ctx context.Context, set *model.ParameterSet) error {
	set.UpdatedAt = time.Now().UTC()

	custom, err := encodeCustom(set.CustomParameters)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `UPDATE parameter_sets
		SET label = ?, description = ?, enabled = ?, source = ?, medium = ?, campaign = ?,
			term = ?, content = ?, custom_parameters = ?, updated_at = ?
		WHERE id = ?`,
		set.Label, set.Description, set.Enabled, set.Source, set.Medium, set.Campaign,
		set.Term, set.Content, custom, toMillis(set.UpdatedAt), set.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update parameter set: %w", err)
	}
	return requireAffected(res, repository.ErrParameterSetNotFound)
}

// DeleteParameterSet removes a set and detaches it from shortlinks in one transaction.
func (r *Repository) DeleteParameterSet(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM parameter_sets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete parameter set: %w", err)
	}
	if err := requireAffected(res, repository.ErrParameterSetNotFound); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE shortlinks SET parameter_set_id = NULL WHERE parameter_set_id = ?`, id); err != nil {
		return fmt.Errorf("failed to detach parameter set: %w", err)
	}
	return tx.Commit()
}

func (r *Repository) ListParameterSets(ctx context.Context) ([]*model.ParameterSet, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+parameterSetColumns+` FROM parameter_sets ORDER BY label, id`)
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
	return sets, rows.Err()
}

func scanParameterSet(row rowScanner) (*model.ParameterSet, error) {
	var (
		set                  model.ParameterSet
		custom               string
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&set.ID, &set.Label, &set.Description, &set.Enabled,
		&set.Source, &set.Medium, &set.Campaign, &set.Term, &set.Content,
		&custom, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(custom), &set.CustomParameters); err != nil {
		return nil, fmt.Errorf("failed to decode custom parameters of %q: %w", set.ID, err)
	}
	set.CreatedAt = fromMillis(createdAt)
	set.UpdatedAt = fromMillis(updatedAt)
	return &set, nil
}

func encodeCustom(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to encode custom parameters: %w", err)
	}
	return string(b), nil
}
