package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/penshort/shortlink/internal/model"
)

// BulkInsert inserts click events with idempotency via ON CONFLICT DO NOTHING.
func (r *Repository) BulkInsert(ctx context.Context, events []*model.ClickEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	query := `
		INSERT INTO click_events (id, event_id, shortlink_id, referrer, user_agent, ip_hash, clicked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id) DO NOTHING
	`

	for _, event := range events {
		batch.Queue(query,
			event.ID,
			event.EventID,
			event.ShortlinkID,
			nullableString(event.Referrer),
			nullableString(event.UserAgent),
			nullableString(event.IPHash),
			event.Timestamp,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(events); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert event %d: %w", i, err)
		}
	}

	return nil
}

// TotalClicks counts click events within r.
func (r *Repository) TotalClicks(ctx context.Context, tr model.TimeRange) (int64, error) {
	where, args := timeRangeClause(tr, 1)

	var total int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM click_events WHERE TRUE`+where, args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("query total clicks: %w", err)
	}
	return total, nil
}

// TopShortlinks returns the shortlinks with the most click events within r.
func (r *Repository) TopShortlinks(ctx context.Context, limit int, tr model.TimeRange) ([]model.ShortlinkClicks, error) {
	where, args := timeRangeClause(tr, 1)
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT c.shortlink_id, COALESCE(s.path, ''), COALESCE(s.label, ''), COUNT(*) AS clicks
		FROM click_events c
		LEFT JOIN shortlinks s ON s.id = c.shortlink_id
		WHERE TRUE%s
		GROUP BY c.shortlink_id, s.path, s.label
		ORDER BY clicks DESC, c.shortlink_id ASC
		LIMIT $%d
	`, where, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query top shortlinks: %w", err)
	}
	defer rows.Close()

	var out []model.ShortlinkClicks
	for rows.Next() {
		var c model.ShortlinkClicks
		if err := rows.Scan(&c.ShortlinkID, &c.Path, &c.Label, &c.Clicks); err != nil {
			return nil, fmt.Errorf("scan top shortlink: %w", err)
		}
		out = append(out, c)
	}

	return out, rows.Err()
}

// RecentClicks returns the newest click events.
func (r *Repository) RecentClicks(ctx context.Context, limit int) ([]*model.ClickEvent, error) {
	query := `
		SELECT id, event_id, shortlink_id, COALESCE(referrer, ''), COALESCE(user_agent, ''),
			   COALESCE(ip_hash, ''), clicked_at
		FROM click_events
		ORDER BY clicked_at DESC, id DESC
		LIMIT $1
	`
	return r.queryClicks(ctx, query, limit)
}

// ClicksByShortlink returns the click events of one shortlink within r, newest first.
func (r *Repository) ClicksByShortlink(ctx context.Context, shortlinkID int64, tr model.TimeRange) ([]*model.ClickEvent, error) {
	where, args := timeRangeClause(tr, 2)
	args = append([]any{shortlinkID}, args...)

	query := `
		SELECT id, event_id, shortlink_id, COALESCE(referrer, ''), COALESCE(user_agent, ''),
			   COALESCE(ip_hash, ''), clicked_at
		FROM click_events
		WHERE shortlink_id = $1` + where + `
		ORDER BY clicked_at DESC, id DESC
	`
	return r.queryClicks(ctx, query, args...)
}

// PurgeClicksBefore deletes click events older than cutoff.
func (r *Repository) PurgeClicksBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM click_events WHERE clicked_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge click events: %w", err)
	}
	return result.RowsAffected(), nil
}

func (r *Repository) queryClicks(ctx context.Context, query string, args ...any) ([]*model.ClickEvent, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query click events: %w", err)
	}
	defer rows.Close()

	var events []*model.ClickEvent
	for rows.Next() {
		var e model.ClickEvent
		if err := rows.Scan(&e.ID, &e.EventID, &e.ShortlinkID, &e.Referrer, &e.UserAgent, &e.IPHash, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan click event: %w", err)
		}
		events = append(events, &e)
	}

	return events, rows.Err()
}

// timeRangeClause renders the open-ended bounds of tr starting at placeholder $start.
func timeRangeClause(tr model.TimeRange, start int) (string, []any) {
	var (
		clause string
		args   []any
	)
	if tr.From != nil {
		clause += fmt.Sprintf(" AND clicked_at >= $%d", start+len(args))
		args = append(args, *tr.From)
	}
	if tr.To != nil {
		clause += fmt.Sprintf(" AND clicked_at < $%d", start+len(args))
		args = append(args, *tr.To)
	}
	return clause, args
}
