package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/penshort/shortlink/internal/model"
)

// BulkInsert stores events in one transaction. Duplicate event ids are ignored.
func (r *Repository) BulkInsert(ctx context.Context, events []*model.ClickEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO click_events
		(id, event_id, shortlink_id, referrer, user_agent, ip_hash, clicked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, event := range events {
		if _, err := stmt.ExecContext(ctx,
			event.ID, event.EventID, event.ShortlinkID,
			nullableString(event.Referrer), nullableString(event.UserAgent), nullableString(event.IPHash),
			toMillis(event.Timestamp),
		); err != nil {
			return fmt.Errorf("batch insert event %d: %w", i, err)
		}
	}

	return tx.Commit()
}

func (r *Repository) TotalClicks(ctx context.Context, tr model.TimeRange) (int64, error) {
	where, args := timeRangeClause(tr)
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM click_events WHERE 1 = 1`+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("query total clicks: %w", err)
	}
	return total, nil
}

func (r *Repository) TopShortlinks(ctx context.Context, limit int, tr model.TimeRange) ([]model.ShortlinkClicks, error) {
	where, args := timeRangeClause(tr)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, `
		SELECT c.shortlink_id, COALESCE(s.path, ''), COALESCE(s.label, ''), COUNT(*) AS clicks
		FROM click_events c
		LEFT JOIN shortlinks s ON s.id = c.shortlink_id
		WHERE 1 = 1`+where+`
		GROUP BY c.shortlink_id
		ORDER BY clicks DESC, c.shortlink_id ASC
		LIMIT ?`, args...)
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

func (r *Repository) RecentClicks(ctx context.Context, limit int) ([]*model.ClickEvent, error) {
	return r.queryClicks(ctx, `SELECT id, event_id, shortlink_id, referrer, user_agent, ip_hash, clicked_at
		FROM click_events ORDER BY clicked_at DESC, id DESC LIMIT ?`, limit)
}

func (r *Repository) ClicksByShortlink(ctx context.Context, shortlinkID int64, tr model.TimeRange) ([]*model.ClickEvent, error) {
	where, args := timeRangeClause(tr)
	args = append([]any{shortlinkID}, args...)
	return r.queryClicks(ctx, `SELECT id, event_id, shortlink_id, referrer, user_agent, ip_hash, clicked_at
		FROM click_events WHERE shortlink_id = ?`+where+` ORDER BY clicked_at DESC, id DESC`, args...)
}

func (r *Repository) PurgeClicksBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM click_events WHERE clicked_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge click events: %w", err)
	}
	return res.RowsAffected()
}

func (r *Repository) queryClicks(ctx context.Context, query string, args ...any) ([]*model.ClickEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query click events: %w", err)
	}
	defer rows.Close()

	var events []*model.ClickEvent
	for rows.Next() {
		var (
			e                         model.ClickEvent
			referrer, userAgent, hash sql.NullString
			clickedAt                 int64
		)
		if err := rows.Scan(&e.ID, &e.EventID, &e.ShortlinkID, &referrer, &userAgent, &hash, &clickedAt); err != nil {
			return nil, fmt.Errorf("scan click event: %w", err)
		}
		e.Referrer = referrer.String
		e.UserAgent = userAgent.String
		e.IPHash = hash.String
		e.Timestamp = fromMillis(clickedAt)
		events = append(events, &e)
	}
	return events, rows.Err()
}

func timeRangeClause(tr model.TimeRange) (string, []any) {
	var (
		clause string
		args   []any
	)
	if tr.From != nil {
		clause += " AND clicked_at >= ?"
		args = append(args, toMillis(*tr.From))
	}
	if tr.To != nil {
		clause += " AND clicked_at < ?"
		args = append(args, toMillis(*tr.To))
	}
	return clause, args
}
