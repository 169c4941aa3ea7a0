package model

import "time"

// Click event field limits.
const (
	MaxReferrerLength  = 2048
	MaxUserAgentLength = 512
)

// ClickEvent is a single recorded redirect.
type ClickEvent struct {
	ID          string    `json:"id"`       // ULID
	EventID     string    `json:"event_id"` // idempotency key (stream message id)
	ShortlinkID int64     `json:"shortlink_id"`
	Referrer    string    `json:"referrer,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
	IPHash      string    `json:"ip_hash,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// ShortlinkClicks is a per-shortlink click aggregate.
type ShortlinkClicks struct {
	ShortlinkID int64  `json:"shortlink_id"`
	Path        string `json:"path"`
	Label       string `json:"label"`
	Clicks      int64  `json:"clicks"`
}

// TimeRange bounds reporting queries. Nil ends are open.
type TimeRange struct {
	From *time.Time
	To   *time.Time
}
