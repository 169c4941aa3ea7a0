// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"strings"
	"time"

	"github.com/penshort/shortlink/internal/model"
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error    string   `json:"error"`
	Code     string   `json:"code"`
	Messages []string `json:"messages,omitempty"`
}

// CreateShortlinkRequest is the body of POST /api/v1/shortlinks.
type CreateShortlinkRequest struct {
	Label                string     `json:"label"`
	Description          string     `json:"description,omitempty"`
	TargetEntityType     string     `json:"target_entity_type,omitempty"`
	TargetEntityID       string     `json:"target_entity_id,omitempty"`
	DestinationOverride  string     `json:"destination_override,omitempty"`
	ParameterSetID       string     `json:"parameter_set_id,omitempty"`
	CustomSlug           string     `json:"custom_slug,omitempty"`
	Enabled              *bool      `json:"enabled,omitempty"`
	ExpiresAt            *time.Time `json:"expires_at,omitempty"`
	MaxClicks            int64      `json:"max_clicks,omitempty"`
	ExpireIfInactiveDays int        `json:"expire_if_inactive_days,omitempty"`
}

// UpdateShortlinkRequest is the body of PATCH /api/v1/shortlinks/{id}.
// Absent fields are left unchanged.
type UpdateShortlinkRequest struct {
	Label                *string    `json:"label,omitempty"`
	Description          *string    `json:"description,omitempty"`
	TargetEntityType     *string    `json:"target_entity_type,omitempty"`
	TargetEntityID       *string    `json:"target_entity_id,omitempty"`
	DestinationOverride  *string    `json:"destination_override,omitempty"`
	ParameterSetID       *string    `json:"parameter_set_id,omitempty"`
	CustomSlug           *string    `json:"custom_slug,omitempty"`
	Enabled              *bool      `json:"enabled,omitempty"`
	ExpiresAt            *time.Time `json:"expires_at,omitempty"`
	ClearExpiry          bool       `json:"clear_expiry,omitempty"`
	MaxClicks            *int64     `json:"max_clicks,omitempty"`
	ExpireIfInactiveDays *int       `json:"expire_if_inactive_days,omitempty"`
}

// ShortlinkResponse represents a shortlink in API responses.
type ShortlinkResponse struct {
	*model.Shortlink
	ShortURL string `json:"short_url"`
}

// ShortlinkListResponse represents a paginated list of shortlinks.
type ShortlinkListResponse struct {
	Data       []ShortlinkResponse `json:"data"`
	Pagination *Pagination         `json:"pagination"`
}

// Pagination provides cursor-based pagination info.
type Pagination struct {
	NextCursor int64 `json:"next_cursor,omitempty"`
	HasMore    bool  `json:"has_more"`
}

// GeneratedPathResponse is returned by POST /api/v1/generate-path.
type GeneratedPathResponse struct {
	Path     string `json:"path"`
	ShortURL string `json:"short_url"`
}

// ToShortlinkResponse converts a Shortlink to its API form.
func ToShortlinkResponse(s *model.Shortlink, siteURL string) ShortlinkResponse {
	return ShortlinkResponse{Shortlink: s, ShortURL: ShortURL(siteURL, s.Path)}
}

// ToShortlinkList converts a page of shortlinks.
func ToShortlinkList(links []*model.Shortlink, siteURL string) []ShortlinkResponse {
	out := make([]ShortlinkResponse, 0, len(links))
	for _, s := range links {
		out = append(out, ToShortlinkResponse(s, siteURL))
	}
	return out
}

// ShortURL joins the public site URL and a shortlink path.
func ShortURL(siteURL, path string) string {
	return strings.TrimRight(siteURL, "/") + "/" + strings.TrimLeft(path, "/")
}
