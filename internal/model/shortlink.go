// Package model defines domain entities for the application.
package model

import (
	"strings"
	"time"
)

// Shortlink maps a short vanity path to a target resource or an override URL.
type Shortlink struct {
	ID                   int64      `json:"id"`
	UUID                 string     `json:"uuid"`
	Path                 string     `json:"path"`
	Label                string     `json:"label"`
	Description          string     `json:"description,omitempty"`
	TargetEntityType     string     `json:"target_entity_type,omitempty"`
	TargetEntityID       string     `json:"target_entity_id,omitempty"`
	DestinationOverride  string     `json:"destination_override,omitempty"`
	ParameterSetID       string     `json:"parameter_set_id,omitempty"`
	Enabled              bool       `json:"enabled"`
	ClickCount           int64      `json:"click_count"`
	LastAccessed         *time.Time `json:"last_accessed,omitempty"`
	ExpiresAt            *time.Time `json:"expires_at,omitempty"`
	MaxClicks            int64      `json:"max_clicks"`
	ExpireIfInactiveDays int        `json:"expire_if_inactive_days"`
	HasBrokenDestination bool       `json:"has_broken_destination"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// HasTarget reports whether the shortlink references a target resource.
func (s *Shortlink) HasTarget() bool {
	return s.TargetEntityType != "" && s.TargetEntityID != ""
}

// HasOverride reports whether the shortlink carries a destination override.
func (s *Shortlink) HasOverride() bool {
	return strings.TrimSpace(s.DestinationOverride) != ""
}

// Slug returns the path without its prefix.
func (s *Shortlink) Slug() string {
	if i := strings.LastIndex(s.Path, "/"); i >= 0 {
		return s.Path[i+1:]
	}
	return s.Path
}

// Prefix returns the path prefix, or "" when the path has none.
func (s *Shortlink) Prefix() string {
	if i := strings.LastIndex(s.Path, "/"); i >= 0 {
		return s.Path[:i]
	}
	return ""
}

// FullPath joins a prefix and slug the way shortlink paths are stored.
func FullPath(prefix, slug string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return slug
	}
	return prefix + "/" + slug
}
