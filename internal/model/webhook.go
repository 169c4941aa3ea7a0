package model

import (
	"slices"
	"time"
)

// EventType names a maintenance event delivered to the host site webhook.
type EventType string

const (
	EventShortlinksExpired  EventType = "shortlinks.expired"
	EventDestinationsBroken EventType = "destinations.broken"
)

// ValidEventTypes contains all valid event types.
var ValidEventTypes = []EventType{EventShortlinksExpired, EventDestinationsBroken}

// IsValidEventType checks if an event type is valid.
func IsValidEventType(et EventType) bool {
	return slices.Contains(ValidEventTypes, et)
}

// WebhookEvent is the JSON body of a webhook delivery.
type WebhookEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Data      any       `json:"data"`
}

// ShortlinksExpiredData is the payload of EventShortlinksExpired.
type ShortlinksExpiredData struct {
	Count int     `json:"count"`
	IDs   []int64 `json:"ids"`
}

// DestinationsBrokenData is the payload of EventDestinationsBroken.
// Issues are ordered by shortlink id.
type DestinationsBrokenData struct {
	Count  int                `json:"count"`
	Issues []DestinationIssue `json:"issues"`
}
