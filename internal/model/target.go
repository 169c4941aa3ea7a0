package model

import "time"

// Target is a content resource a shortlink can point to.
// Targets are owned by the host site and synced into the service.
type Target struct {
	EntityType   string    `json:"entity_type"`
	EntityID     string    `json:"entity_id"`
	Bundle       string    `json:"bundle,omitempty"`
	Label        string    `json:"label"`
	Published    bool      `json:"published"`
	CanonicalURL string    `json:"canonical_url"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PathAlias maps a public alias to a site system path.
type PathAlias struct {
	Alias      string    `json:"alias"`
	SystemPath string    `json:"system_path"`
	UpdatedAt  time.Time `json:"updated_at"`
}
