package model

import "time"

// ParameterSet is a reusable bundle of UTM tracking parameters.
type ParameterSet struct {
	ID               string    `json:"id"`
	Label            string    `json:"label"`
	Description      string    `json:"description,omitempty"`
	Enabled          bool      `json:"enabled"`
	Source           string    `json:"source,omitempty"`
	Medium           string    `json:"medium,omitempty"`
	Campaign         string    `json:"campaign,omitempty"`
	Term             string    `json:"term,omitempty"`
	Content          string    `json:"content,omitempty"`
	CustomParameters []string  `json:"custom_parameters,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
