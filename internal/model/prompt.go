package model

import "time"

// PromptVersion is one version of a prompt template. The id is stable
// across versions; text changes bump the minor version and append a new
// entry to the catalog history.
type PromptVersion struct {
	PromptID   string    `json:"prompt_id"`
	Text       string    `json:"text"`
	Version    string    `json:"version"`
	Task       string    `json:"task"`
	SafetyTags []string  `json:"safety_tags"`
	Creator    string    `json:"creator,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
