package model

import "time"

// Drift classifications ordered by severity.
const (
	DriftStable   = "stable"
	DriftDrifting = "drifting"
	DriftDecayed  = "decayed"
)

// DriftState is the per-combination memory of the sentinel: the last
// answer seen for a key and how it was classified. Updated on every
// observation.
type DriftState struct {
	Answer    string    `json:"answer"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DriftResult is the classification of one observation against the
// previous answer for its key.
type DriftResult struct {
	DriftID     string    `json:"drift_id"`
	Domain      string    `json:"domain"`
	PromptID    string    `json:"prompt_id"`
	Model       string    `json:"model"`
	Timestamp   time.Time `json:"ts_iso"`
	Similarity  float64   `json:"similarity_prev"`
	DriftScore  float64   `json:"drift_score"`
	Status      string    `json:"status"`
	Explanation string    `json:"explanation"`
}
