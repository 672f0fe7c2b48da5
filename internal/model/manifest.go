package model

import "time"

// Manifest lifecycle states.
const (
	ManifestOpen   = "open"
	ManifestClosed = "closed"
)

// Coverage tiers relative to the floor/target thresholds.
const (
	TierInvalid  = "invalid"
	TierDegraded = "degraded"
	TierHealthy  = "healthy"
)

// Observation lifecycle statuses. Terminal outcomes reuse the raw record
// statuses (success, failed, timeout, skipped).
const (
	ObsQueued  = "queued"
	ObsRunning = "running"
)

// Combo is one expected (domain, prompt, model) combination in a window.
type Combo struct {
	Domain   string `json:"domain"`
	PromptID string `json:"prompt_id"`
	Model    string `json:"model"`
}

// Observation tracks the outcome of one expected combination.
type Observation struct {
	RunID      string `json:"run_id"`
	Domain     string `json:"domain"`
	PromptID   string `json:"prompt_id"`
	Model      string `json:"model"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	LastError  string `json:"last_error,omitempty"`
	LatencyMS  int64  `json:"latency_ms,omitempty"`
	ResponseID string `json:"response_id,omitempty"`
}

// Key returns the combination key identifying this observation within
// its run.
func (o Observation) Key() Combo {
	return Combo{Domain: o.Domain, PromptID: o.PromptID, Model: o.Model}
}

// Manifest tracks expected versus observed combinations for one run
// window. Created open; coverage and tier are fixed once closed.
type Manifest struct {
	RunID          string     `json:"run_id"`
	WindowStart    time.Time  `json:"window_start"`
	WindowEnd      time.Time  `json:"window_end"`
	TargetCombos   int        `json:"target_combos"`
	MinFloor       float64    `json:"min_floor"`
	TargetCoverage float64    `json:"target_coverage"`
	ObservedOK     int        `json:"observed_ok"`
	ObservedFail   int        `json:"observed_fail"`
	Coverage       float64    `json:"coverage"`
	Tier           string     `json:"tier"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
}
