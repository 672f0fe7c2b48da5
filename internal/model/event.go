package model

import "time"

// Event types emitted for downstream aggregation and backfill consumers.
const (
	EventManifestOpened     = "manifest.opened"
	EventManifestClosed     = "manifest.closed"
	EventAggregationReady   = "aggregation.ready"
	EventAggregationSkipped = "aggregation.skipped"
	EventGapFillNeeded      = "gapfill.needed"
	EventDriftAlert         = "drift.alert"
)

// Event is one entry in the ordered downstream event log.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}
