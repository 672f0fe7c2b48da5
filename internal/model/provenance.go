package model

import "time"

// Provenance entry statuses; one entry is appended per mapping attempt.
const (
	ProvOK          = "ok"
	ProvSkipped     = "skipped"
	ProvQuarantined = "quarantined"
)

// ProvenanceEntry is the audit record of one legacy-row mapping attempt.
// Append-only; entries are never mutated or deleted. NewIDRaw and
// NewIDNorm are empty for quarantined rows, and NewIDNorm is empty for
// idempotent skips.
type ProvenanceEntry struct {
	LegacySourceID string    `json:"legacy_source_id"`
	LegacyKey      string    `json:"legacy_primary_key"`
	NewIDRaw       string    `json:"new_id_raw,omitempty"`
	NewIDNorm      string    `json:"new_id_norm,omitempty"`
	IngestedAt     time.Time `json:"ingested_at"`
	MappingVersion string    `json:"mapping_version"`
	Checksum       string    `json:"checksum"`
	Status         string    `json:"status"`
	Reason         string    `json:"reason,omitempty"`
}
