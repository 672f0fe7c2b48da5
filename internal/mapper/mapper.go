// Package mapper replays legacy export rows through the canonical
// identity scheme. Every inbound row leaves a provenance entry; mapped
// rows are staged for promotion, duplicates are skipped, and rows that
// violate a guard are quarantined instead of aborting the batch.
package mapper

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/beargallbladder/domain-runner-sub003/internal/checksum"
	"github.com/beargallbladder/domain-runner-sub003/internal/model"
	"github.com/beargallbladder/domain-runner-sub003/internal/normalizer"
)

// BatchStats summarizes one ProcessBatch call. Every row lands in
// exactly one bucket.
type BatchStats struct {
	Total       int `json:"total"`
	Success     int `json:"success"`
	Skipped     int `json:"skipped"`
	Quarantined int `json:"quarantined"`
}

// Add folds another batch into the running totals.
func (s *BatchStats) Add(other BatchStats) {
	s.Total += other.Total
	s.Success += other.Success
	s.Skipped += other.Skipped
	s.Quarantined += other.Quarantined
}

// Mapper maps legacy rows onto raw and normalized records. The dedup set
// persists across batches, so re-running an export is idempotent until
// Reset is called. Safe for concurrent use.
type Mapper struct {
	mu         sync.Mutex
	cfg        *MappingConfig
	seen       map[string]struct{}
	stagedRaw  []model.RawRecord
	stagedNorm []model.NormalizedRecord
	provenance []model.ProvenanceEntry

	now func() time.Time
}

// New returns a mapper for one mapping config.
func New(cfg *MappingConfig) *Mapper {
	return &Mapper{
		cfg:  cfg,
		seen: make(map[string]struct{}),
		now:  time.Now,
	}
}

// MapRow maps a single legacy row. The returned records are nil when the
// row was skipped or quarantined; the provenance entry is always
// recorded, carrying the row checksum and the outcome.
func (m *Mapper) MapRow(row map[string]any) (*model.RawRecord, *model.NormalizedRecord, model.ProvenanceEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mapRow(row)
}

func (m *Mapper) mapRow(row map[string]any) (*model.RawRecord, *model.NormalizedRecord, model.ProvenanceEntry) {
	sum, err := checksum.Compute(row)
	if err != nil {
		return nil, nil, m.quarantine(row, "", "checksum failed: "+err.Error())
	}

	raw := stringVal(row[m.cfg.source("raw", "raw_response")])
	if limit := m.cfg.Guards.MaxRowSizeBytes; limit > 0 && len(raw) > limit {
		reason := fmt.Sprintf("row exceeds max size: %d bytes (limit %d)", len(raw), limit)
		return nil, nil, m.quarantine(row, sum, reason)
	}

	tsISO := stringVal(row[m.cfg.source("ts_iso", "timestamp")])
	if tsISO == "" {
		tsISO = m.now().UTC().Format(time.RFC3339)
	}
	ts, err := parseTimestamp(tsISO)
	if err != nil {
		return nil, nil, m.quarantine(row, sum, fmt.Sprintf("invalid timestamp %q", tsISO))
	}

	modelName := stringVal(row[m.cfg.source("model", "model_name")])
	if modelName == "" {
		modelName = "unknown"
	}
	if !m.cfg.ModelAllowed(modelName) {
		// Unknown models are kept under a synthetic name, not rejected.
		modelName = "unknown-" + modelName
	}

	domain := stringVal(row[m.cfg.source("domain", "domain")])
	promptID := m.promptID(row)

	id := model.RowIdentity(domain, promptID, modelName, model.MinuteBucket(ts))
	if _, dup := m.seen[id]; dup {
		prov := m.provEntry(row, sum, model.ProvSkipped, "duplicate id (idempotent skip)")
		prov.NewIDRaw = id
		m.provenance = append(m.provenance, prov)
		zap.L().Debug("legacy row skipped as duplicate",
			zap.String("id", id),
			zap.String("legacy_key", prov.LegacyKey))
		return nil, nil, prov
	}

	status := stringVal(row[m.cfg.source("status", "status")])
	if status == "" {
		status = m.cfg.Defaults.StatusIfMissing
	}

	rawRec := model.RawRecord{
		ID:        id,
		Domain:    domain,
		PromptID:  promptID,
		Model:     modelName,
		Timestamp: tsISO,
		Raw:       raw,
		Status:    status,
		LatencyMS: intVal(row[m.cfg.source("latency_ms", "latency_ms")]),
		Attempt:   1,
	}
	normRec := normalizer.Normalize(rawRec)

	m.seen[id] = struct{}{}
	m.stagedRaw = append(m.stagedRaw, rawRec)
	m.stagedNorm = append(m.stagedNorm, normRec)

	prov := m.provEntry(row, sum, model.ProvOK, "")
	prov.NewIDRaw = id
	prov.NewIDNorm = id
	m.provenance = append(m.provenance, prov)
	return &rawRec, &normRec, prov
}

// ProcessBatch folds MapRow over a batch and tallies outcomes.
// Re-running the same batch skips every row.
func (m *Mapper) ProcessBatch(rows []map[string]any) BatchStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := BatchStats{Total: len(rows)}
	for _, row := range rows {
		_, _, prov := m.mapRow(row)
		switch prov.Status {
		case model.ProvOK:
			stats.Success++
		case model.ProvSkipped:
			stats.Skipped++
		default:
			stats.Quarantined++
		}
	}

	zap.L().Info("legacy batch mapped",
		zap.Int("total", stats.Total),
		zap.Int("success", stats.Success),
		zap.Int("skipped", stats.Skipped),
		zap.Int("quarantined", stats.Quarantined))
	return stats
}

// StagedRaw returns a copy of the raw records staged so far.
func (m *Mapper) StagedRaw() []model.RawRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.RawRecord(nil), m.stagedRaw...)
}

// StagedNormalized returns a copy of the normalized records staged so far.
func (m *Mapper) StagedNormalized() []model.NormalizedRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.NormalizedRecord(nil), m.stagedNorm...)
}

// Provenance returns a copy of every provenance entry recorded so far,
// in mapping order.
func (m *Mapper) Provenance() []model.ProvenanceEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ProvenanceEntry(nil), m.provenance...)
}

// Reset clears staging and the dedup set for a controlled re-ingestion.
func (m *Mapper) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = make(map[string]struct{})
	m.stagedRaw = nil
	m.stagedNorm = nil
	m.provenance = nil
}

func (m *Mapper) promptID(row map[string]any) string {
	if m.cfg.Derive.PromptIDFromText {
		if text := stringVal(row["prompt_text"]); text != "" {
			return model.DerivePromptID(text)
		}
		return "unknown"
	}
	if id := stringVal(row["prompt_id"]); id != "" {
		return id
	}
	return "unknown"
}

func (m *Mapper) quarantine(row map[string]any, sum, reason string) model.ProvenanceEntry {
	prov := m.provEntry(row, sum, model.ProvQuarantined, reason)
	m.provenance = append(m.provenance, prov)
	zap.L().Warn("legacy row quarantined",
		zap.String("legacy_key", prov.LegacyKey),
		zap.String("reason", reason))
	return prov
}

func (m *Mapper) provEntry(row map[string]any, sum, status, reason string) model.ProvenanceEntry {
	return model.ProvenanceEntry{
		LegacySourceID: m.cfg.LegacySourceID,
		LegacyKey:      legacyKey(row, sum),
		IngestedAt:     m.now().UTC(),
		MappingVersion: m.cfg.Version,
		Checksum:       sum,
		Status:         status,
		Reason:         reason,
	}
}

// legacyKey identifies the source row: its own primary key when the
// export carries one, otherwise the row checksum.
func legacyKey(row map[string]any, sum string) string {
	if v, ok := row["id"]; ok && v != nil {
		return stringVal(v)
	}
	return sum
}

// parseTimestamp accepts RFC3339 and the offset-less form some legacy
// exports use, which is read as UTC.
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", s)
}

func stringVal(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func intVal(v any) int64 {
	switch x := v.(type) {
	case float64:
		return int64(x)
	case int:
		return int64(x)
	case int64:
		return x
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
