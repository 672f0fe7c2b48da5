package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/beargallbladder/domain-runner-sub003/internal/model"
	"github.com/beargallbladder/domain-runner-sub003/internal/resilience"
)

// MemoryStore implements Store with in-process maps. State does not
// survive a restart; it backs tests and dry runs.
type MemoryStore struct {
	mu          sync.Mutex
	raw         map[string]model.RawRecord
	rawOrder    []string
	norm        map[string]model.NormalizedRecord
	normOrder   []string
	provenance  []model.ProvenanceEntry
	manifests   map[string]model.Manifest
	events      []model.Event
	checkpoints map[string][]byte
	dlq         map[string]resilience.DLQEntry
}

// NewMemory builds an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		raw:         make(map[string]model.RawRecord),
		norm:        make(map[string]model.NormalizedRecord),
		manifests:   make(map[string]model.Manifest),
		checkpoints: make(map[string][]byte),
		dlq:         make(map[string]resilience.DLQEntry),
	}
}

func (s *MemoryStore) SaveRawRecords(ctx context.Context, recs []model.RawRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	written := 0
	for _, r := range recs {
		if _, ok := s.raw[r.ID]; ok {
			continue
		}
		s.raw[r.ID] = r
		s.rawOrder = append(s.rawOrder, r.ID)
		written++
	}
	return written, nil
}

func (s *MemoryStore) SaveNormalizedRecords(ctx context.Context, recs []model.NormalizedRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	written := 0
	for _, r := range recs {
		if _, ok := s.norm[r.ID]; ok {
			continue
		}
		s.norm[r.ID] = r
		s.normOrder = append(s.normOrder, r.ID)
		written++
	}
	return written, nil
}

func (s *MemoryStore) GetRawRecord(ctx context.Context, id string) (*model.RawRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.raw[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *MemoryStore) GetNormalizedRecord(ctx context.Context, id string) (*model.NormalizedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.norm[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// ListRawRecords returns matching records newest-first.
func (s *MemoryStore) ListRawRecords(ctx context.Context, filter RecordFilter) ([]model.RawRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.RawRecord
	skip := filter.Offset
	for i := len(s.rawOrder) - 1; i >= 0; i-- {
		r := s.raw[s.rawOrder[i]]
		if filter.Domain != "" && r.Domain != filter.Domain {
			continue
		}
		if filter.Model != "" && r.Model != filter.Model {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		out = append(out, r)
		if limit := listLimit(filter.Limit); len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ListNormalizedRecords returns matching records newest-first. The
// Status field filters on the normalized validity class.
func (s *MemoryStore) ListNormalizedRecords(ctx context.Context, filter RecordFilter) ([]model.NormalizedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.NormalizedRecord
	skip := filter.Offset
	for i := len(s.normOrder) - 1; i >= 0; i-- {
		r := s.norm[s.normOrder[i]]
		if filter.Domain != "" && r.Domain != filter.Domain {
			continue
		}
		if filter.Model != "" && r.Model != filter.Model {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		out = append(out, r)
		if limit := listLimit(filter.Limit); len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) AppendProvenance(ctx context.Context, entries []model.ProvenanceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provenance = append(s.provenance, entries...)
	return nil
}

func (s *MemoryStore) ListProvenance(ctx context.Context, legacyKey string, limit int) ([]model.ProvenanceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.ProvenanceEntry
	for _, e := range s.provenance {
		if legacyKey != "" && e.LegacyKey != legacyKey {
			continue
		}
		out = append(out, e)
		if len(out) >= listLimit(limit) {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveManifest(ctx context.Context, m model.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifests[m.RunID] = m
	return nil
}

func (s *MemoryStore) GetManifest(ctx context.Context, runID string) (*model.Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.manifests[runID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *MemoryStore) AppendEvents(ctx context.Context, events []model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

// ListEvents returns matching events newest-first.
func (s *MemoryStore) ListEvents(ctx context.Context, filter EventFilter) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		out = append(out, e)
		if len(out) >= listLimit(filter.Limit) {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveCheckpoint(ctx context.Context, runID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[runID] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) LoadCheckpoint(ctx context.Context, runID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.checkpoints[runID]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) DeleteCheckpoint(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, runID)
	return nil
}

func (s *MemoryStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dlq[entry.ID] = entry
	return nil
}

func (s *MemoryStore) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var out []resilience.DLQEntry
	for _, e := range s.dlq {
		if e.NextRetryAt.After(now) || !e.CanRetry() {
			continue
		}
		if filter.RunID != "" && e.RunID != filter.RunID {
			continue
		}
		if filter.ErrorType != "" && e.ErrorType != filter.ErrorType {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRetryAt.Before(out[j].NextRetryAt) })
	if limit := listLimit(filter.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.dlq[id]
	if !ok {
		return eris.Errorf("dlq_entry not found: %s", id)
	}
	e.RetryCount++
	e.NextRetryAt = nextRetryAt
	e.Error = lastErr
	e.LastFailedAt = time.Now().UTC()
	s.dlq[id] = e
	return nil
}

func (s *MemoryStore) RemoveDLQ(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dlq, id)
	return nil
}

func (s *MemoryStore) CountDLQ(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dlq), nil
}

func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }

func (s *MemoryStore) Stats(ctx context.Context) (Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Totals{
		RawRecords:        int64(len(s.raw)),
		NormalizedRecords: int64(len(s.norm)),
		ProvenanceEntries: int64(len(s.provenance)),
		Manifests:         int64(len(s.manifests)),
		Events:            int64(len(s.events)),
		DLQEntries:        int64(len(s.dlq)),
	}, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func listLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
