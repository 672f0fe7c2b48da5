// Package manifest tracks expected versus observed combinations for a
// run window and gates downstream aggregation on a coverage tier.
// Partial windows degrade instead of failing outright.
package manifest

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/beargallbladder/domain-runner-sub003/internal/model"
)

// Default coverage thresholds. A window below the floor is unusable;
// between floor and target it is degraded but aggregatable.
const (
	DefaultMinFloor       = 0.70
	DefaultTargetCoverage = 0.95
)

var (
	// ErrManifestNotFound is returned for unknown run ids.
	ErrManifestNotFound = eris.New("manifest: run not found")

	// ErrManifestClosed is returned when a closed run is updated or
	// closed again.
	ErrManifestClosed = eris.New("manifest: run already closed")
)

// ObservationUpdate carries optional result details for an update.
// Zero values leave the stored fields untouched.
type ObservationUpdate struct {
	Error      string
	Attempts   int
	LatencyMS  int64
	ResponseID string
}

// Checkpoint is a recoverable snapshot of one run. Observations are
// keyed "domain|prompt_id|model".
type Checkpoint struct {
	Manifest     model.Manifest               `json:"manifest"`
	Observations map[string]model.Observation `json:"observations"`
	Timestamp    time.Time                    `json:"timestamp"`
}

// Manager owns run manifests, their observations, and the downstream
// event log. Safe for concurrent use.
type Manager struct {
	mu           sync.Mutex
	floor        float64
	target       float64
	manifests    map[string]*model.Manifest
	observations map[string]map[model.Combo]*model.Observation
	events       []model.Event

	now func() time.Time
}

// New validates the thresholds and returns a manager.
func New(minFloor, targetCoverage float64) (*Manager, error) {
	if minFloor < 0 || minFloor > 1 {
		return nil, eris.New("manifest: min floor must be between 0 and 1")
	}
	if targetCoverage < 0 || targetCoverage > 1 {
		return nil, eris.New("manifest: target coverage must be between 0 and 1")
	}
	if minFloor > targetCoverage {
		return nil, eris.New("manifest: min floor must not exceed target coverage")
	}
	return &Manager{
		floor:        minFloor,
		target:       targetCoverage,
		manifests:    make(map[string]*model.Manifest),
		observations: make(map[string]map[model.Combo]*model.Observation),
		now:          time.Now,
	}, nil
}

// Create opens a manifest for one run window with its expected
// combinations queued. An empty runID gets a generated one; reusing an
// existing run id is an error. Emits manifest.opened.
func (m *Manager) Create(runID string, windowStart, windowEnd time.Time, combos []model.Combo) (model.Manifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if runID == "" {
		runID = uuid.NewString()
	}
	if _, exists := m.manifests[runID]; exists {
		return model.Manifest{}, eris.Errorf("manifest: run %s already exists", runID)
	}

	obs := make(map[model.Combo]*model.Observation, len(combos))
	for _, combo := range combos {
		obs[combo] = &model.Observation{
			RunID:    runID,
			Domain:   combo.Domain,
			PromptID: combo.PromptID,
			Model:    combo.Model,
			Status:   model.ObsQueued,
		}
	}

	man := &model.Manifest{
		RunID:          runID,
		WindowStart:    windowStart,
		WindowEnd:      windowEnd,
		TargetCombos:   len(obs),
		MinFloor:       m.floor,
		TargetCoverage: m.target,
		Tier:           model.TierInvalid,
		Status:         model.ManifestOpen,
		CreatedAt:      m.now().UTC(),
	}
	m.manifests[runID] = man
	m.observations[runID] = obs

	m.emit(model.EventManifestOpened, map[string]any{
		"run_id":        runID,
		"target_combos": man.TargetCombos,
	})
	zap.L().Info("manifest opened",
		zap.String("run_id", runID),
		zap.Int("target_combos", man.TargetCombos))
	return *man, nil
}

// UpdateObservation records the status of one expected combination and
// refreshes coverage when the status is terminal. A "running" update
// increments the attempt counter. Re-updating replaces the previous
// status.
func (m *Manager) UpdateObservation(runID string, combo model.Combo, status string, detail ObservationUpdate) (model.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	man, ok := m.manifests[runID]
	if !ok {
		return model.Observation{}, ErrManifestNotFound
	}
	if man.Status == model.ManifestClosed {
		return model.Observation{}, ErrManifestClosed
	}

	obs, ok := m.observations[runID][combo]
	if !ok {
		return model.Observation{}, eris.Errorf("manifest: observation not found: %s|%s|%s in run %s",
			combo.Domain, combo.PromptID, combo.Model, runID)
	}

	old := obs.Status
	obs.Status = status
	if status == model.ObsRunning {
		obs.Attempts++
	}
	if detail.Attempts != 0 {
		obs.Attempts = detail.Attempts
	}
	if detail.Error != "" {
		obs.LastError = detail.Error
	}
	if detail.LatencyMS != 0 {
		obs.LatencyMS = detail.LatencyMS
	}
	if detail.ResponseID != "" {
		obs.ResponseID = detail.ResponseID
	}

	if old != status && terminal(status) {
		m.recount(runID)
	}

	zap.L().Debug("observation updated",
		zap.String("run_id", runID),
		zap.String("domain", combo.Domain),
		zap.String("model", combo.Model),
		zap.String("status", status))
	return *obs, nil
}

// Close finalizes a run: combinations never observed become failures,
// coverage and tier are fixed, and the tier decides the downstream
// events. A second close is an error.
func (m *Manager) Close(runID string) (model.Manifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	man, ok := m.manifests[runID]
	if !ok {
		return model.Manifest{}, ErrManifestNotFound
	}
	if man.Status == model.ManifestClosed {
		return model.Manifest{}, ErrManifestClosed
	}

	for _, obs := range m.observations[runID] {
		if obs.Status == model.ObsQueued || obs.Status == model.ObsRunning {
			obs.Status = model.StatusFailed
			if obs.LastError == "" {
				obs.LastError = "never observed in window"
			}
		}
	}
	m.recount(runID)

	closedAt := m.now().UTC()
	man.Status = model.ManifestClosed
	man.ClosedAt = &closedAt

	switch man.Tier {
	case model.TierInvalid:
		// Too incomplete to aggregate, and too incomplete to patch.
		m.emit(model.EventAggregationSkipped, map[string]any{
			"run_id":   runID,
			"coverage": man.Coverage,
			"message": fmt.Sprintf("coverage %.1f%% below floor %.1f%%",
				man.Coverage*100, m.floor*100),
		})
		zap.L().Warn("manifest closed below coverage floor",
			zap.String("run_id", runID),
			zap.Float64("coverage", man.Coverage),
			zap.Float64("floor", m.floor))
	default:
		m.emit(model.EventAggregationReady, map[string]any{
			"run_id":        runID,
			"tier":          man.Tier,
			"coverage":      man.Coverage,
			"observed_ok":   man.ObservedOK,
			"observed_fail": man.ObservedFail,
			"window_start":  man.WindowStart,
			"window_end":    man.WindowEnd,
		})

		if man.Tier == model.TierDegraded {
			if failed := m.failedLocked(runID); len(failed) > 0 {
				m.emit(model.EventGapFillNeeded, map[string]any{
					"run_id":              runID,
					"failed_observations": failedPayload(failed),
					"coverage":            man.Coverage,
					"tier":                man.Tier,
				})
			}
		}
	}

	m.emit(model.EventManifestClosed, map[string]any{
		"run_id":        runID,
		"tier":          man.Tier,
		"coverage":      man.Coverage,
		"observed_ok":   man.ObservedOK,
		"observed_fail": man.ObservedFail,
	})

	zap.L().Info("manifest closed",
		zap.String("run_id", runID),
		zap.String("tier", man.Tier),
		zap.Float64("coverage", man.Coverage),
		zap.Int("observed_ok", man.ObservedOK),
		zap.Int("observed_fail", man.ObservedFail))
	return *man, nil
}

// Get returns a copy of the manifest for a run.
func (m *Manager) Get(runID string) (model.Manifest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	man, ok := m.manifests[runID]
	if !ok {
		return model.Manifest{}, false
	}
	return *man, true
}

// GetObservation returns a copy of one observation.
func (m *Manager) GetObservation(runID string, combo model.Combo) (model.Observation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obs, ok := m.observations[runID][combo]
	if !ok {
		return model.Observation{}, false
	}
	return *obs, true
}

// FailedObservations returns the failed-class observations of a run,
// the gap-fill work list.
func (m *Manager) FailedObservations(runID string) []model.Observation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failedLocked(runID)
}

// Events drains the pending event log in emission order.
func (m *Manager) Events() []model.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := m.events
	m.events = nil
	return events
}

// Checkpoint snapshots one run for recovery.
func (m *Manager) Checkpoint(runID string) (Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	man, ok := m.manifests[runID]
	if !ok {
		return Checkpoint{}, ErrManifestNotFound
	}

	obs := make(map[string]model.Observation, len(m.observations[runID]))
	for combo, o := range m.observations[runID] {
		key := fmt.Sprintf("%s|%s|%s", combo.Domain, combo.PromptID, combo.Model)
		obs[key] = *o
	}

	return Checkpoint{
		Manifest:     *man,
		Observations: obs,
		Timestamp:    m.now().UTC(),
	}, nil
}

// Restore installs a checkpointed run, replacing any existing state for
// its run id.
func (m *Manager) Restore(cp Checkpoint) error {
	if cp.Manifest.RunID == "" {
		return eris.New("manifest: checkpoint has no run id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	obs := make(map[model.Combo]*model.Observation, len(cp.Observations))
	for key, o := range cp.Observations {
		parts := strings.SplitN(key, "|", 3)
		if len(parts) != 3 {
			return eris.Errorf("manifest: malformed checkpoint key %q", key)
		}
		combo := model.Combo{Domain: parts[0], PromptID: parts[1], Model: parts[2]}
		restored := o
		obs[combo] = &restored
	}

	man := cp.Manifest
	m.manifests[man.RunID] = &man
	m.observations[man.RunID] = obs

	zap.L().Info("manifest restored from checkpoint",
		zap.String("run_id", man.RunID),
		zap.Int("observations", len(obs)))
	return nil
}

func (m *Manager) failedLocked(runID string) []model.Observation {
	var failed []model.Observation
	for _, obs := range m.observations[runID] {
		if obs.Status == model.StatusFailed || obs.Status == model.StatusTimeout {
			failed = append(failed, *obs)
		}
	}
	return failed
}

// recount refreshes ok/fail counts, coverage, and tier. Skipped
// observations count toward neither side but stay in the denominator.
func (m *Manager) recount(runID string) {
	man := m.manifests[runID]

	ok, fail := 0, 0
	for _, obs := range m.observations[runID] {
		switch obs.Status {
		case model.StatusSuccess:
			ok++
		case model.StatusFailed, model.StatusTimeout:
			fail++
		}
	}

	man.ObservedOK = ok
	man.ObservedFail = fail
	if man.TargetCombos > 0 {
		man.Coverage = float64(ok) / float64(man.TargetCombos)
	} else {
		man.Coverage = 0
	}

	switch {
	case man.Coverage < m.floor:
		man.Tier = model.TierInvalid
	case man.Coverage >= m.target:
		man.Tier = model.TierHealthy
	default:
		man.Tier = model.TierDegraded
	}
}

func (m *Manager) emit(eventType string, payload map[string]any) {
	m.events = append(m.events, model.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: m.now().UTC(),
		Payload:   payload,
	})
}

func terminal(status string) bool {
	switch status {
	case model.StatusSuccess, model.StatusFailed, model.StatusTimeout, model.StatusSkipped:
		return true
	}
	return false
}

func failedPayload(failed []model.Observation) []map[string]any {
	out := make([]map[string]any, 0, len(failed))
	for _, obs := range failed {
		errText := obs.LastError
		if errText == "" {
			errText = "unknown error"
		}
		out = append(out, map[string]any{
			"domain":    obs.Domain,
			"prompt_id": obs.PromptID,
			"model":     obs.Model,
			"error":     errText,
		})
	}
	return out
}
