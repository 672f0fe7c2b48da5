// Package sentinel watches answers per combination and classifies each
// new observation against the last stored one. Empty and malformed
// responses decay immediately; everything else is scored by word-set
// similarity and bucketed into stable, drifting, or decayed.
package sentinel

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/beargallbladder/domain-runner-sub003/internal/model"
)

// Default classification thresholds on the drift score (1 - similarity).
const (
	DefaultDriftThreshold = 0.3
	DefaultDecayThreshold = 0.7
)

// baselineChars bounds the previous-answer excerpt quoted in explanations.
const baselineChars = 30

// Stats summarizes sentinel state without draining pending alerts.
type Stats struct {
	TrackedCombinations int     `json:"tracked_combinations"`
	PendingAlerts       int     `json:"pending_alerts"`
	DriftThreshold      float64 `json:"drift_threshold"`
	DecayThreshold      float64 `json:"decay_threshold"`
	Stable              int     `json:"stable"`
	Drifting            int     `json:"drifting"`
	Decayed             int     `json:"decayed"`
}

// Sentinel keeps the last answer per combination and scores each new
// observation against it. Safe for concurrent use.
type Sentinel struct {
	mu             sync.Mutex
	driftThreshold float64
	decayThreshold float64
	states         map[model.Combo]model.DriftState
	alerts         []model.Event

	now func() time.Time
}

// New builds a Sentinel. Thresholds live on the drift score: below the
// drift threshold an answer is stable, at or above the decay threshold
// it is decayed, in between it is drifting.
func New(driftThreshold, decayThreshold float64) (*Sentinel, error) {
	if driftThreshold < 0 || driftThreshold > 1 {
		return nil, eris.New("sentinel: drift threshold must be between 0 and 1")
	}
	if decayThreshold < 0 || decayThreshold > 1 {
		return nil, eris.New("sentinel: decay threshold must be between 0 and 1")
	}
	if driftThreshold >= decayThreshold {
		return nil, eris.New("sentinel: drift threshold must be below decay threshold")
	}
	return &Sentinel{
		driftThreshold: driftThreshold,
		decayThreshold: decayThreshold,
		states:         make(map[model.Combo]model.DriftState),
		now:            time.Now,
	}, nil
}

// Detect classifies rec against the last stored answer for its
// combination and remembers the new answer either way. Drifting and
// decayed classifications append a drift.alert event.
func (s *Sentinel) Detect(rec model.NormalizedRecord) model.DriftResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := model.Combo{Domain: rec.Domain, PromptID: rec.PromptID, Model: rec.Model}
	prev, seen := s.states[key]
	answer := strings.TrimSpace(rec.Answer)
	ts := s.now().UTC()

	var sim, drift float64
	var status, explanation string
	switch {
	case !seen:
		// A key's first observation sets the baseline; nothing to
		// compare against yet, whatever the status.
		sim, drift = 1, 0
		status = model.DriftStable
		explanation = "First observation for combination"
	case rec.Status == model.NormEmpty || rec.Status == model.NormMalformed:
		sim, drift = 0, 1
		status = model.DriftDecayed
		explanation = fmt.Sprintf("Auto-decayed due to %s status", rec.Status)
	case prev.Answer == "":
		// The stored baseline was empty, so this answer starts fresh.
		sim, drift = 1, 0
		status = model.DriftStable
		explanation = "Answer remains consistent"
	default:
		sim = similarity(answer, prev.Answer)
		drift = 1 - sim
		switch {
		case drift < s.driftThreshold:
			status = model.DriftStable
			explanation = "Answer remains consistent"
		case drift < s.decayThreshold:
			status = model.DriftDrifting
			explanation = "Answer differs from baseline: " + snippet(prev.Answer)
		default:
			status = model.DriftDecayed
			explanation = "Significant divergence from: " + snippet(prev.Answer)
		}
	}

	s.states[key] = model.DriftState{Answer: answer, Status: status, UpdatedAt: ts}

	result := model.DriftResult{
		DriftID:     uuid.NewString(),
		Domain:      rec.Domain,
		PromptID:    rec.PromptID,
		Model:       rec.Model,
		Timestamp:   ts,
		Similarity:  round3(sim),
		DriftScore:  round3(drift),
		Status:      status,
		Explanation: explanation,
	}

	if status == model.DriftDrifting || status == model.DriftDecayed {
		s.alerts = append(s.alerts, model.Event{
			ID:        uuid.NewString(),
			Type:      model.EventDriftAlert,
			Timestamp: ts,
			Payload: map[string]any{
				"domain":          rec.Domain,
				"prompt_id":       rec.PromptID,
				"model":           rec.Model,
				"drift_score":     result.DriftScore,
				"similarity_prev": result.Similarity,
				"status":          status,
			},
		})
		zap.L().Warn("drift alert raised",
			zap.String("domain", rec.Domain),
			zap.String("prompt_id", rec.PromptID),
			zap.String("model", rec.Model),
			zap.String("status", status),
			zap.Float64("drift_score", result.DriftScore))
	}

	return result
}

// Alerts returns pending drift.alert events and clears the queue.
func (s *Sentinel) Alerts() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.alerts
	s.alerts = nil
	return out
}

// State reports the stored baseline for a combination.
func (s *Sentinel) State(combo model.Combo) (model.DriftState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[combo]
	return st, ok
}

// Stats reports tracked keys, pending alerts, and per-class counts of
// the latest classification for each key.
func (s *Sentinel) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		TrackedCombinations: len(s.states),
		PendingAlerts:       len(s.alerts),
		DriftThreshold:      s.driftThreshold,
		DecayThreshold:      s.decayThreshold,
	}
	for _, state := range s.states {
		switch state.Status {
		case model.DriftStable:
			st.Stable++
		case model.DriftDrifting:
			st.Drifting++
		case model.DriftDecayed:
			st.Decayed++
		}
	}
	return st
}

// Reset drops all baselines and pending alerts.
func (s *Sentinel) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = make(map[model.Combo]model.DriftState)
	s.alerts = nil
	zap.L().Info("sentinel state reset")
}

// similarity computes Jaccard similarity on lowercased word sets, so
// punctuation and casing do not register as drift.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	wordsA := wordSet(strings.ToLower(a))
	wordsB := wordSet(strings.ToLower(b))

	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	intersection := 0
	for w := range wordsA {
		if wordsB[w] {
			intersection++
		}
	}

	union := len(wordsA)
	for w := range wordsB {
		if !wordsA[w] {
			union++
		}
	}
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	words := strings.Fields(s)
	set := make(map[string]bool, len(words))
	for _, w := range words {
		// Strip common punctuation.
		w = strings.Trim(w, ".,;:!?()[]{}\"'")
		if w != "" {
			set[w] = true
		}
	}
	return set
}

// snippet quotes the head of a baseline answer for explanations.
func snippet(s string) string {
	runes := []rune(s)
	if len(runes) > baselineChars {
		return string(runes[:baselineChars]) + "..."
	}
	return s + "..."
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
