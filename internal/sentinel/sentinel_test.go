package sentinel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beargallbladder/domain-runner-sub003/internal/model"
)

func testSentinel(t *testing.T) *Sentinel {
	t.Helper()
	s, err := New(DefaultDriftThreshold, DefaultDecayThreshold)
	require.NoError(t, err)
	return s
}

func normRecord(answer, status string) model.NormalizedRecord {
	return model.NormalizedRecord{
		ID:        "a1b2c3d4",
		Domain:    "acme.com",
		PromptID:  "p-brand",
		Model:     "gpt-4o",
		Timestamp: "2025-03-01T14:05:00Z",
		Answer:    answer,
		Status:    status,
		RawRef:    "a1b2c3d4",
	}
}

func TestNewValidatesThresholds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		drift   float64
		decay   float64
		wantErr bool
	}{
		{name: "defaults", drift: 0.3, decay: 0.7},
		{name: "full_range", drift: 0, decay: 1},
		{name: "drift_negative", drift: -0.1, decay: 0.7, wantErr: true},
		{name: "drift_above_one", drift: 1.1, decay: 0.7, wantErr: true},
		{name: "decay_above_one", drift: 0.3, decay: 1.2, wantErr: true},
		{name: "equal", drift: 0.5, decay: 0.5, wantErr: true},
		{name: "inverted", drift: 0.8, decay: 0.3, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tt.drift, tt.decay)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDetectFirstObservationStable(t *testing.T) {
	t.Parallel()

	s := testSentinel(t)
	fixed := time.Date(2025, 3, 1, 14, 5, 30, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	result := s.Detect(normRecord("Acme sells cloud widgets.", model.NormValid))

	assert.Equal(t, model.DriftStable, result.Status)
	assert.Equal(t, 0.0, result.DriftScore)
	assert.Equal(t, 1.0, result.Similarity)
	assert.Equal(t, "First observation for combination", result.Explanation)
	assert.Equal(t, "acme.com", result.Domain)
	assert.Equal(t, "p-brand", result.PromptID)
	assert.Equal(t, "gpt-4o", result.Model)
	assert.True(t, result.Timestamp.Equal(fixed))
	assert.NotEmpty(t, result.DriftID)
	assert.Empty(t, s.Alerts())

	state, ok := s.State(model.Combo{Domain: "acme.com", PromptID: "p-brand", Model: "gpt-4o"})
	require.True(t, ok)
	assert.Equal(t, "Acme sells cloud widgets.", state.Answer)
	assert.Equal(t, model.DriftStable, state.Status)
	assert.True(t, state.UpdatedAt.Equal(fixed))
}

func TestDetectFirstObservationEmptyStatusStable(t *testing.T) {
	t.Parallel()

	s := testSentinel(t)
	result := s.Detect(normRecord("", model.NormEmpty))

	assert.Equal(t, model.DriftStable, result.Status)
	assert.Equal(t, 0.0, result.DriftScore)
	assert.Empty(t, s.Alerts())
}

func TestDetectIdenticalAnswerStable(t *testing.T) {
	t.Parallel()

	s := testSentinel(t)
	s.Detect(normRecord("Acme sells cloud widgets.", model.NormValid))
	result := s.Detect(normRecord("Acme sells cloud widgets.", model.NormValid))

	assert.Equal(t, model.DriftStable, result.Status)
	assert.Equal(t, 0.0, result.DriftScore)
	assert.Equal(t, 1.0, result.Similarity)
	assert.Equal(t, "Answer remains consistent", result.Explanation)
	assert.Empty(t, s.Alerts())
}

func TestDetectTrimsWhitespaceBeforeComparing(t *testing.T) {
	t.Parallel()

	s := testSentinel(t)
	s.Detect(normRecord("Acme sells cloud widgets.", model.NormValid))
	result := s.Detect(normRecord("  Acme sells cloud widgets.\n", model.NormValid))

	assert.Equal(t, model.DriftStable, result.Status)
	assert.Equal(t, 0.0, result.DriftScore)
}

func TestDetectPunctuationAndCaseIgnored(t *testing.T) {
	t.Parallel()

	s := testSentinel(t)
	s.Detect(normRecord("Acme sells cloud widgets.", model.NormValid))
	result := s.Detect(normRecord("acme sells CLOUD widgets!", model.NormValid))

	assert.Equal(t, model.DriftStable, result.Status)
	assert.Equal(t, 0.0, result.DriftScore)
	assert.Empty(t, s.Alerts())
}

func TestDetectDriftingBand(t *testing.T) {
	t.Parallel()

	s := testSentinel(t)
	s.Detect(normRecord("alpha beta gamma delta", model.NormValid))
	// Three of five distinct words shared: similarity 0.6, drift 0.4.
	result := s.Detect(normRecord("alpha beta gamma epsilon", model.NormValid))

	assert.Equal(t, model.DriftDrifting, result.Status)
	assert.InDelta(t, 0.4, result.DriftScore, 0.0001)
	assert.InDelta(t, 0.6, result.Similarity, 0.0001)
	assert.Equal(t, "Answer differs from baseline: alpha beta gamma delta...", result.Explanation)

	alerts := s.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, model.EventDriftAlert, alerts[0].Type)
	assert.Equal(t, "acme.com", alerts[0].Payload["domain"])
	assert.Equal(t, "p-brand", alerts[0].Payload["prompt_id"])
	assert.Equal(t, "gpt-4o", alerts[0].Payload["model"])
	assert.Equal(t, model.DriftDrifting, alerts[0].Payload["status"])
	assert.InDelta(t, 0.4, alerts[0].Payload["drift_score"].(float64), 0.0001)
}

func TestDetectDecayedByDivergence(t *testing.T) {
	t.Parallel()

	s := testSentinel(t)
	s.Detect(normRecord("The quick brown fox jumps over the lazy dog", model.NormValid))
	result := s.Detect(normRecord("Acme Corporation sells cloud widgets", model.NormValid))

	assert.Equal(t, model.DriftDecayed, result.Status)
	assert.Equal(t, 1.0, result.DriftScore)
	assert.Equal(t, 0.0, result.Similarity)
	// Baseline excerpt is capped at 30 characters.
	assert.Equal(t, "Significant divergence from: The quick brown fox jumps over...", result.Explanation)
	assert.Len(t, s.Alerts(), 1)
}

func TestDetectEmptyStatusAfterAnswerDecays(t *testing.T) {
	t.Parallel()

	s := testSentinel(t)
	s.Detect(normRecord("Acme sells cloud widgets.", model.NormValid))
	result := s.Detect(normRecord("", model.NormEmpty))

	assert.Equal(t, model.DriftDecayed, result.Status)
	assert.Equal(t, 1.0, result.DriftScore)
	assert.Equal(t, 0.0, result.Similarity)
	assert.Equal(t, "Auto-decayed due to empty status", result.Explanation)

	alerts := s.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, model.DriftDecayed, alerts[0].Payload["status"])
	assert.Equal(t, 1.0, alerts[0].Payload["drift_score"])
}

func TestDetectMalformedStatusDecays(t *testing.T) {
	t.Parallel()

	s := testSentinel(t)
	s.Detect(normRecord("Acme sells cloud widgets.", model.NormValid))
	result := s.Detect(normRecord("", model.NormMalformed))

	assert.Equal(t, model.DriftDecayed, result.Status)
	assert.Equal(t, "Auto-decayed due to malformed status", result.Explanation)
	assert.Len(t, s.Alerts(), 1)
}

func TestDetectRecoveryAfterEmptyStartsFresh(t *testing.T) {
	t.Parallel()

	s := testSentinel(t)
	s.Detect(normRecord("Acme sells cloud widgets.", model.NormValid))
	s.Detect(normRecord("", model.NormEmpty))
	// The stored baseline is now empty, so the recovery sets a fresh one
	// instead of scoring against nothing.
	result := s.Detect(normRecord("Acme builds enterprise software.", model.NormValid))

	assert.Equal(t, model.DriftStable, result.Status)
	assert.Equal(t, 0.0, result.DriftScore)
	assert.Equal(t, "Answer remains consistent", result.Explanation)
	assert.Len(t, s.Alerts(), 1)
}

func TestDetectThresholdBoundaries(t *testing.T) {
	t.Parallel()

	t.Run("drift_threshold_inclusive", func(t *testing.T) {
		t.Parallel()
		s := testSentinel(t)
		// Seven of ten distinct words shared: drift lands on the 0.3
		// boundary, which already counts as drifting.
		s.Detect(normRecord("alpha beta gamma delta epsilon zeta eta theta iota kappa", model.NormValid))
		result := s.Detect(normRecord("alpha beta gamma delta epsilon zeta eta", model.NormValid))

		assert.Equal(t, model.DriftDrifting, result.Status)
		assert.InDelta(t, 0.3, result.DriftScore, 0.0001)
	})

	t.Run("decay_threshold_inclusive", func(t *testing.T) {
		t.Parallel()
		s := testSentinel(t)
		// Three of ten distinct words shared: drift lands on 0.7.
		s.Detect(normRecord("alpha beta gamma delta epsilon zeta eta theta iota kappa", model.NormValid))
		result := s.Detect(normRecord("alpha beta gamma", model.NormValid))

		assert.Equal(t, model.DriftDecayed, result.Status)
		assert.InDelta(t, 0.7, result.DriftScore, 0.0001)
	})
}

func TestDetectModelsTrackedIndependently(t *testing.T) {
	t.Parallel()

	s := testSentinel(t)
	gpt := normRecord("Acme sells cloud widgets.", model.NormValid)
	claude := normRecord("Acme is a hardware vendor.", model.NormValid)
	claude.Model = "claude-3-5-sonnet"

	s.Detect(gpt)
	result := s.Detect(claude)

	assert.Equal(t, model.DriftStable, result.Status)
	assert.Empty(t, s.Alerts())
	assert.Equal(t, 2, s.Stats().TrackedCombinations)
}

func TestAlertsDrain(t *testing.T) {
	t.Parallel()

	s := testSentinel(t)
	s.Detect(normRecord("alpha beta gamma delta", model.NormValid))
	s.Detect(normRecord("alpha beta gamma epsilon", model.NormValid))

	assert.Len(t, s.Alerts(), 1)
	assert.Empty(t, s.Alerts())
}

func TestStats(t *testing.T) {
	t.Parallel()

	s := testSentinel(t)

	drifter := normRecord("alpha beta gamma delta", model.NormValid)
	s.Detect(drifter)
	drifter.Answer = "alpha beta gamma epsilon"
	s.Detect(drifter)

	fresh := normRecord("Acme sells cloud widgets.", model.NormValid)
	fresh.Domain = "globex.com"
	s.Detect(fresh)

	dead := normRecord("Initech ships TPS software.", model.NormValid)
	dead.Domain = "initech.com"
	s.Detect(dead)
	dead.Answer = ""
	dead.Status = model.NormEmpty
	s.Detect(dead)

	stats := s.Stats()
	assert.Equal(t, 3, stats.TrackedCombinations)
	assert.Equal(t, 2, stats.PendingAlerts)
	assert.Equal(t, DefaultDriftThreshold, stats.DriftThreshold)
	assert.Equal(t, DefaultDecayThreshold, stats.DecayThreshold)
	assert.Equal(t, 1, stats.Stable)
	assert.Equal(t, 1, stats.Drifting)
	assert.Equal(t, 1, stats.Decayed)
}

func TestReset(t *testing.T) {
	t.Parallel()

	s := testSentinel(t)
	s.Detect(normRecord("alpha beta gamma delta", model.NormValid))
	s.Detect(normRecord("alpha beta gamma epsilon", model.NormValid))
	s.Reset()

	stats := s.Stats()
	assert.Zero(t, stats.TrackedCombinations)
	assert.Zero(t, stats.PendingAlerts)

	_, ok := s.State(model.Combo{Domain: "acme.com", PromptID: "p-brand", Model: "gpt-4o"})
	assert.False(t, ok)

	result := s.Detect(normRecord("alpha beta gamma epsilon", model.NormValid))
	assert.Equal(t, "First observation for combination", result.Explanation)
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a    string
		b    string
		want float64
	}{
		{name: "identical", a: "acme sells widgets", b: "acme sells widgets", want: 1},
		{name: "both_empty", a: "", b: "", want: 1},
		{name: "one_empty", a: "acme sells widgets", b: "", want: 0},
		{name: "disjoint", a: "alpha beta", b: "gamma delta", want: 0},
		{name: "case_and_punctuation", a: "Acme sells widgets.", b: "acme sells widgets!", want: 1},
		{name: "partial_overlap", a: "alpha beta gamma", b: "alpha beta delta", want: 0.5},
		{name: "punctuation_only", a: "!!!", b: "???", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, similarity(tt.a, tt.b), 0.0001)
		})
	}
}
