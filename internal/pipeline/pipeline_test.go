package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beargallbladder/domain-runner-sub003/internal/catalog"
	"github.com/beargallbladder/domain-runner-sub003/internal/config"
	"github.com/beargallbladder/domain-runner-sub003/internal/cost"
	"github.com/beargallbladder/domain-runner-sub003/internal/manifest"
	"github.com/beargallbladder/domain-runner-sub003/internal/model"
	"github.com/beargallbladder/domain-runner-sub003/internal/monitoring"
	"github.com/beargallbladder/domain-runner-sub003/internal/resilience"
	"github.com/beargallbladder/domain-runner-sub003/internal/runner"
	"github.com/beargallbladder/domain-runner-sub003/internal/sentinel"
	"github.com/beargallbladder/domain-runner-sub003/internal/store"
	"github.com/beargallbladder/domain-runner-sub003/pkg/modelclient"
)

// testRunnerConfig keeps retries cheap so failure-path tests stay fast.
var testRunnerConfig = runner.Config{
	Timeout:     time.Second,
	MaxRetries:  2,
	Concurrency: 4,
	BackoffBase: time.Millisecond,
	BackoffCap:  2 * time.Millisecond,
}

// newTestPipeline wires a pipeline over the in-memory store with the
// given model clients and one catalog prompt, p-overview.
func newTestPipeline(t *testing.T, clients map[string]modelclient.Client) *Pipeline {
	t.Helper()
	return newTestPipelineCfg(t, &config.Config{
		Runner: config.RunnerConfig{MaxRetries: 2},
		Legacy: config.LegacyConfig{BatchSize: 500},
	}, clients)
}

// newTestPipelineCfg is the same under the caller's config, for tests
// that need model pricing or mapping overrides.
func newTestPipelineCfg(t *testing.T, cfg *config.Config, clients map[string]modelclient.Client) *Pipeline {
	t.Helper()

	cat := catalog.New()
	_, err := cat.Add(model.PromptVersion{
		PromptID:   "p-overview",
		Text:       "Describe {domain} in one paragraph.",
		Task:       "overview",
		SafetyTags: []string{"benign"},
	})
	require.NoError(t, err)

	mgr, err := manifest.New(manifest.DefaultMinFloor, manifest.DefaultTargetCoverage)
	require.NoError(t, err)

	snt, err := sentinel.New(sentinel.DefaultDriftThreshold, sentinel.DefaultDecayThreshold)
	require.NoError(t, err)

	return New(cfg, store.NewMemory(), cat, runner.New(testRunnerConfig, clients), mgr, snt,
		monitoring.NewCollector(), monitoring.NewAlerter(config.MonitoringConfig{}))
}

// eventTypeSet collects the distinct event types persisted so far.
func eventTypeSet(t *testing.T, p *Pipeline) map[string]bool {
	t.Helper()
	events, err := p.store.ListEvents(context.Background(), store.EventFilter{})
	require.NoError(t, err)
	set := make(map[string]bool, len(events))
	for _, ev := range events {
		set[ev.Type] = true
	}
	return set
}

func TestRunWindow_HealthyWindow(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t, map[string]modelclient.Client{
		"gpt-test":    modelclient.MockOK{Response: "alpha beta gamma"},
		"claude-test": modelclient.MockOK{Response: "alpha beta gamma"},
	})

	report, err := p.RunWindow(ctx,
		[]string{"openai.com", "anthropic.com"},
		[]string{"p-overview"},
		[]string{"gpt-test", "claude-test"})
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, model.TierHealthy, report.Tier)
	assert.InDelta(t, 1.0, report.Coverage, 1e-9)
	assert.Equal(t, 4, report.TargetCombos)
	assert.Equal(t, 4, report.ObservedOK)
	assert.Zero(t, report.ObservedFail)
	assert.Equal(t, 4, report.RawSaved)
	assert.Equal(t, 4, report.NormalizedSaved)
	assert.Zero(t, report.DLQAdded)
	assert.False(t, report.SkipAggregation)

	// The closed manifest and both record forms are durable.
	man, err := p.store.GetManifest(ctx, report.RunID)
	require.NoError(t, err)
	require.NotNil(t, man)
	assert.Equal(t, model.ManifestClosed, man.Status)
	assert.Equal(t, model.TierHealthy, man.Tier)

	raws, err := p.store.ListRawRecords(ctx, store.RecordFilter{})
	require.NoError(t, err)
	assert.Len(t, raws, 4)

	norms, err := p.store.ListNormalizedRecords(ctx, store.RecordFilter{Status: model.NormValid})
	require.NoError(t, err)
	assert.Len(t, norms, 4)

	// A healthy close emits opened, ready, closed; nothing to gap-fill.
	types := eventTypeSet(t, p)
	assert.True(t, types[model.EventManifestOpened])
	assert.True(t, types[model.EventAggregationReady])
	assert.True(t, types[model.EventManifestClosed])
	assert.False(t, types[model.EventGapFillNeeded])

	snap := p.collector.Snapshot()
	assert.Equal(t, 1, snap.Batches)
	assert.Equal(t, 4, snap.RawByStatus[model.StatusSuccess])
	assert.Equal(t, 4, snap.NormalizedByStatus[model.NormValid])
	assert.Equal(t, 1, snap.Tiers[model.TierHealthy])
}

func TestRunWindow_DegradedWindowParksFailures(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t, map[string]modelclient.Client{
		"model-a": modelclient.MockOK{Response: "steady answer"},
		"model-b": modelclient.MockOK{Response: "steady answer"},
		"model-c": modelclient.MockOK{Response: "steady answer"},
		"model-d": &modelclient.MockTimeout{Failures: 99},
	})

	report, err := p.RunWindow(ctx, []string{"example.com"}, []string{"p-overview"},
		[]string{"model-a", "model-b", "model-c", "model-d"})
	require.NoError(t, err)

	assert.Equal(t, model.TierDegraded, report.Tier)
	assert.InDelta(t, 0.75, report.Coverage, 1e-9)
	assert.Equal(t, 3, report.ObservedOK)
	assert.Equal(t, 1, report.ObservedFail)
	assert.False(t, report.SkipAggregation)
	assert.Equal(t, 1, report.DLQAdded)

	// The failed combination is parked with its reason classified.
	entries, err := p.store.DequeueDLQ(ctx, resilience.DLQFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, report.RunID, entries[0].RunID)
	assert.Equal(t, model.Combo{Domain: "example.com", PromptID: "p-overview", Model: "model-d"}, entries[0].Combo)
	assert.Equal(t, "timeout", entries[0].Error)
	assert.Equal(t, "transient", entries[0].ErrorType)

	types := eventTypeSet(t, p)
	assert.True(t, types[model.EventAggregationReady])
	assert.True(t, types[model.EventGapFillNeeded])
}

func TestRunWindow_InvalidWindowSkipsAggregation(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t, map[string]modelclient.Client{
		"broken": modelclient.MockErr{Err: errors.New("upstream exploded")},
	})

	report, err := p.RunWindow(ctx, []string{"example.com"}, []string{"p-overview"}, []string{"broken"})
	require.NoError(t, err)

	assert.Equal(t, model.TierInvalid, report.Tier)
	assert.Zero(t, report.Coverage)
	assert.True(t, report.SkipAggregation)

	// Failed rows still persist raw and normalized forms.
	assert.Equal(t, 1, report.RawSaved)
	assert.Equal(t, 1, report.NormalizedSaved)

	// Below the floor there is nothing worth patching.
	assert.Zero(t, report.DLQAdded)
	count, err := p.store.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	types := eventTypeSet(t, p)
	assert.True(t, types[model.EventAggregationSkipped])
	assert.False(t, types[model.EventAggregationReady])
	assert.False(t, types[model.EventGapFillNeeded])
}

// TestRunWindow_CostAccounting prices one model explicitly, leaves the
// other unpriced, and checks the report and collector agree on spend.
func TestRunWindow_CostAccounting(t *testing.T) {
	ctx := context.Background()
	answer := "alpha beta gamma delta"
	cfg := &config.Config{
		Runner: config.RunnerConfig{MaxRetries: 2},
		Legacy: config.LegacyConfig{BatchSize: 500},
		Models: []config.ModelEntry{
			{Name: "priced", Provider: "openai", Key: "k", Model: "house-model", InputPerMTok: 10, OutputPerMTok: 20},
		},
	}
	p := newTestPipelineCfg(t, cfg, map[string]modelclient.Client{
		"priced":   modelclient.MockOK{Response: answer},
		"unpriced": modelclient.MockOK{Response: answer},
	})

	report, err := p.RunWindow(ctx,
		[]string{"openai.com", "anthropic.com"},
		[]string{"p-overview"},
		[]string{"priced", "unpriced"})
	require.NoError(t, err)

	pv, ok := p.catalog.Get("p-overview")
	require.True(t, ok)
	calc := cost.NewCalculator(cost.Rates{"priced": {Input: 10, Output: 20}})
	want := 2 * calc.Call("priced", len(pv.Text), len(answer))
	require.Positive(t, want)

	assert.InDelta(t, want, report.EstimatedCost, 1e-9)

	snap := p.collector.Snapshot()
	assert.InDelta(t, want, snap.CostUSD, 1e-9)
	assert.InDelta(t, want, snap.CostByModel["priced"], 1e-9)
	assert.NotContains(t, snap.CostByModel, "unpriced")
}

func TestRunWindow_UnknownPrompt(t *testing.T) {
	p := newTestPipeline(t, map[string]modelclient.Client{"m": modelclient.MockOK{}})

	_, err := p.RunWindow(context.Background(), []string{"example.com"}, []string{"p-missing"}, []string{"m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in catalog")
}

func TestRunWindow_NothingToRun(t *testing.T) {
	p := newTestPipeline(t, map[string]modelclient.Client{"m": modelclient.MockOK{}})

	_, err := p.RunWindow(context.Background(), nil, []string{"p-overview"}, []string{"m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to run")
}

// TestRunWindow_DriftAlertOnAnswerChange runs two windows whose answers
// share no words; the second window's sentinel pass must raise an alert
// and persist it as an event.
func TestRunWindow_DriftAlertOnAnswerChange(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t, map[string]modelclient.Client{
		"m": modelclient.MockOK{Response: "alpha beta gamma delta"},
	})

	first, err := p.RunWindow(ctx, []string{"example.com"}, []string{"p-overview"}, []string{"m"})
	require.NoError(t, err)
	assert.Zero(t, first.DriftAlerts)

	// Same combination, answer fully replaced.
	swapped := runner.New(testRunnerConfig, map[string]modelclient.Client{
		"m": modelclient.MockOK{Response: "omega psi chi upsilon"},
	})
	p2 := New(p.cfg, p.store, p.catalog, swapped, p.manifest, p.sentinel, p.collector, p.alerter)

	second, err := p2.RunWindow(ctx, []string{"example.com"}, []string{"p-overview"}, []string{"m"})
	require.NoError(t, err)
	assert.Equal(t, 1, second.DriftAlerts)

	events, err := p.store.ListEvents(ctx, store.EventFilter{Type: model.EventDriftAlert})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "example.com", events[0].Payload["domain"])
	assert.Equal(t, "m", events[0].Payload["model"])
	assert.Equal(t, model.DriftDecayed, events[0].Payload["status"])

	snap := p.collector.Snapshot()
	assert.Equal(t, 1, snap.DriftAlerts)
}

// TestRunWindow_CancelThenResume cancels a window before any work
// dispatches, verifies the manifest stays open behind a checkpoint, and
// resumes it to a healthy close.
func TestRunWindow_CancelThenResume(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t, map[string]modelclient.Client{
		"m": modelclient.MockOK{Response: "steady answer"},
	})

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	_, err := p.RunWindow(cancelled, []string{"example.com", "example.org"}, []string{"p-overview"}, []string{"m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "window interrupted")

	// The opened event names the run.
	opened, err := p.store.ListEvents(ctx, store.EventFilter{Type: model.EventManifestOpened})
	require.NoError(t, err)
	require.Len(t, opened, 1)
	runID, _ := opened[0].Payload["run_id"].(string)
	require.NotEmpty(t, runID)

	// The manifest is still open and checkpointed, not persisted closed.
	man, ok := p.manifest.Get(runID)
	require.True(t, ok)
	assert.Equal(t, model.ManifestOpen, man.Status)

	stored, err := p.store.GetManifest(ctx, runID)
	require.NoError(t, err)
	assert.Nil(t, stored)

	data, err := p.store.LoadCheckpoint(ctx, runID)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	// Resume drives the two queued combinations to a healthy close.
	report, err := p.Resume(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, runID, report.RunID)
	assert.Equal(t, model.TierHealthy, report.Tier)
	assert.Equal(t, 2, report.ObservedOK)
	assert.Equal(t, 2, report.RawSaved)

	stored, err = p.store.GetManifest(ctx, runID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, model.ManifestClosed, stored.Status)

	// The checkpoint is gone once the window closes.
	data, err = p.store.LoadCheckpoint(ctx, runID)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestResume_NoCheckpoint(t *testing.T) {
	p := newTestPipeline(t, map[string]modelclient.Client{"m": modelclient.MockOK{}})

	_, err := p.Resume(context.Background(), "run-never-seen")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no checkpoint")
}

func TestRatesFor(t *testing.T) {
	entries := []config.ModelEntry{
		{Name: "custom", Model: "house-model", InputPerMTok: 1, OutputPerMTok: 2},
		{Name: "haiku", Model: "claude-haiku-4-5-20251001"},
		{Name: "gpt-4o"},
		{Name: "mystery", Model: "nobody-prices-this"},
		{Model: "claude-haiku-4-5-20251001"},
	}
	rates := ratesFor(entries)

	// Explicit prices beat the table; the table is keyed by vendor id
	// first and registry name second; everything else stays unpriced.
	assert.Equal(t, cost.ModelRate{Input: 1, Output: 2}, rates["custom"])
	assert.Equal(t, cost.DefaultRates()["claude-haiku-4-5-20251001"], rates["haiku"])
	assert.Equal(t, cost.DefaultRates()["gpt-4o"], rates["gpt-4o"])
	assert.NotContains(t, rates, "mystery")
	assert.NotContains(t, rates, "")
}
