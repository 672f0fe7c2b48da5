package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beargallbladder/domain-runner-sub003/internal/config"
)

// testConfig returns a memory-store config good enough for initPipeline.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store: config.StoreConfig{Driver: "memory"},
		Runner: config.RunnerConfig{
			TimeoutSecs:    5,
			MaxRetries:     2,
			Concurrency:    4,
			BackoffBaseMS:  10,
			BackoffCapSecs: 1,
		},
		Manifest: config.ManifestConfig{MinFloor: 0.70, TargetCoverage: 0.95},
		Sentinel: config.SentinelConfig{DriftThreshold: 0.3, DecayThreshold: 0.7},
		Catalog:  config.CatalogConfig{Path: filepath.Join(t.TempDir(), "prompts.yaml")},
		Legacy:   config.LegacyConfig{MappingPath: "mapping.yaml", BatchSize: 2000},
		Models: []config.ModelEntry{
			{Name: "claude-test", Provider: "anthropic", Key: "sk-test", Model: "claude-smoke"},
		},
	}
}

func TestInitPipeline_MemoryStore(t *testing.T) {
	cfg = testConfig(t)

	env, err := initPipeline(context.Background(), "run")
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Store)
	assert.NotNil(t, env.Catalog)
	assert.NotNil(t, env.Pipeline)
	assert.Equal(t, []string{"claude-test"}, env.ModelNames())
}

func TestInitPipeline_RunNeedsModels(t *testing.T) {
	cfg = testConfig(t)
	cfg.Models = nil

	_, err := initPipeline(context.Background(), "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "models entry is required")
}

func TestInitPipeline_SkipsKeylessClients(t *testing.T) {
	cfg = testConfig(t)
	cfg.Models = []config.ModelEntry{{Name: "keyless", Provider: "openai", Model: "gpt-test"}}

	_, err := initPipeline(context.Background(), "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no model clients available")
}

func TestInitStore_Memory(t *testing.T) {
	cfg = testConfig(t)

	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	assert.NoError(t, st.Ping(context.Background()))
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = testConfig(t)
	cfg.Store.Driver = "cassandra"

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestRunnerConfig_Durations(t *testing.T) {
	rc := runnerConfig(config.RunnerConfig{
		TimeoutSecs:    30,
		MaxRetries:     3,
		Concurrency:    8,
		BackoffBaseMS:  1000,
		BackoffCapSecs: 8,
		RateLimit:      2.5,
	})

	assert.Equal(t, 30*time.Second, rc.Timeout)
	assert.Equal(t, 3, rc.MaxRetries)
	assert.Equal(t, 8, rc.Concurrency)
	assert.Equal(t, time.Second, rc.BackoffBase)
	assert.Equal(t, 8*time.Second, rc.BackoffCap)
	assert.InDelta(t, 2.5, rc.RateLimit, 0.001)
}
