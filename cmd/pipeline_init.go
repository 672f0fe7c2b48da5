package main

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/beargallbladder/domain-runner-sub003/internal/catalog"
	"github.com/beargallbladder/domain-runner-sub003/internal/config"
	"github.com/beargallbladder/domain-runner-sub003/internal/manifest"
	"github.com/beargallbladder/domain-runner-sub003/internal/monitoring"
	"github.com/beargallbladder/domain-runner-sub003/internal/pipeline"
	"github.com/beargallbladder/domain-runner-sub003/internal/runner"
	"github.com/beargallbladder/domain-runner-sub003/internal/sentinel"
	"github.com/beargallbladder/domain-runner-sub003/internal/store"
	"github.com/beargallbladder/domain-runner-sub003/pkg/modelclient"
)

// pipelineEnv holds the initialized store, catalog, model clients, and
// pipeline needed by the run/backfill/gapfill commands.
type pipelineEnv struct {
	Store    store.Store
	Catalog  *catalog.Catalog
	Clients  map[string]modelclient.Client
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// ModelNames returns the registered model client names, sorted.
func (pe *pipelineEnv) ModelNames() []string {
	names := make([]string, 0, len(pe.Clients))
	for name := range pe.Clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// initStore opens and migrates the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	return st, nil
}

// initPipeline validates config for the given command mode, opens and
// migrates the store, loads the prompt catalog, registers model clients,
// and builds the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.LoadFile(cfg.Catalog.Path)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	clients := modelclient.BuildRegistry(cfg.Models)
	if mode == "run" && len(clients) == 0 {
		_ = st.Close()
		return nil, eris.New("no model clients available, check models config and keys")
	}

	runs, err := manifest.New(cfg.Manifest.MinFloor, cfg.Manifest.TargetCoverage)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	drift, err := sentinel.New(cfg.Sentinel.DriftThreshold, cfg.Sentinel.DecayThreshold)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	batchRunner := runner.New(runnerConfig(cfg.Runner), clients)
	p := pipeline.New(cfg, st, cat, batchRunner, runs, drift,
		monitoring.NewCollector(), monitoring.NewAlerter(cfg.Monitoring))

	zap.L().Debug("pipeline initialized",
		zap.String("store", cfg.Store.Driver),
		zap.Int("prompts", cat.Len()),
		zap.Int("models", len(clients)),
	)

	return &pipelineEnv{
		Store:    st,
		Catalog:  cat,
		Clients:  clients,
		Pipeline: p,
	}, nil
}

// runnerConfig converts the config knobs into runner durations.
func runnerConfig(rc config.RunnerConfig) runner.Config {
	return runner.Config{
		Timeout:     time.Duration(rc.TimeoutSecs) * time.Second,
		MaxRetries:  rc.MaxRetries,
		Concurrency: rc.Concurrency,
		RateLimit:   rc.RateLimit,
		BackoffBase: time.Duration(rc.BackoffBaseMS) * time.Millisecond,
		BackoffCap:  time.Duration(rc.BackoffCapSecs) * time.Second,
	}
}
