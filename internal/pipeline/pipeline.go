// Package pipeline wires the query pipeline end to end: catalog prompts
// fan out across model clients, responses are normalized, drift-checked,
// and coverage-gated, and every artifact lands in the store. One
// Pipeline serves the live window path, the legacy backfill path, and
// the dead-letter gap-fill pass.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/beargallbladder/domain-runner-sub003/internal/catalog"
	"github.com/beargallbladder/domain-runner-sub003/internal/config"
	"github.com/beargallbladder/domain-runner-sub003/internal/cost"
	"github.com/beargallbladder/domain-runner-sub003/internal/legacyio"
	"github.com/beargallbladder/domain-runner-sub003/internal/manifest"
	"github.com/beargallbladder/domain-runner-sub003/internal/mapper"
	"github.com/beargallbladder/domain-runner-sub003/internal/model"
	"github.com/beargallbladder/domain-runner-sub003/internal/monitoring"
	"github.com/beargallbladder/domain-runner-sub003/internal/normalizer"
	"github.com/beargallbladder/domain-runner-sub003/internal/resilience"
	"github.com/beargallbladder/domain-runner-sub003/internal/runner"
	"github.com/beargallbladder/domain-runner-sub003/internal/sentinel"
	"github.com/beargallbladder/domain-runner-sub003/internal/store"
)

// gapFillRetry spaces repeat gap-fill attempts on a minutes scale; the
// pass itself runs far less often than the per-call retry loop inside
// the runner.
var gapFillRetry = resilience.RetryConfig{
	InitialBackoff: 5 * time.Minute,
	MaxBackoff:     time.Hour,
	Multiplier:     2.0,
}

// WindowReport summarizes one closed run window.
type WindowReport struct {
	RunID           string  `json:"run_id"`
	Coverage        float64 `json:"coverage"`
	Tier            string  `json:"tier"`
	TargetCombos    int     `json:"target_combos"`
	ObservedOK      int     `json:"observed_ok"`
	ObservedFail    int     `json:"observed_fail"`
	RawSaved        int     `json:"raw_saved"`
	NormalizedSaved int     `json:"normalized_saved"`
	DriftAlerts     int     `json:"drift_alerts"`
	DLQAdded        int     `json:"dlq_added"`
	EstimatedCost   float64 `json:"estimated_cost_usd"`
	SkipAggregation bool    `json:"skip_aggregation"`
}

// BackfillReport summarizes one legacy export replay.
type BackfillReport struct {
	Source          string            `json:"source"`
	Rows            int               `json:"rows"`
	Batches         int               `json:"batches"`
	Stats           mapper.BatchStats `json:"stats"`
	RawSaved        int               `json:"raw_saved"`
	NormalizedSaved int               `json:"normalized_saved"`
}

// GapFillReport summarizes one pass over the dead letter queue.
type GapFillReport struct {
	Attempted     int     `json:"attempted"`
	Recovered     int     `json:"recovered"`
	Requeued      int     `json:"requeued"`
	Dropped       int     `json:"dropped"`
	EstimatedCost float64 `json:"estimated_cost_usd"`
}

// Pipeline orchestrates run windows, backfills, and gap-fill passes.
type Pipeline struct {
	cfg       *config.Config
	store     store.Store
	catalog   *catalog.Catalog
	runner    *runner.Runner
	manifest  *manifest.Manager
	sentinel  *sentinel.Sentinel
	collector *monitoring.Collector
	alerter   *monitoring.Alerter
	costs     *cost.Calculator
}

// New creates a Pipeline with all dependencies.
func New(
	cfg *config.Config,
	st store.Store,
	cat *catalog.Catalog,
	batchRunner *runner.Runner,
	runs *manifest.Manager,
	drift *sentinel.Sentinel,
	collector *monitoring.Collector,
	alerter *monitoring.Alerter,
) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		store:     st,
		catalog:   cat,
		runner:    batchRunner,
		manifest:  runs,
		sentinel:  drift,
		collector: collector,
		alerter:   alerter,
		costs:     cost.NewCalculator(ratesFor(cfg.Models)),
	}
}

// ratesFor resolves the per-model rate table. Explicit prices on a models
// entry win over the built-in table; the table is tried under the vendor
// model id first and the registry name second. Models priced nowhere
// estimate as zero.
func ratesFor(entries []config.ModelEntry) cost.Rates {
	defaults := cost.DefaultRates()
	rates := make(cost.Rates, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			continue
		}
		if e.InputPerMTok > 0 || e.OutputPerMTok > 0 {
			rates[e.Name] = cost.ModelRate{Input: e.InputPerMTok, Output: e.OutputPerMTok}
			continue
		}
		if r, ok := defaults[e.Model]; ok {
			rates[e.Name] = r
			continue
		}
		if r, ok := defaults[e.Name]; ok {
			rates[e.Name] = r
		}
	}
	return rates
}

// RunWindow executes one full query window: the cartesian product of
// domains, prompts, and models is opened as a manifest, run as a batch,
// persisted raw and normalized, drift-checked, and closed under the
// coverage tier. Cancellation keeps every row already finished and
// leaves the manifest open behind a checkpoint for Resume.
func (p *Pipeline) RunWindow(ctx context.Context, domains, promptIDs, models []string) (*WindowReport, error) {
	prompts := make([]model.PromptVersion, 0, len(promptIDs))
	for _, id := range promptIDs {
		pv, ok := p.catalog.Get(id)
		if !ok {
			return nil, eris.Errorf("pipeline: prompt %q not in catalog", id)
		}
		prompts = append(prompts, pv)
	}

	combos := make([]model.Combo, 0, len(domains)*len(prompts)*len(models))
	for _, domain := range domains {
		for _, prompt := range prompts {
			for _, modelName := range models {
				combos = append(combos, model.Combo{Domain: domain, PromptID: prompt.PromptID, Model: modelName})
			}
		}
	}
	if len(combos) == 0 {
		return nil, eris.New("pipeline: nothing to run, need at least one domain, prompt, and model")
	}

	windowStart := time.Now().UTC().Truncate(time.Hour)
	man, err := p.manifest.Create("", windowStart, windowStart.Add(time.Hour), combos)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: open manifest")
	}
	runID := man.RunID

	log := zap.L().With(zap.String("run_id", runID))
	log.Info("window started",
		zap.Int("domains", len(domains)),
		zap.Int("prompts", len(prompts)),
		zap.Int("models", len(models)),
		zap.Int("target_combos", man.TargetCombos),
	)

	batch, runErr := p.runner.RunBatch(ctx, domains, prompts, models)
	p.collector.AddBatch()

	// Rows finished before a cancellation still land.
	pctx := ctx
	if runErr != nil {
		pctx = context.WithoutCancel(ctx)
	}

	rawSaved, normSaved, costUSD, err := p.persistRows(pctx, runID, batch.Rows, lastErrors(batch.Errors))
	if err != nil {
		return nil, err
	}

	if runErr != nil {
		return nil, p.interrupt(ctx, runID, rawSaved, normSaved, runErr)
	}

	return p.closeWindow(ctx, runID, rawSaved, normSaved, costUSD)
}

// Resume reopens an interrupted window from its checkpoint, drives the
// combinations that never reached a terminal status, and closes the
// window the same way RunWindow does. The checkpoint is deleted once
// the window closes.
func (p *Pipeline) Resume(ctx context.Context, runID string) (*WindowReport, error) {
	data, err := p.store.LoadCheckpoint(ctx, runID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load checkpoint")
	}
	if data == nil {
		return nil, eris.Errorf("pipeline: no checkpoint for run %s", runID)
	}

	var cp manifest.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, eris.Wrapf(err, "pipeline: decode checkpoint %s", runID)
	}
	if err := p.manifest.Restore(cp); err != nil {
		return nil, err
	}

	var pending []model.Combo
	for _, obs := range cp.Observations {
		if obs.Status == model.ObsQueued || obs.Status == model.ObsRunning {
			pending = append(pending, obs.Key())
		}
	}

	log := zap.L().With(zap.String("run_id", runID))
	log.Info("window resumed", zap.Int("pending", len(pending)))

	var (
		rawSaved, normSaved int
		costUSD             float64
	)
	for _, combo := range pending {
		if ctx.Err() != nil {
			return nil, p.interrupt(ctx, runID, rawSaved, normSaved, ctx.Err())
		}

		pv, ok := p.catalog.Get(combo.PromptID)
		if !ok {
			update := manifest.ObservationUpdate{Error: "prompt no longer in catalog"}
			if _, obsErr := p.manifest.UpdateObservation(runID, combo, model.StatusSkipped, update); obsErr != nil {
				log.Warn("observation update failed", zap.Error(obsErr))
			}
			continue
		}

		batch, runErr := p.runner.RunBatch(ctx, []string{combo.Domain}, []model.PromptVersion{pv}, []string{combo.Model})
		if runErr != nil {
			pctx := context.WithoutCancel(ctx)
			raw, norm, _, persistErr := p.persistRows(pctx, runID, batch.Rows, lastErrors(batch.Errors))
			if persistErr != nil {
				return nil, persistErr
			}
			return nil, p.interrupt(ctx, runID, rawSaved+raw, normSaved+norm, runErr)
		}

		raw, norm, usd, err := p.persistRows(ctx, runID, batch.Rows, lastErrors(batch.Errors))
		if err != nil {
			return nil, err
		}
		rawSaved += raw
		normSaved += norm
		costUSD += usd
	}

	report, err := p.closeWindow(ctx, runID, rawSaved, normSaved, costUSD)
	if err != nil {
		return nil, err
	}
	if err := p.store.DeleteCheckpoint(ctx, runID); err != nil {
		log.Warn("delete checkpoint failed", zap.Error(err))
	}
	return report, nil
}

// Backfill replays one legacy export through the mapping config. The
// mapper's dedup set plus the store's insert-ignore writes make the
// whole replay idempotent: a rerun maps every row again and writes
// nothing new. Cancellation keeps the batches already mapped.
func (p *Pipeline) Backfill(ctx context.Context, source string) (*BackfillReport, error) {
	mapCfg, err := mapper.LoadMappingConfig(p.cfg.Legacy.MappingPath)
	if err != nil {
		return nil, err
	}

	reader, cleanup, err := legacyio.Open(ctx, source, legacyio.Options{})
	if err != nil {
		return nil, err
	}
	defer cleanup()

	rows, err := reader.Read(ctx)
	if err != nil {
		return nil, err
	}

	m := mapper.New(mapCfg)
	batches := legacyio.Batches(rows, 0, p.cfg.Legacy.BatchSize)
	report := &BackfillReport{Source: source, Rows: len(rows), Batches: len(batches)}

	interrupted := false
	for i, batch := range batches {
		if ctx.Err() != nil {
			interrupted = true
			zap.L().Warn("backfill interrupted",
				zap.Int("batches_done", i),
				zap.Int("batches_total", len(batches)))
			break
		}
		report.Stats.Add(m.ProcessBatch(batch))
	}

	// Rows staged before an interruption still land; the next replay
	// skips them as duplicates.
	pctx := ctx
	if interrupted {
		pctx = context.WithoutCancel(ctx)
	}

	rawSaved, err := p.store.SaveRawRecords(pctx, m.StagedRaw())
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: save staged raw records")
	}
	normSaved, err := p.store.SaveNormalizedRecords(pctx, m.StagedNormalized())
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: save staged normalized records")
	}
	if err := p.store.AppendProvenance(pctx, m.Provenance()); err != nil {
		return nil, eris.Wrap(err, "pipeline: append provenance")
	}

	report.RawSaved = rawSaved
	report.NormalizedSaved = normSaved
	p.collector.AddQuarantined(report.Stats.Quarantined)

	if interrupted {
		return report, eris.Wrap(ctx.Err(), "pipeline: backfill interrupted")
	}

	zap.L().Info("backfill finished",
		zap.String("source", source),
		zap.Int("rows", report.Rows),
		zap.Int("success", report.Stats.Success),
		zap.Int("skipped", report.Stats.Skipped),
		zap.Int("quarantined", report.Stats.Quarantined),
		zap.Int("raw_saved", rawSaved),
	)
	return report, nil
}

// GapFill retries eligible dead letter entries, one combination at a
// time. Recovered combinations land as fresh records under the retry
// minute's identity and leave the queue; failures get their retry
// schedule pushed out. The original window stays closed with the
// coverage it earned.
func (p *Pipeline) GapFill(ctx context.Context, limit int) (*GapFillReport, error) {
	entries, err := p.store.DequeueDLQ(ctx, resilience.DLQFilter{Limit: limit})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: dequeue dlq")
	}

	report := &GapFillReport{Attempted: len(entries)}
	if len(entries) == 0 {
		return report, nil
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return report, eris.Wrap(ctx.Err(), "pipeline: gap-fill interrupted")
		}

		pv, ok := p.catalog.Get(entry.Combo.PromptID)
		if !ok {
			// The prompt left the catalog, so the entry can never recover.
			if err := p.store.RemoveDLQ(ctx, entry.ID); err != nil {
				return report, eris.Wrapf(err, "pipeline: remove dlq %s", entry.ID)
			}
			report.Dropped++
			zap.L().Warn("dlq entry dropped, prompt no longer in catalog",
				zap.String("id", entry.ID),
				zap.String("prompt_id", entry.Combo.PromptID))
			continue
		}

		batch, runErr := p.runner.RunBatch(ctx, []string{entry.Combo.Domain}, []model.PromptVersion{pv}, []string{entry.Combo.Model})
		if runErr != nil {
			return report, eris.Wrap(runErr, "pipeline: gap-fill interrupted")
		}
		if len(batch.Rows) == 0 {
			continue
		}

		row := batch.Rows[0]
		usd := p.callCost(row)
		p.collector.AddCost(row.Model, usd)
		report.EstimatedCost += usd
		if row.Status == model.StatusSuccess {
			if _, err := p.store.SaveRawRecords(ctx, batch.Rows); err != nil {
				return report, eris.Wrap(err, "pipeline: save recovered record")
			}
			norm := normalizer.Normalize(row)
			if _, err := p.store.SaveNormalizedRecords(ctx, []model.NormalizedRecord{norm}); err != nil {
				return report, eris.Wrap(err, "pipeline: save recovered record")
			}
			p.collector.AddRaw(row.Status, 1)
			p.collector.AddNormalized(norm.Status, 1)
			p.sentinel.Detect(norm)

			if err := p.store.RemoveDLQ(ctx, entry.ID); err != nil {
				return report, eris.Wrapf(err, "pipeline: remove dlq %s", entry.ID)
			}
			report.Recovered++
			zap.L().Info("gap-fill recovered combination",
				zap.String("id", row.ID),
				zap.String("domain", row.Domain),
				zap.String("model", row.Model))
			continue
		}

		reason := row.Status
		if len(batch.Errors) > 0 {
			reason = batch.Errors[0].Reason
		}
		next := time.Now().UTC().Add(resilience.Backoff(entry.RetryCount, gapFillRetry))
		if err := p.store.IncrementDLQRetry(ctx, entry.ID, next, reason); err != nil {
			return report, eris.Wrapf(err, "pipeline: requeue dlq %s", entry.ID)
		}
		report.Requeued++
	}

	// Recoveries can move a combination's baseline; surface any alerts
	// the sentinel raised along the way.
	alerts := p.sentinel.Alerts()
	if len(alerts) > 0 {
		p.collector.AddDriftAlerts(len(alerts))
		if err := p.store.AppendEvents(ctx, alerts); err != nil {
			return report, eris.Wrap(err, "pipeline: append events")
		}
		p.alerter.Send(ctx, alerts)
	}

	zap.L().Info("gap-fill pass finished",
		zap.Int("attempted", report.Attempted),
		zap.Int("recovered", report.Recovered),
		zap.Int("requeued", report.Requeued),
		zap.Int("dropped", report.Dropped),
		zap.Float64("cost_usd", report.EstimatedCost),
	)
	return report, nil
}

// persistRows saves a batch's raw and normalized forms, posts each
// row's terminal status to the manifest, and runs the sentinel over the
// normalized records. Saved counts cover only rows actually written;
// reruns inside the same minute bucket write nothing. The returned
// dollar figure covers every executed call in the batch, saved or not.
func (p *Pipeline) persistRows(ctx context.Context, runID string, rows []model.RawRecord, lastErr map[model.Combo]runner.CallError) (int, int, float64, error) {
	if len(rows) == 0 {
		return 0, 0, 0, nil
	}

	rawSaved, err := p.store.SaveRawRecords(ctx, rows)
	if err != nil {
		return 0, 0, 0, eris.Wrap(err, "pipeline: save raw records")
	}

	var costUSD float64
	norms := make([]model.NormalizedRecord, 0, len(rows))
	for _, row := range rows {
		p.collector.AddRaw(row.Status, 1)
		usd := p.callCost(row)
		p.collector.AddCost(row.Model, usd)
		costUSD += usd
		norms = append(norms, normalizer.Normalize(row))

		combo := model.Combo{Domain: row.Domain, PromptID: row.PromptID, Model: row.Model}
		detail := manifest.ObservationUpdate{
			Attempts:   row.Attempt,
			LatencyMS:  row.LatencyMS,
			ResponseID: row.ID,
		}
		if ce, ok := lastErr[combo]; ok && row.Status != model.StatusSuccess {
			detail.Error = ce.Reason
		}
		if _, obsErr := p.manifest.UpdateObservation(runID, combo, row.Status, detail); obsErr != nil {
			zap.L().Warn("observation update failed",
				zap.String("run_id", runID),
				zap.String("id", row.ID),
				zap.Error(obsErr))
		}
	}

	normSaved, err := p.store.SaveNormalizedRecords(ctx, norms)
	if err != nil {
		return rawSaved, 0, costUSD, eris.Wrap(err, "pipeline: save normalized records")
	}
	for _, rec := range norms {
		p.collector.AddNormalized(rec.Status, 1)
		p.sentinel.Detect(rec)
	}
	return rawSaved, normSaved, costUSD, nil
}

// callCost estimates the spend for one executed row. Skipped rows never
// reached a provider and price at zero; failed rows still pay for their
// prompt tokens.
func (p *Pipeline) callCost(row model.RawRecord) float64 {
	if row.Status == model.StatusSkipped {
		return 0
	}
	promptChars := 0
	if pv, ok := p.catalog.Get(row.PromptID); ok {
		promptChars = len(pv.Text)
	}
	return p.costs.Call(row.Model, promptChars, len(row.Raw))
}

// closeWindow finalizes a run: coverage and tier are fixed, the
// manifest and the window's events land in the store, degraded windows
// park their failures for gap-fill, and alerts go out.
func (p *Pipeline) closeWindow(ctx context.Context, runID string, rawSaved, normSaved int, costUSD float64) (*WindowReport, error) {
	closed, err := p.manifest.Close(runID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: close manifest")
	}
	p.collector.AddTier(closed.Tier)

	if err := p.store.SaveManifest(ctx, closed); err != nil {
		return nil, eris.Wrap(err, "pipeline: save manifest")
	}

	alerts := p.sentinel.Alerts()
	p.collector.AddDriftAlerts(len(alerts))

	events := append(p.manifest.Events(), alerts...)
	if err := p.store.AppendEvents(ctx, events); err != nil {
		return nil, eris.Wrap(err, "pipeline: append events")
	}

	dlqAdded := 0
	if closed.Tier == model.TierDegraded {
		if dlqAdded, err = p.parkFailed(ctx, runID); err != nil {
			return nil, err
		}
	}

	p.alerter.Send(ctx, alertable(events))

	report := &WindowReport{
		RunID:           closed.RunID,
		Coverage:        closed.Coverage,
		Tier:            closed.Tier,
		TargetCombos:    closed.TargetCombos,
		ObservedOK:      closed.ObservedOK,
		ObservedFail:    closed.ObservedFail,
		RawSaved:        rawSaved,
		NormalizedSaved: normSaved,
		DriftAlerts:     len(alerts),
		DLQAdded:        dlqAdded,
		EstimatedCost:   costUSD,
		SkipAggregation: closed.Tier == model.TierInvalid,
	}

	zap.L().Info("window closed",
		zap.String("run_id", closed.RunID),
		zap.String("tier", closed.Tier),
		zap.Float64("coverage", closed.Coverage),
		zap.Int("observed_ok", closed.ObservedOK),
		zap.Int("observed_fail", closed.ObservedFail),
		zap.Int("drift_alerts", len(alerts)),
		zap.Int("dlq_added", dlqAdded),
		zap.Float64("cost_usd", costUSD),
	)
	return report, nil
}

// interrupt persists the partial window state on a detached context and
// leaves the manifest open so Resume can pick the run back up.
func (p *Pipeline) interrupt(ctx context.Context, runID string, rawSaved, normSaved int, cause error) error {
	dctx := context.WithoutCancel(ctx)

	if err := p.checkpoint(dctx, runID); err != nil {
		zap.L().Warn("checkpoint failed", zap.String("run_id", runID), zap.Error(err))
	}

	alerts := p.sentinel.Alerts()
	p.collector.AddDriftAlerts(len(alerts))

	events := append(p.manifest.Events(), alerts...)
	if len(events) > 0 {
		if err := p.store.AppendEvents(dctx, events); err != nil {
			zap.L().Warn("append events failed", zap.String("run_id", runID), zap.Error(err))
		}
	}

	zap.L().Warn("window interrupted",
		zap.String("run_id", runID),
		zap.Int("raw_saved", rawSaved),
		zap.Int("normalized_saved", normSaved),
		zap.Error(cause),
	)
	return eris.Wrap(cause, "pipeline: window interrupted")
}

// checkpoint snapshots one open run into the store.
func (p *Pipeline) checkpoint(ctx context.Context, runID string) error {
	cp, err := p.manifest.Checkpoint(runID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return eris.Wrapf(err, "pipeline: marshal checkpoint %s", runID)
	}
	return p.store.SaveCheckpoint(ctx, runID, data)
}

// parkFailed turns a degraded window's failed observations into dead
// letter entries. Entry ids are deterministic per run and combination,
// so reparking the same failure replaces instead of growing the queue.
func (p *Pipeline) parkFailed(ctx context.Context, runID string) (int, error) {
	failed := p.manifest.FailedObservations(runID)
	if len(failed) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	maxRetries := p.cfg.Runner.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	for _, obs := range failed {
		combo := obs.Key()
		entry := resilience.DLQEntry{
			ID:           fmt.Sprintf("%s:%s|%s|%s", runID, combo.Domain, combo.PromptID, combo.Model),
			RunID:        runID,
			Combo:        combo,
			Error:        obs.LastError,
			ErrorType:    resilience.ClassifyReason(obs.LastError),
			MaxRetries:   maxRetries,
			NextRetryAt:  now,
			CreatedAt:    now,
			LastFailedAt: now,
		}
		if err := p.store.EnqueueDLQ(ctx, entry); err != nil {
			return 0, eris.Wrapf(err, "pipeline: enqueue dlq %s", entry.ID)
		}
	}

	zap.L().Info("failed combinations parked for gap-fill",
		zap.String("run_id", runID),
		zap.Int("count", len(failed)))
	return len(failed), nil
}

// lastErrors indexes a batch's call errors by combination.
func lastErrors(errs []runner.CallError) map[model.Combo]runner.CallError {
	out := make(map[model.Combo]runner.CallError, len(errs))
	for _, ce := range errs {
		out[model.Combo{Domain: ce.Domain, PromptID: ce.PromptID, Model: ce.Model}] = ce
	}
	return out
}

// alertable filters the events worth pushing to the webhook: drift
// alerts, windows that closed below the coverage floor, and gap-fill
// requests.
func alertable(events []model.Event) []model.Event {
	var out []model.Event
	for _, ev := range events {
		switch ev.Type {
		case model.EventDriftAlert, model.EventAggregationSkipped, model.EventGapFillNeeded:
			out = append(out, ev)
		}
	}
	return out
}
