// Package runner executes domain × prompt × model batches against the
// configured model clients and emits one terminal raw record per
// combination. Failures become row statuses, never silent drops.
package runner

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/beargallbladder/domain-runner-sub003/internal/model"
	"github.com/beargallbladder/domain-runner-sub003/internal/resilience"
	"github.com/beargallbladder/domain-runner-sub003/pkg/modelclient"
)

// Config controls batch execution.
type Config struct {
	// Timeout bounds each individual model call. Default: 30s.
	Timeout time.Duration

	// MaxRetries is the total number of attempts per combination.
	// Default: 3.
	MaxRetries int

	// Concurrency bounds in-flight combinations. Default: 8.
	Concurrency int

	// RateLimit is the per-model request rate in requests per second.
	// Zero disables rate limiting.
	RateLimit float64

	// BackoffBase seeds the retry schedule. Default: 1s.
	BackoffBase time.Duration

	// BackoffCap ceils the retry schedule. Default: 8s.
	BackoffCap time.Duration
}

// CallError records the last failure seen for one combination. At most one
// is kept per combination, and it is reported even when a later attempt
// succeeded, so retry churn stays visible after the batch.
type CallError struct {
	Domain   string `json:"domain"`
	PromptID string `json:"prompt_id"`
	Model    string `json:"model"`
	Reason   string `json:"reason"`
	Attempt  int    `json:"attempt"`
}

// BatchResult carries one terminal row per attempted combination plus the
// last failure seen for each combination that had one.
type BatchResult struct {
	Rows   []model.RawRecord
	Errors []CallError
}

// Runner fans a batch out across the client registry.
type Runner struct {
	cfg      Config
	retry    resilience.RetryConfig
	clients  map[string]modelclient.Client
	breakers *resilience.ServiceBreakers
	limiters map[string]*resilience.AdaptiveLimiter

	// sleep allows test injection of the backoff wait.
	sleep func(ctx context.Context, d time.Duration)
}

// New creates a Runner over the given client registry. Zero config fields
// fall back to defaults.
func New(cfg Config, clients map[string]modelclient.Client) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 1 * time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 8 * time.Second
	}

	limiters := make(map[string]*resilience.AdaptiveLimiter)
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		for name := range clients {
			limiters[name] = resilience.NewAdaptiveLimiter(name, rate.Limit(cfg.RateLimit), burst)
		}
	}

	return &Runner{
		cfg: cfg,
		retry: resilience.RetryConfig{
			MaxAttempts:    cfg.MaxRetries,
			InitialBackoff: cfg.BackoffBase,
			MaxBackoff:     cfg.BackoffCap,
			Multiplier:     2.0,
		},
		clients:  clients,
		breakers: resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig()),
		limiters: limiters,
		sleep:    sleepCtx,
	}
}

// RunBatch executes every domain × prompt × model combination. The minute
// bucket is computed once up front, so a rerun inside the same minute
// regenerates identical row ids and stays idempotent downstream. A
// combination failing never aborts its siblings; cancellation stops new
// work but keeps the rows already finished.
func (r *Runner) RunBatch(ctx context.Context, domains []string, prompts []model.PromptVersion, models []string) (BatchResult, error) {
	bucket := model.MinuteBucket(time.Now().UTC())

	var (
		mu     sync.Mutex
		result BatchResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

dispatch:
	for _, domain := range domains {
		for _, prompt := range prompts {
			for _, modelName := range models {
				if gctx.Err() != nil {
					break dispatch
				}

				if _, ok := r.clients[modelName]; !ok {
					zap.L().Warn("model not available, skipping combination",
						zap.String("model", modelName),
						zap.String("domain", domain),
					)
					mu.Lock()
					result.Rows = append(result.Rows, model.RawRecord{
						ID:        model.RowIdentity(domain, prompt.PromptID, modelName, bucket),
						Domain:    domain,
						PromptID:  prompt.PromptID,
						Model:     modelName,
						Timestamp: bucket,
						Raw:       "",
						Status:    model.StatusSkipped,
						LatencyMS: 0,
						Attempt:   0,
					})
					result.Errors = append(result.Errors, CallError{
						Domain:   domain,
						PromptID: prompt.PromptID,
						Model:    modelName,
						Reason:   "model_not_available",
						Attempt:  0,
					})
					mu.Unlock()
					continue
				}

				g.Go(func() error {
					row, callErr := r.runOne(gctx, domain, prompt, modelName, bucket)
					mu.Lock()
					result.Rows = append(result.Rows, row)
					if callErr != nil {
						result.Errors = append(result.Errors, *callErr)
					}
					mu.Unlock()
					return nil
				})
			}
		}
	}

	_ = g.Wait() // workers report failures as rows, never as errors

	if err := ctx.Err(); err != nil {
		return result, eris.Wrap(err, "runner: batch interrupted")
	}

	zap.L().Info("batch finished",
		zap.Int("rows", len(result.Rows)),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// runOne drives one combination to a terminal status. Transport errors
// retry on the backoff schedule; an empty response is a data-quality
// failure and terminal immediately. The returned CallError is the last
// failure seen, kept even when a later attempt succeeded.
func (r *Runner) runOne(ctx context.Context, domain string, prompt model.PromptVersion, modelName, bucket string) (model.RawRecord, *CallError) {
	text := strings.ReplaceAll(prompt.Text, "{domain}", domain)
	client := r.clients[modelName]
	breaker := r.breakers.Get(modelName)
	limiter := r.limiters[modelName]

	var (
		raw      string
		status   = model.StatusFailed
		callErr  *CallError
		attempts int
	)

	start := time.Now()
	for attempts < r.cfg.MaxRetries {
		if ctx.Err() != nil {
			break
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				break
			}
		}
		attempts++

		resp, err := r.call(ctx, breaker, client, text)
		if err == nil {
			if limiter != nil {
				limiter.OnSuccess()
			}
			raw = resp
			if strings.TrimSpace(resp) == "" {
				// Empty payloads are stored as failed with raw cleared,
				// not retried: the transport worked, the content didn't.
				status = model.StatusFailed
				raw = ""
			} else {
				status = model.StatusSuccess
			}
			break
		}

		if modelclient.IsTimeout(err) {
			status = model.StatusTimeout
			callErr = &CallError{
				Domain:   domain,
				PromptID: prompt.PromptID,
				Model:    modelName,
				Reason:   "timeout",
				Attempt:  attempts,
			}
		} else {
			status = model.StatusFailed
			callErr = &CallError{
				Domain:   domain,
				PromptID: prompt.PromptID,
				Model:    modelName,
				Reason:   err.Error(),
				Attempt:  attempts,
			}
		}

		if limiter != nil && resilience.RateLimited(err) {
			limiter.OnRateLimit()
		}

		zap.L().Warn("model call failed",
			zap.String("model", modelName),
			zap.String("domain", domain),
			zap.String("prompt_id", prompt.PromptID),
			zap.Int("attempt", attempts),
			zap.Error(err),
		)

		if attempts < r.cfg.MaxRetries {
			r.sleep(ctx, resilience.Backoff(attempts-1, r.retry))
		}
	}

	row := model.RawRecord{
		ID:        model.RowIdentity(domain, prompt.PromptID, modelName, bucket),
		Domain:    domain,
		PromptID:  prompt.PromptID,
		Model:     modelName,
		Timestamp: bucket,
		Raw:       raw,
		Status:    status,
		LatencyMS: time.Since(start).Milliseconds(),
		Attempt:   attempts,
	}

	zap.L().Debug("combination finished",
		zap.String("id", row.ID),
		zap.String("model", modelName),
		zap.String("domain", domain),
		zap.String("status", status),
		zap.Int("attempt", attempts),
	)
	return row, callErr
}

// call runs one attempt through the model's circuit breaker with the
// per-call timeout applied. An open breaker fails the attempt without
// touching the provider.
func (r *Runner) call(ctx context.Context, breaker *resilience.CircuitBreaker, client modelclient.Client, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	return resilience.ExecuteVal(callCtx, breaker, func(c context.Context) (string, error) {
		return client.Call(c, prompt)
	})
}

// BreakerStates exposes the per-model circuit states for status output.
func (r *Runner) BreakerStates() map[string]resilience.CircuitState {
	return r.breakers.States()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
