package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/beargallbladder/domain-runner-sub003/internal/config"
	"github.com/beargallbladder/domain-runner-sub003/internal/model"
)

// Alerter delivers pipeline alert events to a configured webhook.
// A nil Alerter or an empty webhook URL disables delivery.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Send delivers events to the configured webhook URL.
// Returns the number of events successfully sent.
func (a *Alerter) Send(ctx context.Context, events []model.Event) int {
	if a == nil || a.cfg.WebhookURL == "" || len(events) == 0 {
		return 0
	}

	sent := 0
	for _, ev := range events {
		if err := a.sendWebhook(ctx, ev); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", ev.Type),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", ev.Type),
			zap.String("id", ev.ID),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single event to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, ev model.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal event")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
