package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/biogas-cli/internal/config"
	"github.com/sells-group/biogas-cli/internal/metrics"
	"github.com/sells-group/biogas-cli/internal/model"
	"github.com/sells-group/biogas-cli/internal/resilience"
)

// Notifier posts alerts to a webhook. Deliveries beyond the per-minute budget
// are skipped rather than queued so ingest never blocks on the webhook.
type Notifier struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	backoff resilience.Backoff
}

// NewNotifier builds a Notifier from the alerts config.
func NewNotifier(cfg config.AlertsConfig) *Notifier {
	perMinute := cfg.WebhookPerMinute
	if perMinute <= 0 {
		perMinute = 6
	}
	timeout := time.Duration(cfg.WebhookTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	b := resilience.DefaultBackoff()
	b.OnRetry = resilience.LogRetry("alerts", "webhook")

	return &Notifier{
		url:     cfg.WebhookURL,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		backoff: b,
	}
}

// Send delivers alerts one by one and returns how many were accepted.
func (n *Notifier) Send(ctx context.Context, alerts []model.Alert) int {
	sent := 0
	for _, a := range alerts {
		if !n.limiter.Allow() {
			zap.L().Warn("alerts: webhook rate limit reached, skipping",
				zap.String("id", a.ID),
				zap.String("message", a.Message),
			)
			continue
		}

		err := resilience.Do(ctx, n.backoff, func(ctx context.Context) error {
			return n.post(ctx, a)
		})
		if err != nil {
			metrics.WebhookFailures.Inc()
			zap.L().Error("alerts: failed to send webhook",
				zap.String("id", a.ID),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	return sent
}

func (n *Notifier) post(ctx context.Context, a model.Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "alerts: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "alerts: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "alerts: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		err := eris.Errorf("alerts: webhook returned status %d", resp.StatusCode)
		if resilience.IsTransientStatus(resp.StatusCode) {
			return resilience.Transient(err, resp.StatusCode)
		}
		return err
	}
	return nil
}
