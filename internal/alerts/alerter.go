// Package alerts raises threshold alerts from sensor payloads.
package alerts

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/biogas-cli/internal/config"
	"github.com/sells-group/biogas-cli/internal/metrics"
	"github.com/sells-group/biogas-cli/internal/model"
	"github.com/sells-group/biogas-cli/internal/telemetry"
)

// Payload keys checked by the default rules.
const (
	FieldPressure    = "presion"
	FieldTemperature = "temperatura"
)

// Rule flags a payload field whose value leaves [Min, Max].
type Rule struct {
	Field   string
	Message string
	Min     float64
	Max     float64
}

// Rules builds the pressure and temperature rules from config.
func Rules(cfg config.AlertsConfig) []Rule {
	return []Rule{
		{Field: FieldPressure, Message: "Pressure out of range", Min: cfg.PressureMinHPa, Max: cfg.PressureMaxHPa},
		{Field: FieldTemperature, Message: "Temperature out of range", Min: cfg.TemperatureMinC, Max: cfg.TemperatureMaxC},
	}
}

// Recorder persists alerts.
type Recorder interface {
	CreateAlert(ctx context.Context, a *model.Alert) error
}

// Alerter evaluates payloads against rules, stores the resulting alerts and
// forwards them to the webhook when one is configured.
type Alerter struct {
	rules    []Rule
	rec      Recorder
	notifier *Notifier
}

// NewAlerter creates an Alerter. The webhook notifier is only built when
// cfg.WebhookURL is set.
func NewAlerter(cfg config.AlertsConfig, rec Recorder) *Alerter {
	a := &Alerter{rules: Rules(cfg), rec: rec}
	if cfg.WebhookURL != "" {
		a.notifier = NewNotifier(cfg)
	}
	return a
}

// Evaluate returns one unsaved alert per violated rule. Missing or
// non-numeric fields never alert.
func (a *Alerter) Evaluate(p telemetry.Payload) []model.Alert {
	var out []model.Alert
	now := time.Now().UTC()
	for _, r := range a.rules {
		f := p.Field(r.Field)
		if !f.Valid() {
			continue
		}
		if f.Value >= r.Min && f.Value <= r.Max {
			continue
		}
		out = append(out, model.Alert{
			Level:   model.AlertWarn,
			Message: r.Message,
			Details: map[string]any{
				r.Field: f.Value,
				"min":   r.Min,
				"max":   r.Max,
			},
			CreatedAt: now,
		})
	}
	return out
}

// Process evaluates p, persists every alert and notifies the webhook. The
// returned alerts carry their store IDs.
func (a *Alerter) Process(ctx context.Context, p telemetry.Payload) ([]model.Alert, error) {
	raised := a.Evaluate(p)
	if len(raised) == 0 {
		return nil, nil
	}

	for i := range raised {
		if err := a.rec.CreateAlert(ctx, &raised[i]); err != nil {
			return nil, eris.Wrapf(err, "alerts: store %q", raised[i].Message)
		}
		metrics.AlertsRaised.WithLabelValues(fieldOf(raised[i])).Inc()
		zap.L().Warn("alerts: threshold violated",
			zap.String("id", raised[i].ID),
			zap.String("message", raised[i].Message),
			zap.Any("details", raised[i].Details),
		)
	}

	if a.notifier != nil {
		a.notifier.Send(ctx, raised)
	}
	return raised, nil
}

func fieldOf(al model.Alert) string {
	for _, f := range []string{FieldPressure, FieldTemperature} {
		if _, ok := al.Details[f]; ok {
			return f
		}
	}
	return al.Message
}
