// Package ingest persists sensor payloads arriving over MQTT or HTTP.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/biogas-cli/internal/metrics"
	"github.com/sells-group/biogas-cli/internal/model"
	"github.com/sells-group/biogas-cli/internal/store"
	"github.com/sells-group/biogas-cli/internal/telemetry"
)

// Payload keys mapped onto reading columns, in priority order.
var (
	PressureKeys = []string{"presion"}
	BiolKeys     = []string{"caudal_biol", "biol_flow"}
	GasKeys      = []string{"caudal_gas", "gas_flow"}
)

// ErrDecode is returned when a payload is not a JSON object.
var ErrDecode = eris.New("ingest: payload is not a JSON object")

// Store is the subset of store.Store the handler writes through.
type Store interface {
	ActiveStage(ctx context.Context) (*model.Stage, error)
	InsertReading(ctx context.Context, r *model.Reading) error
}

// AlertProcessor evaluates and records alerts for a payload.
type AlertProcessor interface {
	Process(ctx context.Context, p telemetry.Payload) ([]model.Alert, error)
}

// Result describes what happened to one payload.
type Result struct {
	// Numeric holds the payload fields that are numbers.
	Numeric map[string]float64 `json:"data"`
	Reading *model.Reading     `json:"reading,omitempty"`
	Alerts  []model.Alert      `json:"alerts,omitempty"`
	// Dropped is the reason the payload was not stored, empty when stored.
	Dropped string `json:"dropped,omitempty"`
}

// Handler turns raw payloads into readings for the active stage.
type Handler struct {
	store  Store
	alerts AlertProcessor
	now    func() time.Time
}

// NewHandler creates a Handler. alerts may be nil.
func NewHandler(st Store, alerts AlertProcessor) *Handler {
	return &Handler{store: st, alerts: alerts, now: time.Now}
}

// Handle decodes raw and stores it as a reading of the active stage. A payload
// with no active stage is dropped without error; only decode and store
// failures are returned.
func (h *Handler) Handle(ctx context.Context, source string, raw []byte) (*Result, error) {
	metrics.MessagesReceived.WithLabelValues(source).Inc()

	var p telemetry.Payload
	if err := json.Unmarshal(raw, &p); err != nil || p == nil {
		metrics.MessagesDropped.WithLabelValues(metrics.DropDecode).Inc()
		if err == nil {
			return nil, ErrDecode
		}
		return nil, eris.Wrapf(ErrDecode, "ingest: decode %s payload (%v)", source, err)
	}
	res := &Result{Numeric: p.Numeric()}

	stage, err := h.store.ActiveStage(ctx)
	if err != nil {
		metrics.MessagesDropped.WithLabelValues(metrics.DropStore).Inc()
		return nil, eris.Wrap(err, "ingest: load active stage")
	}
	if stage == nil {
		zap.L().Debug("ingest: no active stage, dropping payload", zap.String("source", source))
		metrics.MessagesDropped.WithLabelValues(metrics.DropNoStage).Inc()
		res.Dropped = metrics.DropNoStage
		return res, nil
	}

	r := &model.Reading{
		StageID:     stage.ID,
		Timestamp:   h.now().UTC(),
		PressureHPa: measure(p, PressureKeys...),
		BiolFlow:    measure(p, BiolKeys...),
		GasFlow:     measure(p, GasKeys...),
		RawPayload:  p,
	}
	if err := h.store.InsertReading(ctx, r); err != nil {
		if errors.Is(err, store.ErrStageClosed) {
			zap.L().Debug("ingest: stage closed during insert, dropping payload", zap.String("stage_id", stage.ID))
			metrics.MessagesDropped.WithLabelValues(metrics.DropStageClosed).Inc()
			res.Dropped = metrics.DropStageClosed
			return res, nil
		}
		metrics.MessagesDropped.WithLabelValues(metrics.DropStore).Inc()
		return nil, eris.Wrap(err, "ingest: insert reading")
	}
	metrics.ReadingsStored.Inc()
	res.Reading = r

	if h.alerts != nil {
		raised, err := h.alerts.Process(ctx, p)
		if err != nil {
			// The reading is already stored; alert failures are logged only.
			zap.L().Error("ingest: alert processing failed", zap.String("stage_id", stage.ID), zap.Error(err))
		}
		res.Alerts = raised
	}
	return res, nil
}

// measure returns the first key holding a number. Null and boolean values
// are skipped.
func measure(p telemetry.Payload, keys ...string) *float64 {
	for _, k := range keys {
		switch p[k].(type) {
		case nil, bool:
			continue
		}
		if f := p.Field(k); f.Valid() {
			v := f.Value
			return &v
		}
	}
	return nil
}
