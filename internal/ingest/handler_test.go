package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/biogas-cli/internal/alerts"
	"github.com/sells-group/biogas-cli/internal/config"
	"github.com/sells-group/biogas-cli/internal/model"
	"github.com/sells-group/biogas-cli/internal/store"
	"github.com/sells-group/biogas-cli/internal/telemetry"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func openStage(t *testing.T, st store.Store) *model.Stage {
	t.Helper()
	stage := &model.Stage{Number: 1, People: "crew", MaterialType: "bovino", AmountKg: 100, TemperatureC: 35}
	require.NoError(t, st.CreateStage(context.Background(), stage))
	return stage
}

func newTestHandler(st store.Store) *Handler {
	h := NewHandler(st, alerts.NewAlerter(config.AlertsConfig{
		PressureMinHPa:  990,
		PressureMaxHPa:  1015,
		TemperatureMinC: 20,
		TemperatureMaxC: 45,
	}, st))
	h.now = func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }
	return h
}

func TestHandle_StoresReading(t *testing.T) {
	st := newTestStore(t)
	stage := openStage(t, st)
	h := newTestHandler(st)
	ctx := context.Background()

	res, err := h.Handle(ctx, "http", []byte(`{"presion": 1006.65, "caudal_gas": 0.4, "biol_flow": 1.2, "temperatura": 36, "label": "sensor-1"}`))
	require.NoError(t, err)
	require.NotNil(t, res.Reading)
	assert.Empty(t, res.Dropped)
	assert.Empty(t, res.Alerts)
	assert.Equal(t, map[string]float64{"presion": 1006.65, "caudal_gas": 0.4, "biol_flow": 1.2, "temperatura": 36}, res.Numeric)

	got, err := st.ListReadings(ctx, store.ReadingFilter{StageID: stage.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC), got[0].Timestamp)
	assert.InDelta(t, 1006.65, *got[0].PressureHPa, 1e-9)
	assert.InDelta(t, 0.4, *got[0].GasFlow, 1e-9)
	assert.InDelta(t, 1.2, *got[0].BiolFlow, 1e-9)
	assert.Equal(t, "sensor-1", got[0].RawPayload["label"])
}

func TestHandle_KeyPriority(t *testing.T) {
	st := newTestStore(t)
	openStage(t, st)
	h := newTestHandler(st)

	res, err := h.Handle(context.Background(), "mqtt", []byte(`{"caudal_gas": null, "gas_flow": 0.7, "caudal_biol": 2, "biol_flow": 9}`))
	require.NoError(t, err)
	require.NotNil(t, res.Reading)
	assert.InDelta(t, 0.7, *res.Reading.GasFlow, 1e-9)
	assert.InDelta(t, 2.0, *res.Reading.BiolFlow, 1e-9)
	assert.Nil(t, res.Reading.PressureHPa)
}

func TestHandle_NoActiveStage(t *testing.T) {
	st := newTestStore(t)
	h := newTestHandler(st)

	res, err := h.Handle(context.Background(), "mqtt", []byte(`{"presion": 980}`))
	require.NoError(t, err)
	assert.Equal(t, "no_active_stage", res.Dropped)
	assert.Nil(t, res.Reading)

	// No stage means no alerts either.
	open, err := st.ListAlerts(context.Background(), true, 0)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestHandle_RaisesAlerts(t *testing.T) {
	st := newTestStore(t)
	openStage(t, st)
	h := newTestHandler(st)
	ctx := context.Background()

	res, err := h.Handle(ctx, "mqtt", []byte(`{"presion": 1020.5, "temperatura": 15}`))
	require.NoError(t, err)
	require.Len(t, res.Alerts, 2)

	open, err := st.ListAlerts(ctx, true, 0)
	require.NoError(t, err)
	assert.Len(t, open, 2)
}

func TestHandle_DecodeErrors(t *testing.T) {
	h := newTestHandler(newTestStore(t))
	for _, raw := range []string{`not json`, `[1,2]`, `null`, `"text"`} {
		_, err := h.Handle(context.Background(), "mqtt", []byte(raw))
		require.Error(t, err, raw)
		assert.ErrorIs(t, err, ErrDecode, raw)
	}
}

type stubStore struct {
	stage     *model.Stage
	activeErr error
	insertErr error
}

func (s *stubStore) ActiveStage(context.Context) (*model.Stage, error) {
	return s.stage, s.activeErr
}

func (s *stubStore) InsertReading(context.Context, *model.Reading) error {
	return s.insertErr
}

type failingAlerts struct{}

func (failingAlerts) Process(context.Context, telemetry.Payload) ([]model.Alert, error) {
	return nil, errors.New("alerts table locked")
}

func TestHandle_StageClosedRace(t *testing.T) {
	h := NewHandler(&stubStore{stage: &model.Stage{ID: "st-1"}, insertErr: store.ErrStageClosed}, nil)
	res, err := h.Handle(context.Background(), "mqtt", []byte(`{"gas_flow": 1}`))
	require.NoError(t, err)
	assert.Equal(t, "stage_closed", res.Dropped)
}

func TestHandle_StoreErrors(t *testing.T) {
	h := NewHandler(&stubStore{activeErr: errors.New("db down")}, nil)
	_, err := h.Handle(context.Background(), "mqtt", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")

	h = NewHandler(&stubStore{stage: &model.Stage{ID: "st-1"}, insertErr: errors.New("disk full")}, nil)
	_, err = h.Handle(context.Background(), "mqtt", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestHandle_AlertFailureKeepsReading(t *testing.T) {
	h := NewHandler(&stubStore{stage: &model.Stage{ID: "st-1"}}, failingAlerts{})
	res, err := h.Handle(context.Background(), "mqtt", []byte(`{"presion": 900}`))
	require.NoError(t, err)
	require.NotNil(t, res.Reading)
	assert.Empty(t, res.Alerts)
}

func TestMeasure(t *testing.T) {
	p := telemetry.Payload{"a": nil, "b": true, "c": "12.5", "d": 3.0, "e": "x"}
	assert.Nil(t, measure(p, "a", "b", "e"))
	assert.InDelta(t, 12.5, *measure(p, "a", "c", "d"), 1e-9)
	assert.InDelta(t, 3.0, *measure(p, "missing", "d"), 1e-9)
}
