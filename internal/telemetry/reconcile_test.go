package telemetry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

func at(d time.Duration, p Payload) Sample {
	return Sample{Timestamp: t0.Add(d), Payload: p}
}

func TestPayloadField(t *testing.T) {
	t.Parallel()
	p := Payload{
		"num":     12.5,
		"int":     3,
		"str":     " 4.25 ",
		"null":    nil,
		"bad":     "n/a",
		"bool":    true,
		"nan":     "NaN",
		"jsonnum": json.Number("7"),
		"obj":     map[string]any{"x": 1},
	}

	tests := []struct {
		key   string
		state FieldState
		value float64
	}{
		{"num", FieldValid, 12.5},
		{"int", FieldValid, 3},
		{"str", FieldValid, 4.25},
		{"null", FieldValid, 0},
		{"jsonnum", FieldValid, 7},
		{"bad", FieldMalformed, 0},
		{"bool", FieldMalformed, 0},
		{"nan", FieldMalformed, 0},
		{"obj", FieldMalformed, 0},
		{"missing", FieldAbsent, 0},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			f := p.Field(tt.key)
			assert.Equal(t, tt.state, f.State, tt.state.String())
			assert.InDelta(t, tt.value, f.Value, 1e-12)
			assert.Equal(t, tt.state != FieldAbsent, f.Present())
		})
	}
}

func TestPayloadNumeric(t *testing.T) {
	t.Parallel()
	p := Payload{"presion": 1006.6, "temperatura": 35, "label": "x", "flag": true, "none": nil}
	assert.Equal(t, map[string]float64{"presion": 1006.6, "temperatura": 35}, p.Numeric())
}

func TestReconcile_CounterReset(t *testing.T) {
	t.Parallel()
	samples := []Sample{
		at(0, Payload{KeyGasTotal: 10.0}),
		at(time.Hour, Payload{KeyGasTotal: 12.0}),
		at(2*time.Hour, Payload{KeyGasTotal: 3.0}),
		at(3*time.Hour, Payload{KeyGasTotal: 5.0}),
	}

	var st state
	var deltas []float64
	for _, s := range samples {
		deltas = append(deltas, st.step(s).Delta)
	}
	assert.Equal(t, []float64{0, 2, 0, 2}, deltas)

	res, err := NewReconciler(nil).Reconcile(samples)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, res.Daily["2025-03-10"], 1e-12)
	assert.Equal(t, 1, res.Stats.Resets)
	assert.Equal(t, 4, res.Stats.ByMethod[StrategyCumulative])
}

func TestReconcile_FlowRateIntegration(t *testing.T) {
	t.Parallel()
	samples := []Sample{
		at(0, Payload{KeyGasRate: 1.0}),
		at(2*time.Hour, Payload{KeyGasRate: 1.0}),
	}
	var st state
	assert.Equal(t, 0.0, st.step(samples[0]).Delta, "first sample has nothing to integrate from")
	assert.InDelta(t, 2.0, st.step(samples[1]).Delta, 1e-9)

	res, err := (&Reconciler{}).Reconcile(samples)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, res.Daily["2025-03-10"], 1e-9)
}

func TestReconcile_LitresPerMinute(t *testing.T) {
	t.Parallel()
	samples := []Sample{
		at(0, Payload{KeyGasRateLMin: 10.0}),
		at(30*time.Minute, Payload{KeyGasRateLMin: 10.0}),
		at(60*time.Minute, Payload{KeyGasRateLMin: 0.0, KeyGasFlowLMin: 20.0}),
	}
	res, err := NewReconciler(time.UTC).Reconcile(samples)
	require.NoError(t, err)
	// 10 L/min = 0.6 m3/h for 0.5 h, then 20 L/min = 1.2 m3/h for 0.5 h.
	assert.InDelta(t, 0.3+0.6, res.Daily["2025-03-10"], 1e-9)
}

func TestReconcile_MalformedLitresPerMinute(t *testing.T) {
	t.Parallel()
	samples := []Sample{
		at(0, Payload{KeyGasRateLMin: 10.0}),
		at(time.Hour, Payload{KeyGasRateLMin: "x", KeyGasFlowLMin: 10.0}),
		at(2*time.Hour, Payload{KeyGasFlowLMin: "x"}),
	}
	res, err := NewReconciler(time.UTC).Reconcile(samples)
	require.NoError(t, err)
	assert.Zero(t, res.Daily["2025-03-10"])
	assert.Equal(t, 2, res.Stats.Malformed)
	assert.Zero(t, res.Stats.TotalM3)
}

func TestReconcile_IncrementField(t *testing.T) {
	t.Parallel()
	flow := 0.7
	neg := -3.0
	samples := []Sample{
		at(0, Payload{KeyGasFlow: 0.5}),
		at(time.Minute, Payload{KeyGasFlow: -1.0}),
		{Timestamp: t0.Add(2 * time.Minute), Payload: Payload{"presion": 1005.0}, GasFlow: &flow},
		{Timestamp: t0.Add(3 * time.Minute), GasFlow: &neg},
	}
	res, err := NewReconciler(nil).Reconcile(samples)
	require.NoError(t, err)
	assert.InDelta(t, 1.2, res.Daily["2025-03-10"], 1e-12)
	assert.Equal(t, 4, res.Stats.ByMethod[StrategyIncrement])
}

func TestReconcile_PriorityOrder(t *testing.T) {
	t.Parallel()
	// A cumulative total wins over rate and increment fields in the same payload.
	samples := []Sample{
		at(0, Payload{KeyGasTotal: 100.0, KeyGasRate: 50.0, KeyGasFlow: 9.0}),
		at(time.Hour, Payload{KeyGasTotal: 101.0, KeyGasRate: 50.0, KeyGasFlow: 9.0}),
	}
	res, err := NewReconciler(nil).Reconcile(samples)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Daily["2025-03-10"], 1e-12)

	// Rate wins over increment.
	samples = []Sample{
		at(0, Payload{KeyGasRate: 2.0, KeyGasFlow: 9.0}),
		at(time.Hour, Payload{KeyGasRate: 2.0, KeyGasFlow: 9.0}),
	}
	res, err = NewReconciler(nil).Reconcile(samples)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, res.Daily["2025-03-10"], 1e-12)
}

func TestReconcile_MalformedDegradesToZero(t *testing.T) {
	t.Parallel()
	samples := []Sample{
		at(0, Payload{KeyGasTotal: 10.0}),
		at(time.Hour, Payload{KeyGasTotal: "offline", KeyGasFlow: 5.0}),
		at(2*time.Hour, Payload{KeyGasTotal: 11.5}),
		at(3*time.Hour, Payload{KeyGasRate: "??"}),
		at(4*time.Hour, Payload{"temperatura": 35.0}),
		at(5*time.Hour, Payload{KeyGasTotal: nil}),
	}
	res, err := NewReconciler(nil).Reconcile(samples)
	require.NoError(t, err)

	// The malformed total does not fall through to gas_flow and leaves the last
	// total at 10, so the next valid total yields 1.5. Null reads as a zero total.
	assert.InDelta(t, 1.5, res.Daily["2025-03-10"], 1e-12)
	assert.Equal(t, 2, res.Stats.Malformed)
	assert.Equal(t, 1, res.Stats.ByMethod[StrategyNone])
	assert.Equal(t, 6, res.Stats.Samples)
}

func TestReconcile_DayBuckets(t *testing.T) {
	t.Parallel()
	samples := []Sample{
		{Timestamp: time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC), Payload: Payload{KeyGasRate: 1.0}},
		{Timestamp: time.Date(2025, 3, 11, 1, 0, 0, 0, time.UTC), Payload: Payload{KeyGasRate: 1.0}},
		{Timestamp: time.Date(2025, 3, 13, 1, 0, 0, 0, time.UTC), Payload: Payload{KeyGasFlow: 4.0}},
	}
	res, err := NewReconciler(nil).Reconcile(samples)
	require.NoError(t, err)

	// The rate delta is booked on the day of the sample that closes the interval.
	assert.Equal(t, DailyTotals{"2025-03-11": 2.0, "2025-03-13": 4.0}, res.Daily)
	assert.InDelta(t, 2.0, res.Daily.Get(samples[1].Timestamp, time.UTC), 1e-12)

	loc := time.FixedZone("UTC-5", -5*3600)
	res, err = NewReconciler(loc).Reconcile(samples)
	require.NoError(t, err)
	assert.Equal(t, DailyTotals{"2025-03-10": 2.0, "2025-03-12": 4.0}, res.Daily)
}

func TestReconcile_NonNegative(t *testing.T) {
	t.Parallel()
	samples := []Sample{
		at(0, Payload{KeyGasTotal: 50.0}),
		at(time.Minute, Payload{KeyGasTotal: 20.0}),
		at(2*time.Minute, Payload{KeyGasRate: -4.0}),
		at(3*time.Minute, Payload{KeyGasRate: -4.0}),
		at(4*time.Minute, Payload{KeyGasFlow: -2.0}),
		at(5*time.Minute, Payload{KeyGasTotal: 10.0}),
	}
	res, err := NewReconciler(nil).Reconcile(samples)
	require.NoError(t, err)
	for day, v := range res.Daily {
		assert.GreaterOrEqual(t, v, 0.0, day)
	}
	assert.Empty(t, res.Daily)
}

func TestReconcile_Ordering(t *testing.T) {
	t.Parallel()
	samples := []Sample{
		at(time.Hour, Payload{KeyGasFlow: 1.0}),
		at(0, Payload{KeyGasFlow: 1.0}),
	}
	_, err := NewReconciler(nil).Reconcile(samples)
	require.ErrorIs(t, err, ErrUnordered)

	SortSamples(samples)
	res, err := NewReconciler(nil).Reconcile(samples)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, res.Stats.TotalM3, 1e-12)

	// Duplicate timestamps are accepted and integrate over zero hours.
	dup := []Sample{
		at(0, Payload{KeyGasRate: 3.0}),
		at(0, Payload{KeyGasRate: 3.0}),
	}
	res, err = NewReconciler(nil).Reconcile(dup)
	require.NoError(t, err)
	assert.Empty(t, res.Daily)
}

func TestReconcile_Empty(t *testing.T) {
	t.Parallel()
	res, err := NewReconciler(nil).Reconcile(nil)
	require.NoError(t, err)
	assert.Empty(t, res.Daily)
	assert.Equal(t, 0, res.Stats.Samples)
}
