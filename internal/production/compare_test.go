package production

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/biogas-cli/internal/kinetics"
	"github.com/sells-group/biogas-cli/internal/telemetry"
)

func TestCompare_CalendarCompleteness(t *testing.T) {
	t.Parallel()
	start := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	end := time.Date(2025, 3, 16, 9, 0, 0, 0, time.UTC)
	daily := telemetry.DailyTotals{"2025-03-11": 3.5, "2025-03-14": 1.5, "2025-04-01": 99}
	expected := kinetics.Result{DailyM3: []float64{1, 1, 1}}

	c := Compare(expected, daily, start, end)

	require.Equal(t, 7, c.Actual.Len())
	require.Equal(t, 7, c.Expected.Len())
	assert.Equal(t, []float64{0, 1, 2, 3, 4, 5, 6}, c.Actual.Days)
	assert.Equal(t, "2025-03-10", c.Dates[0])
	assert.Equal(t, "2025-03-16", c.Dates[6])
	assert.Equal(t, []float64{0, 3.5, 0, 0, 1.5, 0, 0}, c.Actual.DailyM3)
	assert.Equal(t, []float64{0, 3.5, 3.5, 3.5, 5, 5, 5}, c.Actual.CumulativeM3)
	assert.Equal(t, []float64{1, 1, 1, 0, 0, 0, 0}, c.Expected.DailyM3)
	assert.Equal(t, []float64{1, 2, 3, 3, 3, 3, 3}, c.Expected.CumulativeM3)

	assert.InDelta(t, 3.0, c.Summary.ProductionEstimated, 1e-12)
	assert.InDelta(t, 5.0, c.Summary.ProductionReal, 1e-12)
	assert.Equal(t, Above, c.Summary.Direction)
	assert.InDelta(t, 66.6667, c.Summary.DeviationPct, 1e-3)
	assert.Equal(t, "Actual production (5.00 m3) is 66.7% above the estimate (3.00 m3).", c.Summary.Narrative)
}

func TestCompare_TruncatesExpected(t *testing.T) {
	t.Parallel()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	expected := kinetics.Result{DailyM3: []float64{2, 4, 6, 8, 10}}

	c := Compare(expected, nil, start, start.AddDate(0, 0, 1))

	assert.Equal(t, []float64{2, 4}, c.Expected.DailyM3)
	assert.Equal(t, []float64{2, 6}, c.Expected.CumulativeM3)
	assert.Equal(t, Below, c.Summary.Direction)
	assert.InDelta(t, -100.0, c.Summary.DeviationPct, 1e-12)
	assert.Equal(t, "Actual production (0.00 m3) is 100.0% below the estimate (6.00 m3).", c.Summary.Narrative)
}

func TestCompare_EndBeforeStart(t *testing.T) {
	t.Parallel()
	start := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	c := Compare(kinetics.Result{DailyM3: []float64{1}}, nil, start, start.AddDate(0, 0, -2))

	assert.Equal(t, 0, c.Actual.Len())
	assert.Equal(t, 0, c.Expected.Len())
	assert.Zero(t, c.Summary.ProductionEstimated)
	assert.Equal(t, Equal, c.Summary.Direction)
}

func TestCompare_SameDay(t *testing.T) {
	t.Parallel()
	start := time.Date(2025, 1, 5, 1, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 5, 23, 0, 0, 0, time.UTC)
	c := Compare(kinetics.Result{}, telemetry.DailyTotals{"2025-01-05": 2}, start, end)
	require.Equal(t, 1, c.Actual.Len())
	assert.Equal(t, []float64{2}, c.Actual.CumulativeM3)
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		est, real float64
		pct       float64
		dir       Direction
		narrative string
	}{
		{"above", 10, 12, 20, Above, "Actual production (12.00 m3) is 20.0% above the estimate (10.00 m3)."},
		{"below", 10, 7.5, -25, Below, "Actual production (7.50 m3) is 25.0% below the estimate (10.00 m3)."},
		{"equal", 10, 10, 0, Equal, "Actual production (10.00 m3) matches the estimate (10.00 m3)."},
		{"zero estimate", 0, 4, 0, Above, "Actual production (4.00 m3) is 0.0% above the estimate (0.00 m3)."},
		{"both zero", 0, 0, 0, Equal, "Actual production (0.00 m3) matches the estimate (0.00 m3)."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Summarize(tt.est, tt.real)
			assert.InDelta(t, tt.pct, s.DeviationPct, 1e-9)
			assert.Equal(t, tt.dir, s.Direction)
			assert.Equal(t, tt.narrative, s.Narrative)
		})
	}
}

func TestGrid_Location(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC-5", -5*3600)
	start := time.Date(2025, 3, 10, 22, 0, 0, 0, loc)
	// 03:30 UTC on the 12th is 22:30 on the 11th in loc.
	end := time.Date(2025, 3, 12, 3, 30, 0, 0, time.UTC)

	days := Grid(start, end)
	require.Len(t, days, 2)
	assert.Equal(t, time.Date(2025, 3, 11, 0, 0, 0, 0, loc), days[1])
}
