// Package production aligns expected and measured gas production on a calendar
// grid and summarizes the deviation.
package production

import (
	"fmt"
	"math"
	"time"

	"github.com/sells-group/biogas-cli/internal/kinetics"
	"github.com/sells-group/biogas-cli/internal/telemetry"
)

// Direction of the measured total relative to the estimate.
type Direction string

const (
	Above Direction = "above"
	Below Direction = "below"
	Equal Direction = "equal"
)

// Series is a day-indexed production series.
type Series struct {
	Days         []float64 `json:"days"`
	DailyM3      []float64 `json:"daily_biogas_m3"`
	CumulativeM3 []float64 `json:"cumulative_biogas_m3"`
}

// Len returns the number of grid days.
func (s Series) Len() int { return len(s.Days) }

// Total returns the last cumulative value, or 0 for an empty series.
func (s Series) Total() float64 {
	if len(s.CumulativeM3) == 0 {
		return 0
	}
	return s.CumulativeM3[len(s.CumulativeM3)-1]
}

// Summary compares the totals of the aligned series.
type Summary struct {
	ProductionEstimated float64   `json:"production_estimated"`
	ProductionReal      float64   `json:"production_real"`
	DeviationPct        float64   `json:"deviation_pct"`
	Direction           Direction `json:"direction"`
	Narrative           string    `json:"narrative_text"`
}

// Comparison holds both aligned series and their summary.
type Comparison struct {
	Start    time.Time `json:"start"`
	Dates    []string  `json:"dates"`
	Actual   Series    `json:"actual"`
	Expected Series    `json:"expected"`
	Summary  Summary   `json:"summary"`
}

// Compare builds a grid of every calendar day from start to end inclusive, in
// start's location, and aligns the expected daily series and the measured daily
// totals on it. The expected series is truncated or zero padded to the grid.
func Compare(expected kinetics.Result, daily telemetry.DailyTotals, start, end time.Time) Comparison {
	dates := Grid(start, end)
	n := len(dates)

	c := Comparison{
		Start: dayStart(start),
		Dates: make([]string, n),
		Actual: Series{
			Days:    make([]float64, n),
			DailyM3: make([]float64, n),
		},
		Expected: Series{
			Days:    make([]float64, n),
			DailyM3: make([]float64, n),
		},
	}
	for i, d := range dates {
		key := d.Format(telemetry.DayLayout)
		c.Dates[i] = key
		c.Actual.Days[i] = float64(i)
		c.Expected.Days[i] = float64(i)
		c.Actual.DailyM3[i] = daily[key]
		if i < len(expected.DailyM3) {
			c.Expected.DailyM3[i] = expected.DailyM3[i]
		}
	}
	c.Actual.CumulativeM3 = runningSum(c.Actual.DailyM3)
	c.Expected.CumulativeM3 = runningSum(c.Expected.DailyM3)
	c.Summary = Summarize(c.Expected.Total(), c.Actual.Total())
	return c
}

// Summarize computes the deviation of real against est and its narrative.
func Summarize(est, real float64) Summary {
	diff := real - est
	s := Summary{
		ProductionEstimated: est,
		ProductionReal:      real,
		Direction:           Equal,
	}
	if est > 0 {
		s.DeviationPct = diff / est * 100
	}
	switch {
	case diff > 0:
		s.Direction = Above
	case diff < 0:
		s.Direction = Below
	}
	s.Narrative = Narrative(s)
	return s
}

// Narrative renders the one-sentence description of a summary.
func Narrative(s Summary) string {
	if s.Direction == Equal {
		return fmt.Sprintf("Actual production (%.2f m3) matches the estimate (%.2f m3).",
			s.ProductionReal, s.ProductionEstimated)
	}
	return fmt.Sprintf("Actual production (%.2f m3) is %.1f%% %s the estimate (%.2f m3).",
		s.ProductionReal, math.Abs(s.DeviationPct), s.Direction, s.ProductionEstimated)
}

// Grid returns midnight of every calendar day from start to end inclusive in
// start's location. It is empty when end falls on an earlier day than start.
func Grid(start, end time.Time) []time.Time {
	first := dayStart(start)
	last := dayStart(end.In(start.Location()))
	if last.Before(first) {
		return nil
	}
	var out []time.Time
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func runningSum(xs []float64) []float64 {
	out := make([]float64, len(xs))
	var cum float64
	for i, x := range xs {
		cum += x
		out[i] = cum
	}
	return out
}
