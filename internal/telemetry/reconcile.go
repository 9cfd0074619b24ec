package telemetry

import (
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
)

// Payload keys understood by the reconciler.
const (
	KeyGasTotal    = "gas_total_m3"    // cumulative counter, m3
	KeyGasRate     = "caudal_gas"      // flow rate, m3/h
	KeyGasRateLMin = "caudal_gas_lmin" // flow rate, L/min
	KeyGasFlowLMin = "gas_flow_lmin"   // flow rate, L/min
	KeyGasFlow     = "gas_flow"        // increment per reading, m3
)

// lpmToM3h converts L/min to m3/h.
const lpmToM3h = 0.06

// DayLayout is the key format of DailyTotals.
const DayLayout = "2006-01-02"

// ErrUnordered is returned when a sample is older than the one before it.
var ErrUnordered = eris.New("telemetry: samples are not in timestamp order")

// Sample is one stored sensor reading.
type Sample struct {
	Timestamp time.Time
	Payload   Payload
	// GasFlow is the increment column extracted at ingest time, if any.
	GasFlow *float64
}

// Strategy names which payload convention produced a sample's delta.
type Strategy string

const (
	StrategyCumulative Strategy = "cumulative_total"
	StrategyRate       Strategy = "flow_rate"
	StrategyIncrement  Strategy = "increment"
	StrategyNone       Strategy = "none"
)

// Tick is the interpretation of one sample.
type Tick struct {
	Strategy  Strategy
	Delta     float64
	Malformed bool
}

// DailyTotals maps a calendar day (DayLayout) to the gas produced that day in m3.
type DailyTotals map[string]float64

// Get returns the total for the calendar day containing t in loc.
func (d DailyTotals) Get(t time.Time, loc *time.Location) float64 {
	return d[t.In(loc).Format(DayLayout)]
}

// Stats counts how samples were interpreted.
type Stats struct {
	Samples   int              `json:"samples"`
	ByMethod  map[Strategy]int `json:"by_strategy"`
	Malformed int              `json:"malformed"`
	TotalM3   float64          `json:"total_m3"`
	Resets    int              `json:"counter_resets"`
}

// Reconciliation is the output of Reconcile.
type Reconciliation struct {
	Daily DailyTotals `json:"daily"`
	Stats Stats       `json:"stats"`
}

// Reconciler converts a sample sequence into daily totals. The zero value buckets
// days in UTC.
type Reconciler struct {
	// Location determines calendar-day boundaries.
	Location *time.Location
}

// NewReconciler returns a Reconciler that buckets days in loc (UTC when nil).
func NewReconciler(loc *time.Location) *Reconciler {
	return &Reconciler{Location: loc}
}

func (r *Reconciler) loc() *time.Location {
	if r == nil || r.Location == nil {
		return time.UTC
	}
	return r.Location
}

// state carries the running values across one Reconcile call.
type state struct {
	lastTotal *float64
	lastTS    *time.Time
}

// Reconcile walks samples in order and accumulates the positive deltas per
// calendar day. Samples must be sorted by timestamp; ties are allowed.
func (r *Reconciler) Reconcile(samples []Sample) (Reconciliation, error) {
	out := Reconciliation{
		Daily: make(DailyTotals),
		Stats: Stats{ByMethod: make(map[Strategy]int, 4)},
	}
	loc := r.loc()

	var st state
	for i, s := range samples {
		if st.lastTS != nil && s.Timestamp.Before(*st.lastTS) {
			return Reconciliation{}, eris.Wrapf(ErrUnordered, "sample %d at %s precedes %s",
				i, s.Timestamp.Format(time.RFC3339), st.lastTS.Format(time.RFC3339))
		}

		prevTotal := st.lastTotal
		tick := st.step(s)
		if tick.Strategy == StrategyCumulative && prevTotal != nil && st.lastTotal != nil && *st.lastTotal < *prevTotal {
			out.Stats.Resets++
		}

		out.Stats.Samples++
		out.Stats.ByMethod[tick.Strategy]++
		if tick.Malformed {
			out.Stats.Malformed++
		}
		if tick.Delta > 0 {
			out.Daily[s.Timestamp.In(loc).Format(DayLayout)] += tick.Delta
			out.Stats.TotalM3 += tick.Delta
		}
	}
	return out, nil
}

// step interprets one sample and advances the running state. Exactly one strategy
// applies, chosen by which keys are present.
func (st *state) step(s Sample) Tick {
	ts := s.Timestamp
	defer func() { st.lastTS = &ts }()

	p := s.Payload
	switch {
	case p.Has(KeyGasTotal):
		tick := Tick{Strategy: StrategyCumulative}
		f := p.Field(KeyGasTotal)
		if !f.Valid() {
			tick.Malformed = true
			return tick
		}
		if st.lastTotal != nil {
			tick.Delta = math.Max(0, f.Value-*st.lastTotal)
		}
		total := f.Value
		st.lastTotal = &total
		return tick

	case p.Has(KeyGasRate, KeyGasRateLMin, KeyGasFlowLMin):
		tick := Tick{Strategy: StrategyRate}
		rate, ok := flowRate(p)
		if !ok {
			tick.Malformed = true
			return tick
		}
		if st.lastTS != nil {
			hours := math.Max(0, ts.Sub(*st.lastTS).Hours())
			tick.Delta = math.Max(0, rate*hours)
		}
		return tick

	case p.Has(KeyGasFlow):
		tick := Tick{Strategy: StrategyIncrement}
		f := p.Field(KeyGasFlow)
		if !f.Valid() {
			tick.Malformed = true
			return tick
		}
		tick.Delta = math.Max(0, f.Value)
		return tick

	case s.GasFlow != nil:
		v := *s.GasFlow
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Tick{Strategy: StrategyIncrement, Malformed: true}
		}
		return Tick{Strategy: StrategyIncrement, Delta: math.Max(0, v)}
	}
	return Tick{Strategy: StrategyNone}
}

// flowRate returns the flow in m3/h. caudal_gas (m3/h) wins; otherwise the first
// non-zero L/min field is converted. A malformed field never falls through.
func flowRate(p Payload) (float64, bool) {
	if p.Has(KeyGasRate) {
		f := p.Field(KeyGasRate)
		return f.Value, f.Valid()
	}
	primary := p.Field(KeyGasRateLMin)
	if primary.Present() && !primary.Valid() {
		return 0, false
	}
	if primary.Valid() && primary.Value != 0 {
		return primary.Value * lpmToM3h, true
	}
	secondary := p.Field(KeyGasFlowLMin)
	switch {
	case secondary.Valid():
		return secondary.Value * lpmToM3h, true
	case primary.Valid():
		return 0, true
	}
	return 0, false
}

// SortSamples orders samples by timestamp in place, keeping the original order of
// ties.
func SortSamples(samples []Sample) {
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})
}
