package kinetics

import (
	"math"

	"github.com/rotisserie/eris"
)

// Defaults for an absent target fraction or horizon.
const (
	DefaultTargetFraction = 0.95
	DefaultMaxDays        = 120
)

// ErrInvalidInput is returned for structurally invalid numeric input.
var ErrInvalidInput = eris.New("invalid input")

// Request describes one simulation.
type Request struct {
	MaterialClass   string   `json:"material_class"`
	VSKgPerDay      float64  `json:"vs_kg_per_day"`
	ReactorVolumeM3 *float64 `json:"reactor_volume_m3,omitempty"`
	TemperatureC    float64  `json:"temperature_c"`
	HRTDays         *float64 `json:"HRT_days,omitempty"`
	// TargetFraction of the potential at which the series stops. Nil means 0.95.
	TargetFraction *float64 `json:"target_fraction,omitempty"`
	// MaxDays bounds the horizon. Nil means 120; zero yields day 0 only.
	MaxDays *int `json:"max_days,omitempty"`
}

func (r Request) targetFraction() float64 {
	if r.TargetFraction == nil {
		return DefaultTargetFraction
	}
	return *r.TargetFraction
}

func (r Request) maxDays() int {
	if r.MaxDays == nil {
		return DefaultMaxDays
	}
	return *r.MaxDays
}

// Validate checks the request. Absent target fraction and horizon take the defaults.
func (r Request) Validate() error {
	if !finite(r.VSKgPerDay) || r.VSKgPerDay < 0 {
		return eris.Wrapf(ErrInvalidInput, "vs_kg_per_day must be a finite value >= 0, got %v", r.VSKgPerDay)
	}
	if !finite(r.TemperatureC) {
		return eris.Wrapf(ErrInvalidInput, "temperature_c must be finite, got %v", r.TemperatureC)
	}
	if r.ReactorVolumeM3 != nil && (!finite(*r.ReactorVolumeM3) || *r.ReactorVolumeM3 < 0) {
		return eris.Wrapf(ErrInvalidInput, "reactor_volume_m3 must be >= 0, got %v", *r.ReactorVolumeM3)
	}
	if r.HRTDays != nil && (!finite(*r.HRTDays) || *r.HRTDays <= 0) {
		return eris.Wrapf(ErrInvalidInput, "HRT_days must be > 0, got %v", *r.HRTDays)
	}
	if tf := r.targetFraction(); !(tf > 0 && tf <= 1) {
		return eris.Wrapf(ErrInvalidInput, "target_fraction must be in (0,1], got %v", tf)
	}
	if r.maxDays() < 0 {
		return eris.Wrapf(ErrInvalidInput, "max_days must be >= 0, got %d", r.maxDays())
	}
	return nil
}

// Result is an expected production series.
type Result struct {
	Days         []float64          `json:"days"`
	DailyM3      []float64          `json:"daily_biogas_m3"`
	CumulativeM3 []float64          `json:"cumulative_biogas_m3"`
	PotentialM3  float64            `json:"A_biogas_m3"`
	Parameters   MaterialParameters `json:"params"`
}

// Len returns the number of simulated days.
func (r Result) Len() int { return len(r.Days) }

// Final returns the last cumulative value, or 0 for an empty series.
func (r Result) Final() float64 {
	if len(r.CumulativeM3) == 0 {
		return 0
	}
	return r.CumulativeM3[len(r.CumulativeM3)-1]
}

// Growth holds the intermediate rates of one simulation.
type Growth struct {
	ReactorVolumeM3 float64 `json:"reactor_volume_m3"`
	SKgPerM3        float64 `json:"S_kg_per_m3"`
	MuMax           float64 `json:"mu_max_adj_per_day"`
	MuEff           float64 `json:"mu_eff_per_day"`
	MuG             float64 `json:"mu_g_m3_per_day"`
	PotentialM3     float64 `json:"A_biogas_m3"`
}

// Kinetics computes the growth terms for a load against a parameter set.
func Kinetics(p MaterialParameters, vsKgPerDay float64, reactorVolume *float64, hrtDays, temperatureC float64) Growth {
	a := BiogasPotential(p, vsKgPerDay)
	v := ReactorVolume(reactorVolume, hrtDays, vsKgPerDay)
	s := vsKgPerDay / v
	muMax := AdjustMuByTemperature(p.MuMaxRef, p.TRef, p.Q10, temperatureC)
	muEff := MonodRate(muMax, s, p.Ks)
	return Growth{
		ReactorVolumeM3: v,
		SKgPerM3:        s,
		MuMax:           muMax,
		MuEff:           muEff,
		MuG:             muEff * a,
		PotentialM3:     a,
	}
}

// Generate steps the Gompertz curve one day at a time from t=0. It stops once the
// cumulative value reaches TargetFraction of the potential, or after MaxDays.
// A zero potential yields an all-zero series spanning the full horizon.
func Generate(req Request, p MaterialParameters) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	maxDays := req.maxDays()

	hrt := p.HRTDefault
	if req.HRTDays != nil {
		hrt = *req.HRTDays
	}
	g := Kinetics(p, req.VSKgPerDay, req.ReactorVolumeM3, hrt, req.TemperatureC)

	n := maxDays + 1
	res := Result{
		Days:         make([]float64, 0, min(n, 32)),
		DailyM3:      make([]float64, 0, min(n, 32)),
		CumulativeM3: make([]float64, 0, min(n, 32)),
		PotentialM3:  g.PotentialM3,
		Parameters:   p,
	}

	target := g.PotentialM3 * req.targetFraction()
	for day := 0; day <= maxDays; day++ {
		t := float64(day)
		rate := math.Max(GompertzRate(t, g.PotentialM3, g.MuG, p.Lag), 0)
		cum := math.Max(GompertzCumulative(t, g.PotentialM3, g.MuG, p.Lag), 0)
		// Guard against float drift above the asymptote.
		cum = math.Min(cum, g.PotentialM3)

		res.Days = append(res.Days, t)
		res.DailyM3 = append(res.DailyM3, rate)
		res.CumulativeM3 = append(res.CumulativeM3, cum)

		if g.PotentialM3 > 0 && cum >= target {
			break
		}
	}
	return res, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
