package kinetics

import (
	"github.com/rotisserie/eris"
)

// CalcRequest is the input of the steady-state calculator. Costs are optional.
type CalcRequest struct {
	MaterialClass       string   `json:"material_class,omitempty"`
	VSKgPerDay          float64  `json:"vs_kg_per_day" validate:"gte=0"`
	ReactorVolumeM3     *float64 `json:"reactor_volume_m3,omitempty" validate:"omitempty,gte=0"`
	TemperatureC        *float64 `json:"temperature_c,omitempty"`
	HRTDays             *float64 `json:"HRT_days,omitempty" validate:"omitempty,gte=0"`
	VSCostPerKg         float64  `json:"vs_cost_per_kg,omitempty" validate:"gte=0"`
	WaterCostPerM3      float64  `json:"water_cost_per_m3,omitempty" validate:"gte=0"`
	WaterM3PerDay       float64  `json:"water_m3_per_day,omitempty" validate:"gte=0"`
	AdditivesCostPerDay float64  `json:"additives_cost_per_day,omitempty" validate:"gte=0"`
}

// CalcResult reports the operating point of the digester at the HRT horizon.
type CalcResult struct {
	Growth
	CumulativeAtHRTM3   float64            `json:"cumulative_biogas_m3_at_HRT"`
	BiogasM3PerDay      float64            `json:"biogas_m3_per_day_estimated"`
	MethaneM3PerDay     float64            `json:"methane_m3_per_day"`
	VSDegradedKgPerDay  float64            `json:"vs_degraded_kg_per_day"`
	VSOutKgPerDay       float64            `json:"vs_out_kg_per_day"`
	BiolM3PerDay        float64            `json:"biol_volume_m3_per_day"`
	Parameters          MaterialParameters `json:"parameters_used"`
	CostVSPerDay        float64            `json:"cost_vs_usd_per_day"`
	CostWaterPerDay     float64            `json:"cost_water_usd_per_day"`
	CostAdditivesPerDay float64            `json:"cost_additives_usd_per_day"`
	TotalCostPerDay     float64            `json:"total_cost_usd_per_day"`
}

const defaultCalcTemperature = 35.0

// Estimate evaluates the Gompertz curve at the HRT horizon and derives the daily
// methane, degraded solids, effluent volume and operating cost.
func Estimate(req CalcRequest, p MaterialParameters) (*CalcResult, error) {
	if !finite(req.VSKgPerDay) || req.VSKgPerDay < 0 {
		return nil, eris.Wrapf(ErrInvalidInput, "vs_kg_per_day must be a finite value >= 0, got %v", req.VSKgPerDay)
	}
	if req.HRTDays != nil && *req.HRTDays < 0 {
		return nil, eris.Wrapf(ErrInvalidInput, "HRT_days must be >= 0, got %v", *req.HRTDays)
	}

	temp := defaultCalcTemperature
	if req.TemperatureC != nil {
		temp = *req.TemperatureC
	}
	if !finite(temp) {
		return nil, eris.Wrapf(ErrInvalidInput, "temperature_c must be finite, got %v", temp)
	}
	hrt := p.HRTDefault
	if req.HRTDays != nil {
		hrt = *req.HRTDays
	}

	g := Kinetics(p, req.VSKgPerDay, req.ReactorVolumeM3, hrt, temp)

	daily := GompertzRate(hrt, g.PotentialM3, g.MuG, p.Lag)
	methane := daily * p.FCH4
	var degraded float64
	if p.Y > 0 {
		degraded = methane / p.Y
	}
	outflow := g.ReactorVolumeM3
	if hrt > 0 {
		outflow = g.ReactorVolumeM3 / hrt
	}

	costVS := req.VSKgPerDay * req.VSCostPerKg
	costWater := req.WaterM3PerDay * req.WaterCostPerM3

	return &CalcResult{
		Growth:              g,
		CumulativeAtHRTM3:   GompertzCumulative(hrt, g.PotentialM3, g.MuG, p.Lag),
		BiogasM3PerDay:      daily,
		MethaneM3PerDay:     methane,
		VSDegradedKgPerDay:  degraded,
		VSOutKgPerDay:       max(req.VSKgPerDay-degraded, 0),
		BiolM3PerDay:        outflow,
		Parameters:          p,
		CostVSPerDay:        costVS,
		CostWaterPerDay:     costWater,
		CostAdditivesPerDay: req.AdditivesCostPerDay,
		TotalCostPerDay:     costVS + costWater + req.AdditivesCostPerDay,
	}, nil
}
