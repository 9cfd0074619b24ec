package kinetics

import "math"

// AdjustMuByTemperature applies the Q10 law to a reference growth rate:
// mu(T) = muRef * Q10^((T - tRef)/10). No range checks are applied.
func AdjustMuByTemperature(muRef, tRef, q10, t float64) float64 {
	return muRef * math.Pow(q10, (t-tRef)/10.0)
}

// MonodRate returns the substrate-limited specific rate mu * S/(Ks+S), or 0 when
// Ks+S is not positive.
func MonodRate(muMax, s, ks float64) float64 {
	if ks+s <= 0 {
		return 0
	}
	return muMax * (s / (ks + s))
}

// GompertzCumulative is the modified Gompertz production curve:
// A * exp(-exp((muG*e/A)*(lag - t) + 1)). Returns 0 when a is 0.
func GompertzCumulative(t, a, muG, lag float64) float64 {
	if a == 0 {
		return 0
	}
	inner := (muG*math.E/a)*(lag-t) + 1.0
	return a * math.Exp(-math.Exp(inner))
}

// GompertzRate is the exact first derivative of GompertzCumulative with respect to t,
// in m3/day. Returns 0 when a is 0.
func GompertzRate(t, a, muG, lag float64) float64 {
	if a == 0 {
		return 0
	}
	k := muG * math.E / a
	expInner := math.Exp(k*(lag-t) + 1.0)
	return a * math.Exp(-expInner) * expInner * k
}

// BiogasPotential returns the total biogas potential A (m3) for a daily VS load.
// A zero or negative methane fraction degrades to the methane potential itself.
func BiogasPotential(p MaterialParameters, vsKgPerDay float64) float64 {
	methane := p.Y * vsKgPerDay
	if p.FCH4 > 0 {
		return methane / p.FCH4
	}
	return methane
}

// ReactorVolume returns the working volume used to compute the influent
// concentration. A positive explicit volume wins; otherwise it is derived from
// HRT and mass flow, floored at 1 m3.
func ReactorVolume(explicit *float64, hrtDays, vsKgPerDay float64) float64 {
	if explicit != nil && *explicit > 0 {
		return *explicit
	}
	v := hrtDays * vsKgPerDay / 1000.0
	if v <= 0 {
		return 1.0
	}
	return v
}
