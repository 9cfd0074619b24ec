// Package kinetics implements the temperature- and substrate-limited growth model that
// predicts biogas production for a single-substrate digester.
package kinetics

import (
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// MaterialParameters holds the kinetic constants for one feedstock class.
type MaterialParameters struct {
	Y          float64 `json:"Y" yaml:"y"`                   // m3 CH4 / kg VS degraded
	FCH4       float64 `json:"fCH4" yaml:"fch4"`             // methane fraction of biogas
	Lag        float64 `json:"lag" yaml:"lag"`               // days
	MuMaxRef   float64 `json:"mu_max_ref" yaml:"mu_max_ref"` // 1/day at TRef
	Ks         float64 `json:"Ks" yaml:"ks"`                 // kg VS / m3
	Q10        float64 `json:"Q10" yaml:"q10"`
	TRef       float64 `json:"T_ref" yaml:"t_ref"` // °C
	HRTDefault float64 `json:"HRT" yaml:"hrt"`     // days, used when no reactor volume is given
	Kh         float64 `json:"k_h" yaml:"k_h"`     // hydrolysis constant, reported only
}

// DefaultParameters returns the base parameter set used for unknown materials.
func DefaultParameters() MaterialParameters {
	return MaterialParameters{
		MuMaxRef:   0.35,
		TRef:       35.0,
		Q10:        1.07,
		Ks:         2.0,
		Kh:         0.1,
		Y:          0.35,
		FCH4:       0.60,
		Lag:        2.0,
		HRTDefault: 30.0,
	}
}

// Override is a partial parameter set. Nil fields keep the base value.
type Override struct {
	Y          *float64 `yaml:"y"`
	FCH4       *float64 `yaml:"fch4"`
	Lag        *float64 `yaml:"lag"`
	MuMaxRef   *float64 `yaml:"mu_max_ref"`
	Ks         *float64 `yaml:"ks"`
	Q10        *float64 `yaml:"q10"`
	TRef       *float64 `yaml:"t_ref"`
	HRTDefault *float64 `yaml:"hrt"`
	Kh         *float64 `yaml:"k_h"`
}

// Apply returns a copy of base with the override's non-nil fields replaced.
func (o Override) Apply(base MaterialParameters) MaterialParameters {
	out := base
	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	set(&out.Y, o.Y)
	set(&out.FCH4, o.FCH4)
	set(&out.Lag, o.Lag)
	set(&out.MuMaxRef, o.MuMaxRef)
	set(&out.Ks, o.Ks)
	set(&out.Q10, o.Q10)
	set(&out.TRef, o.TRef)
	set(&out.HRTDefault, o.HRTDefault)
	set(&out.Kh, o.Kh)
	return out
}

func ptr(v float64) *float64 { return &v }

// builtinOverrides are reference values for bag digesters.
var builtinOverrides = map[string]Override{
	"bovine":    {Y: ptr(0.25), FCH4: ptr(0.6), Lag: ptr(2.5), MuMaxRef: ptr(0.25)},
	"porcine":   {Y: ptr(0.28), FCH4: ptr(0.62), Lag: ptr(2.0), MuMaxRef: ptr(0.30)},
	"vegetable": {Y: ptr(0.20), FCH4: ptr(0.55), Lag: ptr(3.0), MuMaxRef: ptr(0.20)},
}

// aliases maps alternative class names (as stored on legacy stage records) to registry keys.
var aliases = map[string]string{
	"bovino":          "bovine",
	"porcino":         "porcine",
	"vegetal":         "vegetable",
	"vegetable_waste": "vegetable",
}

// Registry is an immutable lookup of material classes. The zero value resolves
// everything to DefaultParameters.
type Registry struct {
	base      MaterialParameters
	overrides map[string]Override
}

// NewRegistry builds a registry from a base parameter set and per-class overrides.
// The maps are copied; later changes by the caller are not observed.
func NewRegistry(base MaterialParameters, overrides map[string]Override) Registry {
	m := make(map[string]Override, len(overrides))
	for k, v := range overrides {
		m[normalizeClass(k)] = v
	}
	return Registry{base: base, overrides: m}
}

// DefaultRegistry returns the registry with the built-in material classes.
func DefaultRegistry() Registry {
	return NewRegistry(DefaultParameters(), builtinOverrides)
}

// Resolve returns the parameters for materialClass. Unknown classes resolve to the
// base defaults.
func (r Registry) Resolve(materialClass string) MaterialParameters {
	base := r.base
	if base == (MaterialParameters{}) {
		base = DefaultParameters()
	}
	key := normalizeClass(materialClass)
	if o, ok := r.overrides[key]; ok {
		return o.Apply(base)
	}
	if alias, ok := aliases[key]; ok {
		if o, ok := r.overrides[alias]; ok {
			return o.Apply(base)
		}
	}
	return base
}

// Known reports whether materialClass (or one of its aliases) has an override.
func (r Registry) Known(materialClass string) bool {
	key := normalizeClass(materialClass)
	if _, ok := r.overrides[key]; ok {
		return true
	}
	_, ok := r.overrides[aliases[key]]
	return ok
}

// Classes lists the registered material classes in sorted order.
func (r Registry) Classes() []string {
	out := make([]string, 0, len(r.overrides))
	for k := range r.overrides {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normalizeClass(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// registryFile is the YAML layout accepted by LoadRegistry.
type registryFile struct {
	Defaults  Override            `yaml:"defaults"`
	Materials map[string]Override `yaml:"materials"`
}

// LoadRegistry reads a YAML file that adjusts the default parameters and adds or
// replaces material classes on top of the built-in set. An empty path returns
// DefaultRegistry.
func LoadRegistry(path string) (Registry, error) {
	if path == "" {
		return DefaultRegistry(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Registry{}, eris.Wrapf(err, "kinetics: read materials file %s", path)
	}

	var rf registryFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return Registry{}, eris.Wrapf(err, "kinetics: parse materials file %s", path)
	}

	merged := make(map[string]Override, len(builtinOverrides)+len(rf.Materials))
	for k, v := range builtinOverrides {
		merged[k] = v
	}
	for k, v := range rf.Materials {
		merged[normalizeClass(k)] = v
	}
	return NewRegistry(rf.Defaults.Apply(DefaultParameters()), merged), nil
}
