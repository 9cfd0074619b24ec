// Package telemetry turns raw digester sensor samples into day-bucketed gas
// production.
package telemetry

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// FieldState tags the outcome of reading one payload field.
type FieldState int

const (
	// FieldAbsent means the key is not in the payload.
	FieldAbsent FieldState = iota
	// FieldValid means the key is present and holds a number (null reads as 0).
	FieldValid
	// FieldMalformed means the key is present but the value is not numeric.
	FieldMalformed
)

func (s FieldState) String() string {
	switch s {
	case FieldAbsent:
		return "absent"
	case FieldValid:
		return "valid"
	case FieldMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Field is the parse result for one payload key.
type Field struct {
	Value float64
	State FieldState
}

// Present reports whether the key exists, regardless of whether it parsed.
func (f Field) Present() bool { return f.State != FieldAbsent }

// Valid reports whether the key exists and parsed as a number.
func (f Field) Valid() bool { return f.State == FieldValid }

// Payload is a decoded sensor message.
type Payload map[string]any

// Field reads key as a number. JSON null counts as zero; numeric strings are
// accepted; booleans, objects and other strings are malformed.
func (p Payload) Field(key string) Field {
	v, ok := p[key]
	if !ok {
		return Field{State: FieldAbsent}
	}
	n, ok := toFloat(v)
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		return Field{State: FieldMalformed}
	}
	return Field{Value: n, State: FieldValid}
}

// Has reports whether any of keys is present.
func (p Payload) Has(keys ...string) bool {
	for _, k := range keys {
		if _, ok := p[k]; ok {
			return true
		}
	}
	return false
}

// Numeric returns the subset of the payload whose values are numbers.
func (p Payload) Numeric() map[string]float64 {
	out := make(map[string]float64, len(p))
	for k, v := range p {
		switch v.(type) {
		case string, nil, bool:
			continue
		}
		if n, ok := toFloat(v); ok {
			out[k] = n
		}
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case json.Number:
		n, err := t.Float64()
		return n, err == nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(s, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
