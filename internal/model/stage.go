package model

import "time"

// Stage is one filling of the digester: the feedstock loaded and the period it
// stays active. At most one stage is active at a time.
type Stage struct {
	ID           string     `json:"id"`
	Number       int        `json:"number"`
	Date         time.Time  `json:"date"`
	People       string     `json:"people"`
	MaterialType string     `json:"material_type" validate:"required"`
	AmountKg     float64    `json:"material_amount_kg" validate:"gte=0"`
	HumidityPct  float64    `json:"material_humidity_pct" validate:"gte=0,lte=100"`
	AddedWaterM3 float64    `json:"added_water_m3" validate:"gte=0"`
	TemperatureC float64    `json:"temperature_c"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
}

// Reading is one persisted sensor message.
type Reading struct {
	ID          int64          `json:"id"`
	StageID     string         `json:"stage_id"`
	Timestamp   time.Time      `json:"timestamp"`
	PressureHPa *float64       `json:"pressure_hpa,omitempty"`
	BiolFlow    *float64       `json:"biol_flow,omitempty"`
	GasFlow     *float64       `json:"gas_flow,omitempty"`
	RawPayload  map[string]any `json:"raw_payload,omitempty"`
}

// DayCount is the number of readings stored on one calendar day.
type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}
