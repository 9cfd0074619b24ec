package model

import "time"

// AlertLevel is the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarn     AlertLevel = "WARN"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert is a threshold violation raised from a sensor reading.
type Alert struct {
	ID        string         `json:"id"`
	Level     AlertLevel     `json:"level"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Resolved  bool           `json:"resolved"`
	CreatedAt time.Time      `json:"created_at"`
}
