package model

import "time"

// ReportType distinguishes periodic reports from the report that closes a stage.
type ReportType string

const (
	ReportNormal ReportType = "normal"
	ReportFinal  ReportType = "final"
)

// Valid reports whether t is a known report type.
func (t ReportType) Valid() bool {
	return t == ReportNormal || t == ReportFinal
}

// Report is a production report for a stage with its generated files.
type Report struct {
	ID                  string     `json:"id"`
	StageID             string     `json:"stage_id"`
	Type                ReportType `json:"report_type"`
	Observations        string     `json:"observations"`
	Inferences          string     `json:"inferences"`
	ProductionEstimated float64    `json:"production_estimated"`
	ProductionReal      float64    `json:"production_real"`
	ExcelPath           string     `json:"file_excel,omitempty"`
	CSVPath             string     `json:"file_csv,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}
