// Package report renders production reports as xlsx workbooks and CSV files.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/biogas-cli/internal/model"
	"github.com/sells-group/biogas-cli/internal/production"
)

// Sheet names.
const (
	SummarySheet = "Summary"
	DataSheet    = "Data"
)

// DataHeader is the header row of the data sheet and the CSV file.
var DataHeader = []string{
	"Day",
	"Date",
	"Expected production (m3/day)",
	"Actual production (m3/day)",
	"Actual cumulative (m3)",
	"Expected cumulative (m3)",
}

// Document is everything a report file shows.
type Document struct {
	SystemName string
	Report     model.Report
	Stage      model.Stage
	Comparison production.Comparison
}

// TypeLabel is the human label for a report type.
func TypeLabel(t model.ReportType) string {
	if t == model.ReportFinal {
		return "Final production report"
	}
	return "Regular report"
}

var title = cases.Title(language.English)

// SummaryRows returns the field/value pairs of the summary sheet.
func (d Document) SummaryRows() [][]string {
	return [][]string{
		{"Field", "Value"},
		{"System", d.SystemName},
		{"Report type", TypeLabel(d.Report.Type)},
		{"Stage", fmt.Sprintf("#%d", d.Stage.Number)},
		{"Material", title.String(d.Stage.MaterialType)},
		{"Amount (kg)", formatFloat(d.Stage.AmountKg)},
		{"Temperature (C)", formatFloat(d.Stage.TemperatureC)},
		{"Estimated production (m3)", fmt.Sprintf("%.2f", d.Report.ProductionEstimated)},
		{"Actual production (m3)", fmt.Sprintf("%.2f", d.Report.ProductionReal)},
		{"Inferences", d.Report.Inferences},
		{"Observations", d.Report.Observations},
	}
}

// DataRows returns the data sheet rows without the header. The day column
// counts from 0 at the stage start.
func (d Document) DataRows() [][]string {
	c := d.Comparison
	rows := make([][]string, 0, len(c.Dates))
	for i, date := range c.Dates {
		rows = append(rows, []string{
			formatFloat(c.Actual.Days[i]),
			date,
			formatFloat(c.Expected.DailyM3[i]),
			formatFloat(c.Actual.DailyM3[i]),
			formatFloat(c.Actual.CumulativeM3[i]),
			formatFloat(c.Expected.CumulativeM3[i]),
		})
	}
	return rows
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Writer writes report files into a directory.
type Writer struct {
	dir string
}

// NewWriter creates a Writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Files are the paths of one report's rendered files.
type Files struct {
	Excel string
	CSV   string
}

// Write renders both files for d, named after the report ID, and returns
// their paths.
func (w *Writer) Write(d Document) (Files, error) {
	if d.Report.ID == "" {
		return Files{}, eris.New("report: document has no report id")
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return Files{}, eris.Wrapf(err, "report: create dir %s", w.dir)
	}

	files := Files{
		Excel: filepath.Join(w.dir, "report_"+d.Report.ID+".xlsx"),
		CSV:   filepath.Join(w.dir, "report_"+d.Report.ID+".csv"),
	}
	if err := WriteXLSX(files.Excel, d); err != nil {
		return Files{}, err
	}
	if err := WriteCSVFile(files.CSV, d); err != nil {
		return Files{}, err
	}
	return files, nil
}
