package report

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// WriteXLSX saves a workbook with a summary sheet and a data sheet.
func WriteXLSX(path string, d Document) error {
	f := xlsx.NewFile()

	summary, err := f.AddSheet(SummarySheet)
	if err != nil {
		return eris.Wrap(err, "xlsx: add summary sheet")
	}
	for _, r := range d.SummaryRows() {
		addStringRow(summary, r)
	}

	data, err := f.AddSheet(DataSheet)
	if err != nil {
		return eris.Wrap(err, "xlsx: add data sheet")
	}
	addStringRow(data, DataHeader)
	for _, r := range d.DataRows() {
		row := data.AddRow()
		for i, v := range r {
			cell := row.AddCell()
			// Date stays text; everything else is numeric.
			if i == 1 {
				cell.SetString(v)
				continue
			}
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				cell.SetString(v)
				continue
			}
			cell.SetFloat(n)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

func addStringRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

// ReadSheet returns every row of the named sheet as strings.
func ReadSheet(path, name string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	sheet, ok := f.Sheet[name]
	if !ok {
		return nil, eris.Errorf("xlsx: sheet %q not found", name)
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}
