package report

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/rotisserie/eris"
)

// WriteCSV writes the data sheet as CSV.
func WriteCSV(w io.Writer, d Document) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(DataHeader); err != nil {
		return eris.Wrap(err, "csv: write header")
	}
	if err := cw.WriteAll(d.DataRows()); err != nil {
		return eris.Wrap(err, "csv: write rows")
	}
	return nil
}

// WriteCSVFile writes the data sheet as CSV to path.
func WriteCSVFile(path string, d Document) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "csv: create %s", path)
	}
	if err := WriteCSV(f, d); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrap(f.Close(), "csv: close")
}
