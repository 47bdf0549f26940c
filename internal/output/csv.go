package output

import (
	"encoding/csv"
	"io"

	"github.com/buemura/sectools/pkg/types"
)

// CSVFormatter renders the header row followed by every report row.
type CSVFormatter struct{}

func (f *CSVFormatter) Format(w io.Writer, report *types.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(report.Titles()); err != nil {
		return err
	}
	if err := cw.WriteAll(report.Rows); err != nil {
		return err
	}
	return cw.Error()
}
