package output

import (
	"encoding/json"
	"io"

	"github.com/buemura/sectools/pkg/types"
)

// JSONFormatter renders rows as an indented array of objects keyed by
// column key.
type JSONFormatter struct{}

func (f *JSONFormatter) Format(w io.Writer, report *types.Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report.Objects())
}
