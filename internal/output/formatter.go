package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/buemura/sectools/pkg/types"
)

// Formatter renders a report to a writer.
type Formatter interface {
	Format(w io.Writer, report *types.Report) error
}

// Formats lists the supported format names.
var Formats = []string{"table", "csv", "json", "markdown", "html"}

// GetFormatter returns the appropriate formatter for the given format string.
func GetFormatter(format string) (Formatter, error) {
	switch format {
	case "table":
		return &TableFormatter{}, nil
	case "csv":
		return &CSVFormatter{}, nil
	case "json":
		return &JSONFormatter{}, nil
	case "markdown":
		return &MarkdownFormatter{}, nil
	case "html":
		return &HTMLFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (supported: %s)", format, strings.Join(Formats, ", "))
	}
}

// severityColumn returns the index of the column holding severities, or -1.
func severityColumn(r *types.Report) int {
	for i, c := range r.Columns {
		if strings.EqualFold(c.Title, "Severity") {
			return i
		}
	}
	return -1
}

// severityCounts tallies rows per normalized severity.
func severityCounts(r *types.Report) (map[types.Severity]int, bool) {
	col := severityColumn(r)
	if col < 0 {
		return nil, false
	}
	counts := make(map[types.Severity]int)
	for _, row := range r.Rows {
		if col < len(row) {
			counts[types.ParseSeverity(row[col])]++
		}
	}
	return counts, true
}

func formatSummary(rows int, counts map[types.Severity]int) string {
	return fmt.Sprintf("%d rows (%d critical, %d high, %d medium, %d low, %d negligible)",
		rows,
		counts[types.SeverityCritical],
		counts[types.SeverityHigh],
		counts[types.SeverityMedium],
		counts[types.SeverityLow],
		counts[types.SeverityNegligible],
	)
}
