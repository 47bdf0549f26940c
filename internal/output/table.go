package output

import (
	"fmt"
	"io"

	"github.com/buemura/sectools/pkg/types"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// TableFormatter renders the report as a colored terminal table.
type TableFormatter struct{}

func (f *TableFormatter) Format(w io.Writer, report *types.Report) error {
	fmt.Fprintf(w, "\n[%s] %d rows\n", report.Name, len(report.Rows))

	if len(report.Rows) == 0 {
		fmt.Fprintln(w, "  No rows.")
		return nil
	}

	sevCol := severityColumn(report)

	table := tablewriter.NewWriter(w)
	table.SetHeader(report.Titles())
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	table.SetColumnSeparator("│")

	for _, row := range report.Rows {
		cells := append([]string(nil), row...)
		if sevCol >= 0 && sevCol < len(cells) {
			cells[sevCol] = colorSeverity(cells[sevCol])
		}
		table.Append(cells)
	}

	table.Render()

	if counts, ok := severityCounts(report); ok {
		fmt.Fprintf(w, "  Summary: %s\n", formatSummary(len(report.Rows), counts))
	}
	return nil
}

func colorSeverity(label string) string {
	switch types.ParseSeverity(label) {
	case types.SeverityCritical:
		return color.RedString(label)
	case types.SeverityHigh:
		return color.RedString(label)
	case types.SeverityMedium:
		return color.YellowString(label)
	case types.SeverityLow:
		return color.CyanString(label)
	case types.SeverityNegligible:
		return color.WhiteString(label)
	default:
		return label
	}
}
