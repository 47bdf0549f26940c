package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/buemura/sectools/pkg/types"
)

// MarkdownFormatter renders the report as a Markdown table suitable for
// pasting into docs, issues, or pull-request descriptions.
type MarkdownFormatter struct{}

func (f *MarkdownFormatter) Format(w io.Writer, report *types.Report) error {
	fmt.Fprintf(w, "## %s\n\n", report.Name)

	if len(report.Rows) == 0 {
		fmt.Fprintln(w, "_No rows._")
		return nil
	}

	titles := report.Titles()
	for i := range titles {
		titles[i] = escapeMarkdown(titles[i])
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(titles, " | "))
	fmt.Fprintf(w, "|%s\n", strings.Repeat("---|", len(titles)))

	sevCol := severityColumn(report)
	for _, row := range report.Rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = escapeMarkdown(cell)
			if i == sevCol && cell != "" {
				cells[i] = severityBadge(cell)
			}
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
	}

	if counts, ok := severityCounts(report); ok {
		fmt.Fprintf(w, "\n**Summary:** %s\n", formatSummary(len(report.Rows), counts))
	}
	return nil
}

// severityBadge returns a bold, uppercased severity label for Markdown.
func severityBadge(label string) string {
	return fmt.Sprintf("**%s**", types.ParseSeverity(label))
}

// escapeMarkdown escapes pipe characters that would break Markdown tables.
func escapeMarkdown(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
