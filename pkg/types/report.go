package types

import (
	"strings"
	"time"
)

// Severity represents the severity level of a vulnerability.
type Severity string

const (
	SeverityCritical   Severity = "CRITICAL"
	SeverityHigh       Severity = "HIGH"
	SeverityMedium     Severity = "MEDIUM"
	SeverityLow        Severity = "LOW"
	SeverityNegligible Severity = "NEGLIGIBLE"
)

// Severities lists every severity, most severe first.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityNegligible}

// ParseSeverity normalizes an API severity label such as "high" or "Critical".
func ParseSeverity(s string) Severity {
	return Severity(strings.ToUpper(strings.TrimSpace(s)))
}

// SeverityRank returns a numeric rank for sorting (lower = more severe).
func SeverityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	case SeverityNegligible:
		return 4
	default:
		return 5
	}
}

// Column describes one report column: the human title used by CSV and
// table output, and the key used for JSON output.
type Column struct {
	Title string `json:"title"`
	Key   string `json:"key"`
}

// Report is a flat, fixed-column result produced by a reporter or converter.
type Report struct {
	Name        string     `json:"name"`
	GeneratedAt time.Time  `json:"generated_at"`
	Columns     []Column   `json:"columns"`
	Rows        [][]string `json:"rows"`
}

// NewReport creates an empty report with the given columns.
func NewReport(name string, columns []Column) *Report {
	return &Report{
		Name:        name,
		GeneratedAt: time.Now(),
		Columns:     columns,
	}
}

// Append adds a row. Short rows are padded so every row matches the header.
func (r *Report) Append(row []string) {
	for len(row) < len(r.Columns) {
		row = append(row, "")
	}
	r.Rows = append(r.Rows, row)
}

// Titles returns the column titles in order.
func (r *Report) Titles() []string {
	titles := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		titles[i] = c.Title
	}
	return titles
}

// ColumnIndex returns the position of the column with the given key, or -1.
func (r *Report) ColumnIndex(key string) int {
	for i, c := range r.Columns {
		if c.Key == key {
			return i
		}
	}
	return -1
}

// Objects returns each row as a key -> value map, for JSON output.
func (r *Report) Objects() []map[string]string {
	out := make([]map[string]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		obj := make(map[string]string, len(r.Columns))
		for i, c := range r.Columns {
			if i < len(row) {
				obj[c.Key] = row[i]
			}
		}
		out = append(out, obj)
	}
	return out
}

// TitleColumns builds columns whose key is derived from the title,
// e.g. "Package name" -> "package_name".
func TitleColumns(titles ...string) []Column {
	cols := make([]Column, len(titles))
	for i, t := range titles {
		cols[i] = Column{Title: t, Key: KeyFromTitle(t)}
	}
	return cols
}

// KeyFromTitle converts a column title to a snake_case key.
func KeyFromTitle(title string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
