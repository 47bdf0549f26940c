package output

import (
	"fmt"
	"html/template"
	"io"

	"github.com/buemura/sectools/pkg/types"
)

// HTMLFormatter renders the report as a self-contained HTML page with
// styled severity badges.
type HTMLFormatter struct{}

func (f *HTMLFormatter) Format(w io.Writer, report *types.Report) error {
	counts, hasSeverity := severityCounts(report)
	return htmlTpl.Execute(w, templateData{
		Report:      report,
		SevCol:      severityColumn(report),
		HasSeverity: hasSeverity,
		Counts:      counts,
	})
}

type templateData struct {
	Report      *types.Report
	SevCol      int
	HasSeverity bool
	Counts      map[types.Severity]int
}

// severityClass maps a severity label to a CSS class name.
func severityClass(label string) string {
	switch types.ParseSeverity(label) {
	case types.SeverityCritical:
		return "critical"
	case types.SeverityHigh:
		return "high"
	case types.SeverityMedium:
		return "medium"
	case types.SeverityLow:
		return "low"
	default:
		return "negligible"
	}
}

var funcMap = template.FuncMap{
	"severityClass": severityClass,
	"count": func(counts map[types.Severity]int, sev string) int {
		return counts[types.Severity(sev)]
	},
}

var htmlTpl = template.Must(template.New("report").Funcs(funcMap).Parse(fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Report.Name}} report</title>
<style>%s</style>
</head>
<body>
<div class="container">
  <h1>{{.Report.Name}} report</h1>
  <p class="generated">Generated {{.Report.GeneratedAt.UTC.Format "2006-01-02 15:04:05 MST"}}</p>

  <div class="summary-bar">
    {{if .HasSeverity}}
    <span class="badge critical">{{count .Counts "CRITICAL"}} Critical</span>
    <span class="badge high">{{count .Counts "HIGH"}} High</span>
    <span class="badge medium">{{count .Counts "MEDIUM"}} Medium</span>
    <span class="badge low">{{count .Counts "LOW"}} Low</span>
    <span class="badge negligible">{{count .Counts "NEGLIGIBLE"}} Negligible</span>
    {{end}}
    <span class="total">{{len .Report.Rows}} rows</span>
  </div>

  {{if not .Report.Rows}}
    <p class="no-rows">No rows.</p>
  {{else}}
  <table>
    <thead>
      <tr>{{range .Report.Columns}}<th>{{.Title}}</th>{{end}}</tr>
    </thead>
    <tbody>
      {{$sev := .SevCol}}
      {{range .Report.Rows}}
      <tr>{{range $i, $cell := .}}{{if and (eq $i $sev) $cell}}<td><span class="badge {{severityClass $cell}}">{{$cell}}</span></td>{{else}}<td>{{$cell}}</td>{{end}}{{end}}</tr>
      {{end}}
    </tbody>
  </table>
  {{end}}
</div>
</body>
</html>`, cssStyles)))

const cssStyles = `
*{box-sizing:border-box;margin:0;padding:0}
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Roboto,Helvetica,Arial,sans-serif;
     line-height:1.6;color:#1a1a2e;background:#f5f5fa;padding:2rem}
.container{margin:0 auto}
h1{margin-bottom:.25rem;font-size:1.8rem}
.generated{color:#666;margin-bottom:1rem}
.summary-bar{display:flex;gap:.5rem;flex-wrap:wrap;align-items:center;margin-bottom:1.5rem}
.total{margin-left:.5rem;font-weight:600}
.badge{display:inline-block;padding:2px 10px;border-radius:12px;font-size:.8rem;font-weight:700;color:#fff;text-transform:uppercase}
.badge.critical{background:#d32f2f}
.badge.high{background:#e53935}
.badge.medium{background:#f9a825;color:#333}
.badge.low{background:#0288d1}
.badge.negligible{background:#757575}
table{width:100%;border-collapse:collapse;margin-bottom:1rem;font-size:.85rem}
th,td{text-align:left;padding:.4rem .6rem;border-bottom:1px solid #e0e0e0;vertical-align:top}
th{background:#eaeaea;font-weight:600}
tr:hover{background:#f0f0ff}
.no-rows{color:#666;font-style:italic}
`
