package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/buemura/sectools/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *types.Report {
	r := types.NewReport("workloads", []types.Column{
		{Title: "Vulnerability ID", Key: "vuln_name"},
		{Title: "Severity", Key: "vuln_severity_value"},
		{Title: "Image", Key: "image_pull_string"},
	})
	r.Append([]string{"CVE-2024-0001", "Critical", "nginx:1.25"})
	r.Append([]string{"CVE-2024-0002", "Medium", "a|b"})
	return r
}

func TestGetFormatter(t *testing.T) {
	for _, name := range Formats {
		f, err := GetFormatter(name)
		require.NoError(t, err, name)
		assert.NotNil(t, f)
	}
	f, err := GetFormatter("csv")
	require.NoError(t, err)
	assert.IsType(t, &CSVFormatter{}, f)
}

func TestGetFormatter_Unknown(t *testing.T) {
	_, err := GetFormatter("xml")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown")
}

func TestCSVFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&CSVFormatter{}).Format(&buf, sampleReport()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Vulnerability ID,Severity,Image", lines[0])
	assert.Equal(t, "CVE-2024-0001,Critical,nginx:1.25", lines[1])
}

func TestCSVFormatter_Quoting(t *testing.T) {
	r := types.NewReport("x", types.TitleColumns("Description"))
	r.Append([]string{`has "quotes", and commas`})

	var buf bytes.Buffer
	require.NoError(t, (&CSVFormatter{}).Format(&buf, r))
	assert.Contains(t, buf.String(), `"has ""quotes"", and commas"`)
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&JSONFormatter{}).Format(&buf, sampleReport()))

	var decoded []map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "CVE-2024-0001", decoded[0]["vuln_name"])
	assert.Equal(t, "Critical", decoded[0]["vuln_severity_value"])
}

func TestJSONFormatter_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&JSONFormatter{}).Format(&buf, types.NewReport("x", nil)))
	assert.Equal(t, "[]\n", buf.String())
}

func TestTableFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&TableFormatter{}).Format(&buf, sampleReport()))

	out := buf.String()
	assert.Contains(t, out, "[workloads] 2 rows")
	assert.Contains(t, out, "CVE-2024-0001")
	assert.Contains(t, out, "Vulnerability ID")
	assert.Contains(t, out, "1 critical")
	assert.Contains(t, out, "1 medium")
}

func TestTableFormatter_NoRows(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&TableFormatter{}).Format(&buf, types.NewReport("accepts", types.TitleColumns("Accept ID"))))
	assert.Contains(t, buf.String(), "No rows")
}

func TestMarkdownFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&MarkdownFormatter{}).Format(&buf, sampleReport()))

	out := buf.String()
	assert.Contains(t, out, "## workloads")
	assert.Contains(t, out, "| Vulnerability ID | Severity | Image |")
	assert.Contains(t, out, "|---|---|---|")
	assert.Contains(t, out, "**CRITICAL**")
	assert.Contains(t, out, `a\|b`)
	assert.Contains(t, out, "**Summary:** 2 rows")
}

func TestHTMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&HTMLFormatter{}).Format(&buf, sampleReport()))

	out := buf.String()
	assert.Contains(t, out, "<!DOCTYPE html>")
	assert.Contains(t, out, "<th>Vulnerability ID</th>")
	assert.Contains(t, out, `<span class="badge critical">Critical</span>`)
	assert.Contains(t, out, "1 Critical")
	assert.Contains(t, out, "2 rows")
}

func TestHTMLFormatter_EscapesCells(t *testing.T) {
	r := types.NewReport("x", types.TitleColumns("Name"))
	r.Append([]string{"<script>alert(1)</script>"})

	var buf bytes.Buffer
	require.NoError(t, (&HTMLFormatter{}).Format(&buf, r))
	assert.NotContains(t, buf.String(), "<script>alert(1)</script>")
	assert.Contains(t, buf.String(), "&lt;script&gt;")
}
