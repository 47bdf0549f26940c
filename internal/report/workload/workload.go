// Package workload builds the runtime workload vulnerability report: one row
// per vulnerability of every vulnerable package in every running workload.
package workload

import (
	"context"
	"fmt"
	"net/url"

	"github.com/buemura/sectools/internal/report"
	"github.com/buemura/sectools/pkg/types"
	"github.com/tidwall/gjson"
)

const (
	// ResultsPath lists runtime scan results.
	ResultsPath = "secure/vulnerability/v1beta1/runtime-results"
	// DetailPath is the per-result detail endpoint; the result id is appended.
	DetailPath = "secure/vulnerability/v1beta1/results"

	resultsLimit   = "1000"
	workloadFilter = "asset.type = 'workload'"
	nvdLink        = "https://nvd.nist.gov/vuln/detail/"
)

// Columns is the fixed workload report layout.
var Columns = []types.Column{
	{Title: "Vulnerability ID", Key: "vuln_name"},
	{Title: "Scan time", Key: "scan_time"},
	{Title: "Severity", Key: "vuln_severity_value"},
	{Title: "Package name", Key: "package_name"},
	{Title: "Package version", Key: "package_version"},
	{Title: "Package type", Key: "package_type"},
	{Title: "Package path", Key: "package_path"},
	{Title: "Image", Key: "image_pull_string"},
	{Title: "OS Name", Key: "base_os"},
	{Title: "CVSS version", Key: "vuln_cvss_score_value_version"},
	{Title: "CVSS score", Key: "vuln_cvss_score_value_score"},
	{Title: "CVSS vector", Key: "vuln_cvss_score_value_vector"},
	{Title: "Vuln link", Key: "vuln_link"},
	{Title: "Vuln Publish date", Key: "vuln_disclosure_date"},
	{Title: "Vuln Fix date", Key: "vuln_solution_date"},
	{Title: "Fix version", Key: "vuln_fixed_in_version"},
	{Title: "Public Exploit", Key: "vuln_exploitable"},
	{Title: "K8S cluster name", Key: "kubernetes_cluster_name"},
	{Title: "K8S namespace name", Key: "kubernetes_namespace_name"},
	{Title: "K8S workload type", Key: "kubernetes_workload_type"},
	{Title: "K8S workload name", Key: "kubernetes_workload_name"},
	{Title: "K8S container name", Key: "kubernetes_pod_container_name"},
	{Title: "Image ID", Key: "image_id"},
	{Title: "K8S POD count", Key: "kubernetes_pod_count"},
	{Title: "Package suggested fix", Key: "package_suggested_fix"},
	{Title: "In use", Key: "package_in_use"},
	{Title: "Risk accepted", Key: "risk_accepted"},
}

var severityCounters = []string{"critical", "high", "medium", "low", "negligible"}

// HasVulnerabilities reports whether the per-severity totals of a runtime
// result sum to more than zero.
func HasVulnerabilities(result types.Record) bool {
	var total int64
	for _, sev := range severityCounters {
		total += result.Int("vulnTotalBySeverity." + sev)
	}
	return total > 0
}

// Reporter implements report.Reporter for runtime workloads.
type Reporter struct{}

// New creates the workload reporter.
func New() *Reporter { return &Reporter{} }

func (r *Reporter) Name() string { return "workloads" }
func (r *Reporter) Description() string {
	return "Runtime workload vulnerabilities, one row per vulnerable package finding"
}

func (r *Reporter) Run(ctx context.Context, src report.Source, opts report.Options) (*types.Report, error) {
	log := opts.Log()

	log.Info("retrieving runtime workload scan results")
	results, err := src.FetchAll(ctx, ResultsPath, url.Values{
		"filter": {workloadFilter},
		"limit":  {resultsLimit},
	})
	if err != nil {
		return nil, fmt.Errorf("listing runtime results: %w", err)
	}
	log.Info("found scan results", "count", len(results))

	results, err = opts.Select(results)
	if err != nil {
		return nil, fmt.Errorf("applying filter: %w", err)
	}

	var vulnerable []types.Record
	for _, res := range results {
		if HasVulnerabilities(res) {
			vulnerable = append(vulnerable, res)
		}
	}
	log.Info("found scan results with vulnerabilities",
		"with_vulns", len(vulnerable), "without_vulns", len(results)-len(vulnerable))

	details, err := fetchDetails(ctx, src, vulnerable, opts)
	if err != nil {
		return nil, err
	}
	log.Info("found runtime image scan results", "count", len(details))

	rep := types.NewReport(r.Name(), Columns)
	for _, res := range vulnerable {
		id := res.String("resultId")
		detail := details[id]

		// An explicitly blank pull string is skipped; an absent one is kept.
		if pull := detail.Get("result.metadata.pullString"); pull.Exists() && pull.String() == "" {
			log.Warn("found a blank image pull string", "result_id", id)
			continue
		}
		for _, row := range Rows(res, detail) {
			rep.Append(row)
		}
	}
	return rep, nil
}

// fetchDetails fetches each distinct resultId once.
func fetchDetails(ctx context.Context, src report.Source, results []types.Record, opts report.Options) (map[string]types.Record, error) {
	cache := make(map[string]types.Record, len(results))
	defer opts.StepDone()

	for i, res := range results {
		opts.Step(i+1, len(results))

		v, err := res.Require("resultId")
		if err != nil {
			return nil, fmt.Errorf("runtime result %d: %w", i, err)
		}
		id := v.String()
		if _, ok := cache[id]; ok {
			continue
		}
		detail, err := src.Get(ctx, DetailPath+"/"+url.PathEscape(id), nil)
		if err != nil {
			return nil, fmt.Errorf("fetching result %s: %w", id, err)
		}
		cache[id] = detail
	}
	return cache, nil
}

// Rows flattens one runtime result and its detail into report rows.
// Packages without vulnerabilities produce nothing.
func Rows(result, detail types.Record) [][]string {
	scope := func(label string) string {
		return result.String("scope." + gjson.Escape(label))
	}
	meta := detail.Get("result.metadata")

	var rows [][]string
	for _, pkg := range detail.Get("result.packages").Array() {
		vulns := pkg.Get("vulns")
		if !vulns.Exists() || vulns.Type == gjson.Null {
			continue
		}

		pkgType := pkg.Get("type").String()
		pkgPath := pkg.Get("path").String()
		// os packages carry no meaningful path.
		if pkgType == "os" {
			pkgPath = ""
		}

		for _, v := range vulns.Array() {
			name := v.Get("name").String()
			cvss := v.Get("cvssScore.value")
			rows = append(rows, []string{
				name,
				meta.Get("createdAt").String(),
				v.Get("severity.value").String(),
				pkg.Get("name").String(),
				pkg.Get("version").String(),
				pkgType,
				pkgPath,
				meta.Get("pullString").String(),
				meta.Get("baseOs").String(),
				cvss.Get("version").String(),
				cvss.Get("score").String(),
				cvss.Get("vector").String(),
				nvdLink + name,
				v.Get("disclosureDate").String(),
				v.Get("solutionDate").String(),
				v.Get("fixedInVersion").String(),
				v.Get("exploitable").String(),
				scope("kubernetes.cluster.name"),
				scope("kubernetes.namespace.name"),
				scope("kubernetes.workload.type"),
				scope("kubernetes.workload.name"),
				scope("kubernetes.pod.container.name"),
				meta.Get("imageId").String(),
				"1",
				pkg.Get("suggestedFix").String(),
				pkg.Get("inUse").String(),
				"false",
			})
		}
	}
	return rows
}
