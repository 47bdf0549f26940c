// Package convert turns local scanner output and logs into reports.
package convert

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/buemura/sectools/pkg/types"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/tidwall/gjson"
)

// VulnColumns is the layout of the cli-scanner vulnerability report.
var VulnColumns = types.TitleColumns(
	"Vulnerability ID",
	"Severity",
	"Package Name",
	"Image ID",
	"Image Name",
	"Image Tag",
	"Package Type",
	"CVSS Vector",
	"CVSS Score",
	"CVSS Source",
	"CVSS Source URL",
	"Disclosure Date",
	"Solution Date",
	"Fix Version",
	"Package Version",
	"Package Path",
)

// PackageColumns is the layout of the cli-scanner package report.
var PackageColumns = types.TitleColumns(
	"Image Name",
	"Image Tag",
	"Image ID",
	"Package Name",
	"Package Version",
	"Package Type",
	"Package Path",
	"Exploit Count",
	"Fix Version",
)

// SplitImage separates a pull string into repository and tag. Digest
// references have an empty tag.
func SplitImage(pullString string) (string, string, error) {
	ref, err := name.ParseReference(pullString, name.WeakValidation)
	if err != nil {
		return "", "", fmt.Errorf("parsing image reference %q: %w", pullString, err)
	}
	switch r := ref.(type) {
	case name.Tag:
		return strings.TrimSuffix(pullString, ":"+r.TagStr()), r.TagStr(), nil
	case name.Digest:
		repo, _, _ := strings.Cut(pullString, "@")
		return repo, "", nil
	default:
		return pullString, "", nil
	}
}

func readScan(r io.Reader) (gjson.Result, string, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return gjson.Result{}, "", "", fmt.Errorf("reading scan results: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, "", "", fmt.Errorf("scan results are not valid JSON")
	}
	doc := gjson.ParseBytes(data)
	pull := doc.Get("metadata.pullString")
	if !pull.Exists() {
		return gjson.Result{}, "", "", fmt.Errorf("scan results: %w: metadata.pullString", types.ErrMissingField)
	}
	image, tag, err := SplitImage(pull.String())
	if err != nil {
		return gjson.Result{}, "", "", err
	}
	return doc, image, tag, nil
}

// CLIScanVulns flattens sysdig-cli-scanner JSON into one row per
// vulnerability of every package.
func CLIScanVulns(r io.Reader) (*types.Report, error) {
	doc, image, tag, err := readScan(r)
	if err != nil {
		return nil, err
	}
	imageID := doc.Get("metadata.imageID").String()

	rep := types.NewReport("cli-vulns", VulnColumns)
	for _, pkg := range doc.Get("packages.list").Array() {
		for _, v := range pkg.Get("vulnerabilities").Array() {
			cvss := v.Get("cvssScore")
			rep.Append([]string{
				v.Get("name").String(),
				v.Get("severity.label").String(),
				pkg.Get("name").String(),
				imageID,
				image,
				tag,
				pkg.Get("type").String(),
				cvss.Get("value.vector").String(),
				cvss.Get("value.score").String(),
				cvss.Get("sourceName").String(),
				cvss.Get("sourceUrl").String(),
				v.Get("disclosureDate").String(),
				v.Get("solutionDate").String(),
				pkg.Get("suggestedFix").String(),
				pkg.Get("version").String(),
				pkg.Get("packagePath").String(),
			})
		}
	}
	return rep, nil
}

// CLIScanPackages lists every package found by sysdig-cli-scanner.
func CLIScanPackages(r io.Reader) (*types.Report, error) {
	doc, image, tag, err := readScan(r)
	if err != nil {
		return nil, err
	}
	imageID := doc.Get("metadata.imageID").String()

	rep := types.NewReport("cli-packages", PackageColumns)
	for _, pkg := range doc.Get("packages.list").Array() {
		rep.Append([]string{
			image,
			tag,
			imageID,
			pkg.Get("name").String(),
			pkg.Get("version").String(),
			pkg.Get("type").String(),
			pkg.Get("packagePath").String(),
			pkg.Get("exploitCount").String(),
			pkg.Get("suggestedFix").String(),
		})
	}
	return rep, nil
}

// JSONLines converts a JSON-lines log into a report. The header is the
// union of object keys in first-seen order; missing keys render blank.
func JSONLines(r io.Reader) (*types.Report, error) {
	var (
		keys  []string
		seen  = make(map[string]struct{})
		lines []gjson.Result
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if !gjson.ValidBytes(line) {
			return nil, fmt.Errorf("line %d: invalid JSON", n)
		}
		obj := gjson.ParseBytes(line)
		if !obj.IsObject() {
			return nil, fmt.Errorf("line %d: not a JSON object", n)
		}
		obj.ForEach(func(k, _ gjson.Result) bool {
			if _, ok := seen[k.Str]; !ok {
				seen[k.Str] = struct{}{}
				keys = append(keys, k.Str)
			}
			return true
		})
		lines = append(lines, obj)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}

	cols := make([]types.Column, len(keys))
	for i, k := range keys {
		cols[i] = types.Column{Title: k, Key: k}
	}
	rep := types.NewReport("logs", cols)
	for _, obj := range lines {
		row := make([]string, len(keys))
		for i, k := range keys {
			row[i] = obj.Get(gjson.Escape(k)).String()
		}
		rep.Append(row)
	}
	return rep, nil
}
