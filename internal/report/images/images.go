// Package images lists where images matching a name filter are running.
package images

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/buemura/sectools/internal/report"
	"github.com/buemura/sectools/pkg/types"
	"github.com/tidwall/gjson"
)

// ResultsPath lists runtime workflow results.
const ResultsPath = "api/scanning/runtime/v2/workflows/results"

// ArgImageFilter is the ExtraArgs key holding the free-text image filter.
const ArgImageFilter = "image-filter"

const timestampLayout = "2006-01-02 15:04"

var contextLabels = []string{
	"kubernetes.cluster.name",
	"kubernetes.namespace.name",
	"kubernetes.workload.type",
	"kubernetes.workload.name",
}

// Reporter implements report.Reporter for runtime image lookups.
type Reporter struct {
	now func() time.Time
}

// New creates the images reporter.
func New() *Reporter { return &Reporter{now: time.Now} }

func (r *Reporter) Name() string        { return "images" }
func (r *Reporter) Description() string { return "Running workloads for images matching a name filter" }

func (r *Reporter) Run(ctx context.Context, src report.Source, opts report.Options) (*types.Report, error) {
	filter := opts.Arg(ArgImageFilter, "")
	if filter == "" {
		return nil, fmt.Errorf("an image name filter is required")
	}

	body, err := src.Get(ctx, ResultsPath, url.Values{
		"cursor": {""},
		"filter": {fmt.Sprintf("freeText in (%q)", filter)},
		"limit":  {"100"},
	})
	if err != nil {
		return nil, fmt.Errorf("listing runtime workflow results: %w", err)
	}

	data := body.Get("data")
	if !data.IsArray() {
		return nil, fmt.Errorf("%w: data", types.ErrMissingField)
	}

	var records []types.Record
	for _, item := range data.Array() {
		records = append(records, types.Record(item.Raw))
	}
	records, err = opts.Select(records)
	if err != nil {
		return nil, fmt.Errorf("applying filter: %w", err)
	}

	type entry struct{ image, context string }
	entries := make([]entry, 0, len(records))
	for _, rec := range records {
		image := rec.String("recordDetails.mainAssetName")
		parts := make([]string, 0, len(contextLabels)+1)
		for _, label := range contextLabels {
			parts = append(parts, rec.String("recordDetails.labels."+gjson.Escape(label)))
		}
		parts = append(parts, image)
		entries = append(entries, entry{image: image, context: strings.Join(parts, "|")})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].image != entries[j].image {
			return entries[i].image < entries[j].image
		}
		return entries[i].context < entries[j].context
	})

	stamp := r.now().Format(timestampLayout)
	rep := types.NewReport(r.Name(), types.TitleColumns("Timestamp", "Image", "Runtime context"))
	for _, e := range entries {
		rep.Append([]string{stamp, e.image, e.context})
	}
	return rep, nil
}
