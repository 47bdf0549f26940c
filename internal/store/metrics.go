package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/buemura/sectools/pkg/types"
)

// DefaultFixAgeDays is how long a fix may be available before an image counts.
const DefaultFixAgeDays = 90

// MetricsOptions controls Metrics.
type MetricsOptions struct {
	// Days is the fix-availability age threshold.
	Days int
	// InfraPrefix marks infrastructure images by image name prefix.
	InfraPrefix string
	// BasePrefix marks base images by image name prefix.
	BasePrefix string
	// Now is the reference date; defaults to the current time.
	Now time.Time
}

type platform struct {
	name  string
	where string
}

var platforms = []platform{
	{"all", ""},
	{"eks", "K8S_cluster_name LIKE '%eks%'"},
	{"gke", "K8S_cluster_name LIKE '%gke%'"},
	{"other", "K8S_cluster_name NOT LIKE '%eks%' AND K8S_cluster_name NOT LIKE '%gke%'"},
}

// imageType is a filter on the Image column; ok is false when the
// classification is not configured.
type imageType struct {
	name  string
	where string
	args  []any
	ok    bool
}

func imageTypes(opts MetricsOptions) []imageType {
	var (
		conds []string
		args  []any
	)
	if opts.InfraPrefix != "" {
		conds = append(conds, "Image NOT LIKE ?")
		args = append(args, opts.InfraPrefix+"%")
	}
	if opts.BasePrefix != "" {
		conds = append(conds, "Image NOT LIKE ?")
		args = append(args, opts.BasePrefix+"%")
	}
	return []imageType{
		{name: "all", ok: true},
		{name: "base", where: "Image LIKE ?", args: []any{opts.BasePrefix + "%"}, ok: opts.BasePrefix != ""},
		{name: "infrastructure", where: "Image LIKE ?", args: []any{opts.InfraPrefix + "%"}, ok: opts.InfraPrefix != ""},
		{name: "application", where: strings.Join(conds, " AND "), args: args, ok: len(conds) > 0},
	}
}

// Metrics counts, per platform and image type, the distinct running images
// and those carrying Critical or High findings whose fix has been available
// for more than opts.Days.
func (s *Store) Metrics(ctx context.Context, opts MetricsOptions) (*types.Report, error) {
	if opts.Days <= 0 {
		opts.Days = DefaultFixAgeDays
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	date := opts.Now.UTC().Format("2006-01-02")

	rep := types.NewReport("metrics", types.TitleColumns(
		"Date",
		"K8s Platform",
		"Image Type",
		"Total Images",
		fmt.Sprintf("Images w/Criticals fixable for %d days", opts.Days),
		fmt.Sprintf("Images w/Highs fixable for %d days", opts.Days),
	))

	for _, p := range platforms {
		for _, it := range imageTypes(opts) {
			if !it.ok {
				rep.Append([]string{date, p.name, it.name, "", "", ""})
				continue
			}

			conds := []string{"CAST(K8S_POD_count AS INTEGER) > 0"}
			var args []any
			if p.where != "" {
				conds = append(conds, p.where)
			}
			if it.where != "" {
				conds = append(conds, it.where)
				args = append(args, it.args...)
			}

			total, err := s.countImages(ctx, conds, args)
			if err != nil {
				return nil, err
			}
			critical, err := s.countImages(ctx, fixAged(conds, "CRITICAL"), append(args, date, opts.Days))
			if err != nil {
				return nil, err
			}
			high, err := s.countImages(ctx, fixAged(conds, "HIGH"), append(args, date, opts.Days))
			if err != nil {
				return nil, err
			}

			rep.Append([]string{date, p.name, it.name,
				strconv.Itoa(total), strconv.Itoa(critical), strconv.Itoa(high)})
		}
	}
	return rep, nil
}

func fixAged(conds []string, severity string) []string {
	out := append([]string(nil), conds...)
	return append(out,
		"upper(Severity) = '"+severity+"'",
		"round(julianday(?) - julianday(Vuln_Fix_date)) > ?",
	)
}

func (s *Store) countImages(ctx context.Context, conds []string, args []any) (int, error) {
	query := "SELECT count(DISTINCT Image_ID) FROM vulns WHERE " + strings.Join(conds, " AND ")
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("querying metrics: %w", err)
	}
	return n, nil
}
