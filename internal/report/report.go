// Package report defines the report-type plugin surface: each Reporter turns
// API records into a flat, fixed-column types.Report.
package report

import (
	"context"
	"io"
	"log/slog"
	"net/url"

	"github.com/buemura/sectools/pkg/types"
)

// Source is the subset of the API session reporters need.
type Source interface {
	FetchAll(ctx context.Context, path string, query url.Values) ([]types.Record, error)
	Get(ctx context.Context, ref string, query url.Values) (types.Record, error)
}

// Matcher selects records. The CEL filter implements it.
type Matcher interface {
	Match(r types.Record) (bool, error)
}

// Progress receives per-item progress for slow detail fetches.
type Progress interface {
	Step(done, total int)
	Done()
}

// Reporter is the interface every report type implements.
type Reporter interface {
	Name() string
	Description() string
	Run(ctx context.Context, src Source, opts Options) (*types.Report, error)
}

// Options holds report-wide parameters.
type Options struct {
	// Where, if set, drops records it does not match before any detail fetch.
	Where     Matcher
	ExtraArgs map[string]string
	Logger    *slog.Logger
	Progress  Progress
}

// Arg returns ExtraArgs[key] or def when unset.
func (o Options) Arg(key, def string) string {
	if v, ok := o.ExtraArgs[key]; ok && v != "" {
		return v
	}
	return def
}

// Log returns the configured logger or a discarding one.
func (o Options) Log() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Step reports progress when a Progress is configured.
func (o Options) Step(done, total int) {
	if o.Progress != nil {
		o.Progress.Step(done, total)
	}
}

// StepDone clears the progress line when a Progress is configured.
func (o Options) StepDone() {
	if o.Progress != nil {
		o.Progress.Done()
	}
}

// Select applies the Where matcher to records.
func (o Options) Select(records []types.Record) ([]types.Record, error) {
	if o.Where == nil {
		return records, nil
	}
	kept := make([]types.Record, 0, len(records))
	for _, r := range records {
		ok, err := o.Where.Match(r)
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, r)
		}
	}
	return kept, nil
}
