package report

import (
	"context"
	"fmt"
	"time"

	"github.com/buemura/sectools/pkg/types"
)

// Runner executes reporters against one API source. Reports run one at a
// time; the API is never hit concurrently.
type Runner struct {
	registry *Registry
	source   Source
}

// NewRunner creates a runner backed by the given registry and source.
func NewRunner(registry *Registry, source Source) *Runner {
	return &Runner{registry: registry, source: source}
}

// RunOne executes a single reporter by name.
func (r *Runner) RunOne(ctx context.Context, name string, opts Options) (*types.Report, error) {
	rep, err := r.registry.Get(name)
	if err != nil {
		return nil, err
	}

	log := opts.Log()
	start := time.Now()
	log.Info("report started", "report", name)

	result, err := rep.Run(ctx, r.source, opts)
	if err != nil {
		return nil, fmt.Errorf("%s report: %w", name, err)
	}

	log.Info("report complete", "report", name, "rows", len(result.Rows), "elapsed", time.Since(start).Round(time.Millisecond))
	return result, nil
}
