// Package agents reports agent data sources grouped by version status.
package agents

import (
	"context"
	"fmt"
	"net/url"

	"github.com/buemura/sectools/internal/report"
	"github.com/buemura/sectools/pkg/types"
	"github.com/tidwall/gjson"
)

// AgentsPath lists agent data sources; filtered by the status query.
const AgentsPath = "api/cloud/v2/dataSources/agents"

// Statuses are queried in this order.
var Statuses = []string{"Up to Date", "Almost Out of Date", "Out of Date"}

// Reporter implements report.Reporter for agent data sources.
type Reporter struct{}

// New creates the agents reporter.
func New() *Reporter { return &Reporter{} }

func (r *Reporter) Name() string        { return "agents" }
func (r *Reporter) Description() string { return "Agent data sources by version status" }

// Run collects agents for every status. Columns are the union of keys in
// first-seen order, with a leading status column.
func (r *Reporter) Run(ctx context.Context, src report.Source, opts report.Options) (*types.Report, error) {
	log := opts.Log()

	var (
		keys   []string
		seen   = make(map[string]bool)
		agents []gjson.Result
		status []string
	)
	for _, st := range Statuses {
		body, err := src.Get(ctx, AgentsPath, url.Values{"status": {st}})
		if err != nil {
			return nil, fmt.Errorf("listing agents with status %q: %w", st, err)
		}
		details := body.Get("details")
		log.Info("retrieved agents", "status", st, "count", len(details.Array()))

		for _, a := range details.Array() {
			ok, err := matches(opts, a)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			a.ForEach(func(k, _ gjson.Result) bool {
				if !seen[k.String()] {
					seen[k.String()] = true
					keys = append(keys, k.String())
				}
				return true
			})
			agents = append(agents, a)
			status = append(status, st)
		}
	}

	cols := []types.Column{{Title: "status", Key: "status"}}
	for _, k := range keys {
		cols = append(cols, types.Column{Title: k, Key: k})
	}

	rep := types.NewReport(r.Name(), cols)
	for i, a := range agents {
		row := make([]string, 0, len(cols))
		row = append(row, status[i])
		for _, k := range keys {
			row = append(row, a.Get(gjson.Escape(k)).String())
		}
		rep.Append(row)
	}
	return rep, nil
}

func matches(opts report.Options, a gjson.Result) (bool, error) {
	if opts.Where == nil {
		return true, nil
	}
	return opts.Where.Match(types.Record(a.Raw))
}
