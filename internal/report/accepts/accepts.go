// Package accepts reports vulnerability risk-accept definitions.
package accepts

import (
	"context"
	"fmt"
	"net/url"

	"github.com/buemura/sectools/internal/report"
	"github.com/buemura/sectools/pkg/types"
)

// DefinitionsPath lists and deletes risk-accept definitions.
const DefinitionsPath = "api/scanning/riskmanager/v2/definitions"

// RuntimeResultsPath lists runtime results; used to learn which images run.
const RuntimeResultsPath = "secure/vulnerability/v1beta1/runtime-results"

var columns = []types.Column{
	{Title: "Accept ID", Key: "riskAcceptanceDefinitionID"},
	{Title: "Entity type", Key: "entityType"},
	{Title: "Entity value", Key: "entityValue"},
	{Title: "Context type", Key: "contextType"},
	{Title: "Context value", Key: "contextValue"},
	{Title: "Reason", Key: "reason"},
	{Title: "Description", Key: "description"},
	{Title: "Expiration date", Key: "expirationDate"},
	{Title: "Status", Key: "status"},
	{Title: "Created at", Key: "createdAt"},
}

// List fetches every risk-accept definition.
func List(ctx context.Context, src report.Source) ([]types.Record, error) {
	defs, err := src.FetchAll(ctx, DefinitionsPath, url.Values{"limit": {"100"}})
	if err != nil {
		return nil, fmt.Errorf("listing risk accepts: %w", err)
	}
	return defs, nil
}

// RunningResults fetches every runtime result.
func RunningResults(ctx context.Context, src report.Source) ([]types.Record, error) {
	results, err := src.FetchAll(ctx, RuntimeResultsPath, url.Values{"limit": {"1000"}})
	if err != nil {
		return nil, fmt.Errorf("listing runtime results: %w", err)
	}
	return results, nil
}

// Reporter implements report.Reporter for risk accepts.
type Reporter struct{}

// New creates the accepts reporter.
func New() *Reporter { return &Reporter{} }

func (r *Reporter) Name() string        { return "accepts" }
func (r *Reporter) Description() string { return "Vulnerability risk-accept definitions" }

func (r *Reporter) Run(ctx context.Context, src report.Source, opts report.Options) (*types.Report, error) {
	defs, err := List(ctx, src)
	if err != nil {
		return nil, err
	}
	opts.Log().Info("found vulnerability risk accepts", "count", len(defs))

	defs, err = opts.Select(defs)
	if err != nil {
		return nil, fmt.Errorf("applying filter: %w", err)
	}

	rep := types.NewReport(r.Name(), columns)
	for _, d := range defs {
		rep.Append([]string{
			d.String("riskAcceptanceDefinitionID"),
			d.String("entityType"),
			d.String("entityValue"),
			d.String("context.0.contextType"),
			d.String("context.0.contextValue"),
			d.String("reason"),
			d.String("description"),
			d.String("expirationDate"),
			d.String("status"),
			d.String("createdAt"),
		})
	}
	return rep, nil
}
