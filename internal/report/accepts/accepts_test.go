package accepts

import (
	"context"
	"testing"

	"github.com/buemura/sectools/internal/report"
	"github.com/buemura/sectools/internal/report/reporttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporter_Run(t *testing.T) {
	src := reporttest.NewSource().List(DefinitionsPath,
		`{"riskAcceptanceDefinitionID":"1","entityType":"vulnerability","entityValue":"CVE-1","context":[{"contextType":"imageName","contextValue":"nginx"}],"reason":"RiskTransferred","status":"active"}`,
		`{"riskAcceptanceDefinitionID":"2","entityType":"imageName","entityValue":"redis","context":[]}`,
	)

	rep, err := New().Run(context.Background(), src, report.Options{})

	require.NoError(t, err)
	require.Len(t, rep.Rows, 2)
	assert.Equal(t, []string{"1", "vulnerability", "CVE-1", "imageName", "nginx", "RiskTransferred", "", "", "active", ""}, rep.Rows[0])
	assert.Equal(t, "", rep.Rows[1][3])
	assert.Equal(t, "100", src.Calls()[0].Query.Get("limit"))
}

func TestRunningResults(t *testing.T) {
	src := reporttest.NewSource().List(RuntimeResultsPath, `{"mainAssetName":"nginx"}`)

	results, err := RunningResults(context.Background(), src)

	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, "1000", src.Calls()[0].Query.Get("limit"))
}
