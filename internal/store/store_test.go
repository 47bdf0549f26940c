package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/buemura/sectools/internal/report/workload"
	"github.com/buemura/sectools/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type vuln struct {
	image, imageID, cluster, severity, fixDate, pods string
}

func csvFixture(t *testing.T, vulns ...vuln) *bytes.Buffer {
	t.Helper()
	rep := types.NewReport("workloads", workload.Columns)
	titles := rep.Titles()
	col := func(title string) int {
		i := slices.Index(titles, title)
		require.GreaterOrEqual(t, i, 0, title)
		return i
	}
	for _, v := range vulns {
		row := make([]string, len(workload.Columns))
		row[col("Image")] = v.image
		row[col("Image ID")] = v.imageID
		row[col("K8S cluster name")] = v.cluster
		row[col("Severity")] = v.severity
		row[col("Vuln Fix date")] = v.fixDate
		row[col("K8S POD count")] = v.pods
		rep.Append(row)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	require.NoError(t, w.Write(rep.Titles()))
	require.NoError(t, w.WriteAll(rep.Rows))
	return &buf
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Create(context.Background(), filepath.Join(t.TempDir(), "vulns.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestColumnName(t *testing.T) {
	assert.Equal(t, "K8S_POD_count", ColumnName("K8S POD count"))
	assert.Equal(t, "Image_ID", ColumnName(" Image ID "))
}

func TestCreate_RefusesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vulns.db")
	s, err := Create(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Create(context.Background(), path)
	assert.ErrorIs(t, err, ErrDatabaseExists)
}

func TestDSN_EscapesPath(t *testing.T) {
	assert.Equal(t, "file:/tmp/a%3Fb%23c.db?mode=rw&_busy_timeout=3000", dsn("/tmp/a?b#c.db", "rw"))
}

func TestCreate_PathWithURIMetacharacters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vulns?mode=ro#x.db")
	ctx := context.Background()

	s, err := Create(ctx, path)
	require.NoError(t, err)
	_, err = s.LoadCSV(ctx, csvFixture(t, vuln{image: "a", imageID: "1", pods: "1"}))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.FileExists(t, path)
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.db"))
	assert.Error(t, err)
}

func TestLoadCSV(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	n, err := s.LoadCSV(ctx, csvFixture(t,
		vuln{image: "nginx:1", imageID: "i1", cluster: "prod-eks", severity: "Critical", pods: "1"},
		vuln{image: "redis:7", imageID: "i2", cluster: "prod-gke", severity: "High", pods: "1"},
	))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestLoadCSV_UnknownHeader(t *testing.T) {
	s := newStore(t)
	_, err := s.LoadCSV(context.Background(), strings.NewReader("Image,Bogus\nnginx,x\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Bogus")
}

func TestLoadCSV_Empty(t *testing.T) {
	s := newStore(t)
	_, err := s.LoadCSV(context.Background(), strings.NewReader(""))
	assert.Error(t, err)
}

func TestLoadCSV_ReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vulns.db")
	ctx := context.Background()
	s, err := Create(ctx, path)
	require.NoError(t, err)
	_, err = s.LoadCSV(ctx, csvFixture(t, vuln{image: "a", imageID: "1", pods: "1"}))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func metricsRow(t *testing.T, rep *types.Report, platform, imageType string) []string {
	t.Helper()
	for _, row := range rep.Rows {
		if row[1] == platform && row[2] == imageType {
			return row
		}
	}
	t.Fatalf("no metrics row for %s/%s", platform, imageType)
	return nil
}

func TestMetrics(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.LoadCSV(ctx, csvFixture(t,
		// old critical fix on an eks application image, two findings for one image
		vuln{image: "acme/app:1", imageID: "app1", cluster: "prod-eks", severity: "Critical", fixDate: "2024-01-01", pods: "1"},
		vuln{image: "acme/app:1", imageID: "app1", cluster: "prod-eks", severity: "Critical", fixDate: "2024-01-02", pods: "1"},
		// recent high fix on a gke infra image
		vuln{image: "infra/proxy:2", imageID: "inf1", cluster: "gke-1", severity: "High", fixDate: "2024-05-20", pods: "1"},
		// old high fix on an on-prem base image
		vuln{image: "base/debian:12", imageID: "base1", cluster: "onprem", severity: "HIGH", fixDate: "2023-01-01", pods: "1"},
		// not running
		vuln{image: "acme/idle:1", imageID: "idle", cluster: "prod-eks", severity: "Critical", fixDate: "2023-01-01", pods: "0"},
	))
	require.NoError(t, err)

	rep, err := s.Metrics(ctx, MetricsOptions{InfraPrefix: "infra/", BasePrefix: "base/", Now: now})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Date", "K8s Platform", "Image Type", "Total Images",
		"Images w/Criticals fixable for 90 days", "Images w/Highs fixable for 90 days",
	}, rep.Titles())
	assert.Len(t, rep.Rows, 16)

	assert.Equal(t, []string{"2024-06-01", "all", "all", "3", "1", "1"}, metricsRow(t, rep, "all", "all"))
	assert.Equal(t, []string{"2024-06-01", "eks", "all", "1", "1", "0"}, metricsRow(t, rep, "eks", "all"))
	assert.Equal(t, []string{"2024-06-01", "gke", "infrastructure", "1", "0", "0"}, metricsRow(t, rep, "gke", "infrastructure"))
	assert.Equal(t, []string{"2024-06-01", "other", "base", "1", "0", "1"}, metricsRow(t, rep, "other", "base"))
	assert.Equal(t, []string{"2024-06-01", "all", "application", "1", "1", "0"}, metricsRow(t, rep, "all", "application"))
}

func TestMetrics_UnconfiguredPrefixesLeaveBlanks(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.LoadCSV(ctx, csvFixture(t,
		vuln{image: "acme/app:1", imageID: "app1", cluster: "eks", severity: "Critical", fixDate: "2024-01-01", pods: "1"},
	))
	require.NoError(t, err)

	rep, err := s.Metrics(ctx, MetricsOptions{Days: 30, Now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	assert.Equal(t, "Images w/Criticals fixable for 30 days", rep.Titles()[4])
	assert.Equal(t, []string{"2024-06-01", "all", "base", "", "", ""}, metricsRow(t, rep, "all", "base"))
	assert.Equal(t, []string{"2024-06-01", "all", "application", "", "", ""}, metricsRow(t, rep, "all", "application"))
	assert.Equal(t, "1", metricsRow(t, rep, "eks", "all")[3])
}
