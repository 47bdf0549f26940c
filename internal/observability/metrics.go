package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/buemura/sectools/internal/secure"
	"github.com/prometheus/client_golang/prometheus"
)

// RunMetrics exposes one command run's session statistics.
type RunMetrics struct {
	registry *prometheus.Registry
	duration prometheus.Gauge
	rows     prometheus.Gauge
	started  time.Time
}

// NewRunMetrics registers collectors reading from stats. command becomes a
// constant label on every series; started is when the run began.
func NewRunMetrics(command string, stats *secure.Stats, started time.Time) *RunMetrics {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"command": command}

	m := &RunMetrics{
		registry: reg,
		started:  started,
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "sectools_run_duration_seconds",
			Help:        "Wall time of the last run",
			ConstLabels: labels,
		}),
		rows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "sectools_report_rows",
			Help:        "Rows written by the last run",
			ConstLabels: labels,
		}),
	}

	reg.MustRegister(
		m.duration,
		m.rows,
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "sectools_api_requests_total",
			Help:        "HTTP exchanges sent to the Secure API",
			ConstLabels: labels,
		}, func() float64 { return float64(stats.Requests()) }),
	)
	for _, status := range []int{http.StatusTooManyRequests, http.StatusGatewayTimeout} {
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "sectools_api_retries_total",
			Help: "Requests retried after a retryable status",
			ConstLabels: prometheus.Labels{
				"command": command,
				"status":  fmt.Sprint(status),
			},
		}, func() float64 { return float64(stats.Retries(status)) }))
	}
	return m
}

// Registry returns the underlying registry.
func (m *RunMetrics) Registry() *prometheus.Registry { return m.registry }

// SetRows records the report size.
func (m *RunMetrics) SetRows(n int) { m.rows.Set(float64(n)) }

// WriteTextfile stamps the run duration and writes every series to path in
// the node-exporter textfile format.
func (m *RunMetrics) WriteTextfile(path string) error {
	m.duration.Set(time.Since(m.started).Seconds())
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics file: %w", err)
	}
	return nil
}
