package monitoring

import (
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gonum.org/v1/gonum/stat"
)

// Handler returns the Prometheus exposition handler for this collector's
// private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Snapshot returns current metric values for the JSON dashboard, including
// request-latency percentiles over the recent window.
func (m *Metrics) Snapshot() map[string]interface{} {
	m.mu.RLock()
	snap := m.snapshot
	durations := make([]float64, len(snap.requestDurations))
	copy(durations, snap.requestDurations)
	m.mu.RUnlock()

	latency := map[string]interface{}{}
	if len(durations) > 0 {
		sort.Float64s(durations)
		latency["p50_ms"] = stat.Quantile(0.50, stat.Empirical, durations, nil) * 1000
		latency["p95_ms"] = stat.Quantile(0.95, stat.Empirical, durations, nil) * 1000
		latency["p99_ms"] = stat.Quantile(0.99, stat.Empirical, durations, nil) * 1000
		latency["mean_ms"] = stat.Mean(durations, nil) * 1000
	}

	return map[string]interface{}{
		"uptime_seconds":   time.Since(m.startTime).Seconds(),
		"total_requests":   snap.TotalRequests,
		"total_errors":     snap.TotalErrors,
		"events_published": snap.EventsPublished,
		"events_dropped":   snap.EventsDropped,
		"jobs_submitted":   snap.JobsSubmitted,
		"jobs_completed":   snap.JobsCompleted,
		"jobs_failed":      snap.JobsFailed,
		"ws_connections":   snap.WSConnections,
		"request_latency":  latency,
	}
}
