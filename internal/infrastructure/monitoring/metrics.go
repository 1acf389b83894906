package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the kernel.
//
// Each Metrics value carries its own registry so independent kernel
// instances (one per test, typically) never collide on registration.
type Metrics struct {
	Registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Event bus metrics
	EventsPublished *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec

	// Job metrics
	JobsSubmitted  prometheus.Counter
	JobsByStatus   *prometheus.CounterVec
	JobDuration    prometheus.Histogram
	JobQueueDepth  prometheus.Gauge
	JobWorkersBusy prometheus.Gauge

	// Guard metrics
	CapabilityDenials *prometheus.CounterVec
	QuotaDenials      *prometheus.CounterVec

	// App registry metrics
	AppsRegistered prometheus.Gauge
	AppsEnabled    prometheus.Gauge

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for the JSON API.
type MetricsSnapshot struct {
	TotalRequests    int64
	TotalErrors      int64
	EventsPublished  int64
	EventsDropped    int64
	JobsSubmitted    int64
	JobsCompleted    int64
	JobsFailed       int64
	WSConnections    int64
	requestDurations []float64 // seconds, bounded window for percentiles
}

const snapshotWindow = 4096

// NewMetrics creates a new metrics collector with a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		Registry:  registry,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kernel_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_events_published_total",
				Help: "Total number of events accepted by the bus",
			},
			[]string{"event_type"},
		),
		EventsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_events_dropped_total",
				Help: "Total number of events dropped by contract validation",
			},
			[]string{"event_type"},
		),

		JobsSubmitted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "kernel_jobs_submitted_total",
				Help: "Total number of jobs submitted",
			},
		),
		JobsByStatus: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_jobs_terminal_total",
				Help: "Total number of jobs reaching a terminal status",
			},
			[]string{"status"},
		),
		JobDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kernel_job_duration_seconds",
				Help:    "Job execution duration in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
			},
		),
		JobQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_job_queue_depth",
				Help: "Number of jobs waiting for a worker",
			},
		),
		JobWorkersBusy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_job_workers_busy",
				Help: "Number of workers currently executing a job",
			},
		),

		CapabilityDenials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_capability_denials_total",
				Help: "Total number of capability check denials",
			},
			[]string{"app_id", "capability"},
		),
		QuotaDenials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_quota_denials_total",
				Help: "Total number of quota check denials",
			},
			[]string{"app_id", "resource"},
		),

		AppsRegistered: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_apps_registered",
				Help: "Number of registered apps",
			},
		),
		AppsEnabled: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_apps_enabled",
				Help: "Number of enabled apps",
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_ws_connections",
				Help: "Number of active stream connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_ws_messages_total",
				Help: "Total number of stream frames",
			},
			[]string{"direction", "type"},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_uptime_seconds",
				Help: "Kernel uptime in seconds",
			},
		),
	}

	// Start uptime updater
	go m.updateUptime()

	return m
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	// Update snapshot
	m.mu.Lock()
	m.snapshot.TotalRequests++
	if len(status) > 0 && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	if len(m.snapshot.requestDurations) == snapshotWindow {
		m.snapshot.requestDurations = m.snapshot.requestDurations[1:]
	}
	m.snapshot.requestDurations = append(m.snapshot.requestDurations, duration.Seconds())
	m.mu.Unlock()
}

// RecordEventPublished records an accepted publish.
func (m *Metrics) RecordEventPublished(eventType string) {
	m.EventsPublished.WithLabelValues(eventType).Inc()
	m.mu.Lock()
	m.snapshot.EventsPublished++
	m.mu.Unlock()
}

// RecordEventDropped records a publish dropped by validation.
func (m *Metrics) RecordEventDropped(eventType string) {
	m.EventsDropped.WithLabelValues(eventType).Inc()
	m.mu.Lock()
	m.snapshot.EventsDropped++
	m.mu.Unlock()
}

// RecordJobSubmitted records a job entering the queue.
func (m *Metrics) RecordJobSubmitted() {
	m.JobsSubmitted.Inc()
	m.mu.Lock()
	m.snapshot.JobsSubmitted++
	m.mu.Unlock()
}

// RecordJobTerminal records a job reaching a terminal status.
func (m *Metrics) RecordJobTerminal(status string, duration time.Duration) {
	m.JobsByStatus.WithLabelValues(status).Inc()
	if duration > 0 {
		m.JobDuration.Observe(duration.Seconds())
	}
	m.mu.Lock()
	switch status {
	case "COMPLETED":
		m.snapshot.JobsCompleted++
	case "FAILED":
		m.snapshot.JobsFailed++
	}
	m.mu.Unlock()
}

// RecordCapabilityDenial records a failed capability check.
func (m *Metrics) RecordCapabilityDenial(appID, capability string) {
	m.CapabilityDenials.WithLabelValues(appID, capability).Inc()
}

// RecordQuotaDenial records a failed quota check.
func (m *Metrics) RecordQuotaDenial(appID, resource string) {
	m.QuotaDenials.WithLabelValues(appID, resource).Inc()
}

// RecordWSMessage records a stream frame.
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// SetAppsRegistered sets the number of registered apps.
func (m *Metrics) SetAppsRegistered(count int) {
	m.AppsRegistered.Set(float64(count))
}

// SetAppsEnabled sets the number of enabled apps.
func (m *Metrics) SetAppsEnabled(count int) {
	m.AppsEnabled.Set(float64(count))
}

// IncWSConnections increments stream connections.
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.WSConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements stream connections.
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.WSConnections--
	m.mu.Unlock()
}
