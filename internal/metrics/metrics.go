// Package metrics exposes the lifecycle engine's Prometheus collectors.
//
// Every method is safe on a nil *Metrics so components can run without a
// registry (tests, metrics.enabled = false).
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "soccercam"

// Metrics holds the collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ticks            prometheus.Counter
	tickDuration     prometheus.Histogram
	segmentsFound    prometheus.Counter
	downloads        *prometheus.CounterVec
	downloadRetries  prometheus.Counter
	downloadBytes    prometheus.Counter
	toolRuns         *prometheus.CounterVec
	toolDuration     *prometheus.HistogramVec
	jobFailures      *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	groupErrors      *prometheus.CounterVec
	groupsByStage    *prometheus.GaugeVec
	prompts          *prometheus.CounterVec
	responses        *prometheus.CounterVec
	cameraEvents     *prometheus.CounterVec
	cameraConnected  prometheus.Gauge
	poolBusy         *prometheus.GaugeVec
	notificationSent *prometheus.CounterVec
}

// New creates and registers the collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total",
			Help: "Scheduling ticks executed",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tick_duration_seconds",
			Help:    "Time spent in one scheduling tick",
			Buckets: prometheus.DefBuckets,
		}),
		segmentsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "segments_discovered_total",
			Help: "Remote segments recorded for the first time",
		}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "segment_downloads_total",
			Help: "Segment download outcomes",
		}, []string{"outcome"}),
		downloadRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "segment_download_retries_total",
			Help: "Transfer attempts repeated after a transient failure",
		}),
		downloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "segment_download_bytes_total",
			Help: "Bytes written to completed segment files",
		}),
		toolRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tool_runs_total",
			Help: "External tool invocations by operation and outcome",
		}, []string{"operation", "outcome"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tool_duration_seconds",
			Help:    "External tool run time",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"operation"}),
		jobFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "media_job_failures_total",
			Help: "Media jobs that failed outside the tool retry policy",
		}, []string{"operation", "kind"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "group_transitions_total",
			Help: "Group stage changes by target stage",
		}, []string{"stage"}),
		groupErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "group_errors_total",
			Help: "Groups moved to a sticky error",
		}, []string{"stage", "reason"}),
		groupsByStage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "groups",
			Help: "Known groups by displayed stage",
		}, []string{"stage"}),
		prompts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "boundary_prompts_total",
			Help: "Boundary confirmation prompts sent",
		}, []string{"side"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "boundary_responses_total",
			Help: "Boundary responses by handling result",
		}, []string{"result"}),
		cameraEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "camera_connection_events_total",
			Help: "Camera reachability transitions",
		}, []string{"type"}),
		cameraConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "camera_connected",
			Help: "1 when the last camera probe succeeded",
		}),
		poolBusy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pool_busy_slots",
			Help: "Occupied worker slots by pool",
		}, []string{"pool"}),
		notificationSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_total",
			Help: "Push notifications by kind and outcome",
		}, []string{"kind", "outcome"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ticks,
		m.tickDuration,
		m.segmentsFound,
		m.downloads,
		m.downloadRetries,
		m.downloadBytes,
		m.toolRuns,
		m.toolDuration,
		m.jobFailures,
		m.transitions,
		m.groupErrors,
		m.groupsByStage,
		m.prompts,
		m.responses,
		m.cameraEvents,
		m.cameraConnected,
		m.poolBusy,
		m.notificationSent,
	)
	return m
}

// Registry exposes the underlying registry for tests and custom handlers.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.tickDuration.Observe(d.Seconds())
}

func (m *Metrics) SegmentDiscovered() {
	if m == nil {
		return
	}
	m.segmentsFound.Inc()
}

// DownloadFinished records a segment outcome: "downloaded", "failed" or
// "abandoned".
func (m *Metrics) DownloadFinished(outcome string, bytes int64) {
	if m == nil {
		return
	}
	m.downloads.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		m.downloadBytes.Add(float64(bytes))
	}
}

func (m *Metrics) DownloadRetried() {
	if m == nil {
		return
	}
	m.downloadRetries.Inc()
}

// ToolRun records one combine, trim or snapshot invocation.
func (m *Metrics) ToolRun(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.toolRuns.WithLabelValues(operation, outcome).Inc()
	m.toolDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// JobFailed counts a combine or trim job that stopped before its tool ran.
func (m *Metrics) JobFailed(operation, kind string) {
	if m == nil {
		return
	}
	m.jobFailures.WithLabelValues(operation, kind).Inc()
}

func (m *Metrics) StageEntered(stage string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(stage).Inc()
}

func (m *Metrics) GroupFailed(stage, reason string) {
	if m == nil {
		return
	}
	m.groupErrors.WithLabelValues(stage, reason).Inc()
}

// SetGroupsByStage replaces the per-stage gauge values.
func (m *Metrics) SetGroupsByStage(counts map[string]int) {
	if m == nil {
		return
	}
	m.groupsByStage.Reset()
	for stage, n := range counts {
		m.groupsByStage.WithLabelValues(stage).Set(float64(n))
	}
}

func (m *Metrics) PromptSent(side string) {
	if m == nil {
		return
	}
	m.prompts.WithLabelValues(side).Inc()
}

// ResponseHandled records a boundary reply: "applied" or "ignored".
func (m *Metrics) ResponseHandled(result string) {
	if m == nil {
		return
	}
	m.responses.WithLabelValues(result).Inc()
}

func (m *Metrics) CameraEvent(eventType string) {
	if m == nil {
		return
	}
	m.cameraEvents.WithLabelValues(eventType).Inc()
	switch eventType {
	case "connected":
		m.cameraConnected.Set(1)
	case "disconnected":
		m.cameraConnected.Set(0)
	}
}

func (m *Metrics) SetPoolBusy(pool string, busy int) {
	if m == nil {
		return
	}
	m.poolBusy.WithLabelValues(pool).Set(float64(busy))
}

func (m *Metrics) NotificationSent(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	m.notificationSent.WithLabelValues(kind, outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
// refresh is called before each scrape to update gauges.
func (m *Metrics) Handler(refresh func()) http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	inner := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if refresh != nil {
			refresh()
		}
		inner.ServeHTTP(w, r)
	})
}
