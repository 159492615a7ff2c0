// Package metrics exposes Prometheus collectors for price extraction and refresh runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all pricewatch collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	FetchTotal           *prometheus.CounterVec
	FetchDuration        *prometheus.HistogramVec
	CandidatesTotal      *prometheus.CounterVec
	PlausibilityRejected prometheus.Counter
	RefreshRuns          *prometheus.CounterVec
	QueueDepth           prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers collectors on reg and serves them from g.
func NewWithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FetchTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewatch_fetch_total",
			Help: "Price fetches by scraper mode and resulting error kind",
		}, []string{"mode", "error_kind"}),
		FetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pricewatch_fetch_duration_seconds",
			Help:    "Wall time of a single price fetch",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 90},
		}, []string{"mode"}),
		CandidatesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewatch_candidates_total",
			Help: "Price candidates pooled by source",
		}, []string{"source"}),
		PlausibilityRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "pricewatch_plausibility_rejected_total",
			Help: "Fetched prices downgraded by the plausibility guard",
		}),
		RefreshRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewatch_refresh_runs_total",
			Help: "Refresh tasks by kind and final status",
		}, []string{"kind", "status"}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "pricewatch_task_queue_depth",
			Help: "Refresh tasks waiting in the queue",
		}),
		gatherer: g,
	}
}

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveFetch(mode, errorKind string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchTotal.WithLabelValues(mode, errorKind).Inc()
	m.FetchDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (m *Metrics) AddCandidates(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CandidatesTotal.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) IncPlausibilityRejected() {
	if m == nil {
		return
	}
	m.PlausibilityRejected.Inc()
}

func (m *Metrics) IncRefreshRun(kind, status string) {
	if m == nil {
		return
	}
	m.RefreshRuns.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}
