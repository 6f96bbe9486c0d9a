// Package metrics defines the Prometheus metrics exported by sitegrade.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace is the prefix of every sitegrade metric.
const Namespace = "sitegrade"

// Metrics holds all Prometheus metrics for the analysis pipeline.
type Metrics struct {
	// Analysis metrics
	AnalysesTotal           *prometheus.CounterVec
	AnalysisDurationSeconds prometheus.Histogram
	AnalysesInFlight        prometheus.Gauge

	// Render metrics
	RenderDurationSeconds *prometheus.HistogramVec
	RenderFailuresTotal   *prometheus.CounterVec
	CacheLookupsTotal     *prometheus.CounterVec

	// Quota metrics
	QuotaDenialsTotal prometheus.Counter

	// Sink metrics
	ResultSaveFailuresTotal prometheus.Counter
	WebhookDeliveriesTotal  *prometheus.CounterVec
}

// NewRegistry returns a registry carrying the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// New creates and registers all metrics on reg. A nil reg gets a private
// registry, which keeps tests from colliding on the default one.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		AnalysesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "analyses_total",
				Help:      "Total number of analyses by outcome",
			},
			[]string{"outcome"},
		),
		AnalysisDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "analysis_duration_seconds",
				Help:      "End-to-end duration of successful analyses",
				Buckets:   prometheus.ExponentialBuckets(0.25, 2, 9), // 250ms to ~1min
			},
		),
		AnalysesInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "analyses_in_flight",
				Help:      "Number of analyses currently running",
			},
		),
		RenderDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "render_duration_seconds",
				Help:      "Time spent rendering target pages",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
			},
			[]string{"engine"},
		),
		RenderFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "render_failures_total",
				Help:      "Analyses that failed while fetching or rendering the target page, by error code",
			},
			[]string{"code"},
		),
		CacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "render_cache_lookups_total",
				Help:      "Render cache lookups by result",
			},
			[]string{"result"},
		),
		QuotaDenialsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "quota_denials_total",
				Help:      "Analyses refused because the caller's daily quota was used up",
			},
		),
		ResultSaveFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "result_save_failures_total",
				Help:      "Completed analyses that could not be persisted",
			},
		),
		WebhookDeliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "webhook_deliveries_total",
				Help:      "Webhook deliveries by final status",
			},
			[]string{"status"},
		),
	}
}

// Outcome turns an error code into an outcome label. An empty code is
// "success".
func Outcome(code string) string {
	if code == "" {
		return "success"
	}
	return strings.ToLower(code)
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
