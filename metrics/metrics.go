// Package metrics exposes Prometheus metrics for the fetcher and the analysis runner.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application. A nil *Collector is
// valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	FetchRequests *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	PostsFetched  prometheus.Counter

	AnalysisRuns     *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram
	TrendsFound      prometheus.Gauge
}

// NewCollector creates a collector with its own registry
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		FetchRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_requests_total",
				Help:      "Total number of requests made to the Reddit proxy",
			},
			[]string{"endpoint", "outcome"},
		),
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Reddit proxy request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		PostsFetched: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "posts_fetched_total",
				Help:      "Total number of posts fetched",
			},
		),
		AnalysisRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analysis_runs_total",
				Help:      "Total number of trend analysis runs",
			},
			[]string{"status"},
		),
		AnalysisDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "analysis_duration_seconds",
				Help:      "Trend analysis run duration in seconds",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		TrendsFound: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "trends_found",
				Help:      "Number of trends returned by the latest analysis run",
			},
		),
	}

	registry.MustRegister(
		c.FetchRequests,
		c.FetchDuration,
		c.PostsFetched,
		c.AnalysisRuns,
		c.AnalysisDuration,
		c.TrendsFound,
	)

	return c
}

// Handler returns the HTTP handler serving this collector's registry
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveFetch records one proxy request
func (c *Collector) ObserveFetch(endpoint, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.FetchRequests.WithLabelValues(endpoint, outcome).Inc()
	c.FetchDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// AddPosts counts fetched posts
func (c *Collector) AddPosts(n int) {
	if c == nil {
		return
	}
	c.PostsFetched.Add(float64(n))
}

// ObserveAnalysis records one analysis run
func (c *Collector) ObserveAnalysis(status string, duration time.Duration, trends int) {
	if c == nil {
		return
	}
	c.AnalysisRuns.WithLabelValues(status).Inc()
	c.AnalysisDuration.Observe(duration.Seconds())
	if status == "success" {
		c.TrendsFound.Set(float64(trends))
	}
}
