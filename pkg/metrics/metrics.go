// Package metrics exposes Prometheus instrumentation for provider traffic and analyses.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	providerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moe_provider_requests_total",
			Help: "Outbound ranking API attempts by method and status code (0 = transport error)",
		},
		[]string{"method", "status"},
	)
	providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moe_provider_request_duration_seconds",
			Help:    "Latency of single ranking API attempts",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
	providerRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moe_provider_retries_total",
			Help: "Retries of ranking API requests by reason",
		},
		[]string{"reason"},
	)
	keywordsFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moe_keywords_fetched_total",
			Help: "Keyword rows fetched from the ranking API by fetch strategy",
		},
		[]string{"strategy"},
	)
	analyses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moe_analyses_total",
			Help: "Completed market opportunity analyses by outcome",
		},
		[]string{"outcome"},
	)
	analysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "moe_analysis_duration_seconds",
			Help:    "Wall-clock duration of market opportunity analyses",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)

	registerOnce sync.Once
)

// Init registers all collectors with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			providerRequests,
			providerLatency,
			providerRetries,
			keywordsFetched,
			analyses,
			analysisDuration,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordProviderRequest counts one attempt against the ranking API.
func RecordProviderRequest(method string, status int, duration time.Duration) {
	providerRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	providerLatency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordProviderRetry counts a retry; reason is "backoff" or "rate_limited".
func RecordProviderRetry(reason string) {
	providerRetries.WithLabelValues(reason).Inc()
}

// RecordKeywordsFetched counts normalized keyword rows.
func RecordKeywordsFetched(strategy string, n int) {
	keywordsFetched.WithLabelValues(strategy).Add(float64(n))
}

// RecordAnalysis counts a finished analysis and its duration.
func RecordAnalysis(err error, duration time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	analyses.WithLabelValues(outcome).Inc()
	analysisDuration.Observe(duration.Seconds())
}
