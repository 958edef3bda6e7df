// Package metrics provides Prometheus metrics for the fetcher.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Discovery metrics
	Listings      prometheus.Counter
	KeysListed    prometheus.Counter
	MalformedKeys prometheus.Counter

	// Alignment metrics
	Observations      *prometheus.CounterVec
	SkippedSteps      prometheus.Counter
	DuplicateDiscards prometheus.Counter

	// Fetch metrics
	Fetches       *prometheus.CounterVec
	FetchedBytes  prometheus.Counter
	FetchDuration prometheus.Histogram
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Address string // Address for the metrics HTTP server (e.g., ":9090")
}

var defaultMetrics *Metrics

// Init initializes the global metrics. Call this once at startup.
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "goes_fetch"
	}

	m := &Metrics{
		Listings: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listings_total",
			Help:      "Total number of store listing calls issued",
		}),
		KeysListed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keys_listed_total",
			Help:      "Total number of object keys returned by listings",
		}),
		MalformedKeys: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_keys_total",
			Help:      "Total number of listed keys that failed to parse",
		}),
		Observations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "observations_total",
				Help:      "Total number of observations selected into sequences",
			},
			[]string{"completeness"},
		),
		SkippedSteps: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_steps_total",
			Help:      "Total number of cadence steps with no scan within tolerance",
		}),
		DuplicateDiscards: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_discards_total",
			Help:      "Total number of duplicate band keys discarded during clustering",
		}),
		Fetches: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetches_total",
				Help:      "Total number of object fetches by outcome",
			},
			[]string{"outcome"},
		),
		FetchedBytes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetched_bytes_total",
			Help:      "Total bytes fetched from the store",
		}),
		FetchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time to fetch a single object",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics instance, or nil before Init.
func Get() *Metrics {
	return defaultMetrics
}

// StartServer starts an HTTP server for Prometheus scraping. Blocks until
// the server exits.
func StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(address, mux)
}

// IncListings increments the listing call counter.
func (m *Metrics) IncListings() { m.Listings.Inc() }

// AddKeysListed adds to the listed key counter.
func (m *Metrics) AddKeysListed(n float64) { m.KeysListed.Add(n) }

// IncMalformedKeys increments the malformed key counter.
func (m *Metrics) IncMalformedKeys() { m.MalformedKeys.Inc() }

// IncObservations increments the observation counter for a completeness
// label ("complete" or "incomplete").
func (m *Metrics) IncObservations(completeness string) {
	m.Observations.WithLabelValues(completeness).Inc()
}

// AddSkippedSteps adds to the skipped cadence step counter.
func (m *Metrics) AddSkippedSteps(n float64) { m.SkippedSteps.Add(n) }

// AddDuplicateDiscards adds to the duplicate discard counter.
func (m *Metrics) AddDuplicateDiscards(n float64) { m.DuplicateDiscards.Add(n) }

// IncFetches increments the fetch counter for an outcome label.
func (m *Metrics) IncFetches(outcome string) {
	m.Fetches.WithLabelValues(outcome).Inc()
}

// AddFetchedBytes adds to the fetched byte counter.
func (m *Metrics) AddFetchedBytes(n float64) { m.FetchedBytes.Add(n) }

// ObserveFetchDuration records the duration of one fetch.
func (m *Metrics) ObserveFetchDuration(seconds float64) {
	m.FetchDuration.Observe(seconds)
}
