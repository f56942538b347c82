package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "crisis_sim"

// Metrics holds the Prometheus counters, histograms, and gauges for the simulator.
type Metrics struct {
	// Synthesis metrics.
	GenerationRequests *prometheus.CounterVec   // labels: dataset, outcome={success,unavailable,malformed}
	GenerationDuration *prometheus.HistogramVec // labels: dataset
	RecordsAccepted    *prometheus.CounterVec   // labels: dataset
	RecordsRejected    *prometheus.CounterVec   // labels: dataset
	DatasetCommits     *prometheus.CounterVec   // labels: dataset, result={applied,retained}
	SynthesisDuration  prometheus.Histogram
	SynthesisInFlight  prometheus.Gauge
	DecayRuns          prometheus.Counter

	// Resolver metrics.
	RouteRequests    *prometheus.CounterVec   // labels: provider, outcome={success,fallback}
	RouteAPIDuration *prometheus.HistogramVec // labels: provider
	NearestLookups   *prometheus.CounterVec   // labels: outcome={found,none}

	// Snapshot publishing.
	SnapshotsPublished *prometheus.CounterVec // labels: outcome={success,error}

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: method={forward,reverse}, outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec   // labels: method={forward,reverse}, result={hit,miss}
	GeocodeAPIDuration *prometheus.HistogramVec // labels: method={forward,reverse}
	GeocodeEnabled     prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// Register adds every collector to reg. Tests use it with a private registry
// to assert on exported values.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func newMetrics() *Metrics {
	return &Metrics{
		GenerationRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_requests_total",
			Help:      "Model generation calls by dataset and outcome.",
		}, []string{"dataset", "outcome"}),
		GenerationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Duration of a single model generation call.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"dataset"}),
		RecordsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_accepted_total",
			Help:      "Generated records that passed validation.",
		}, []string{"dataset"}),
		RecordsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      "Generated records rejected by validation.",
		}, []string{"dataset"}),
		DatasetCommits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_commits_total",
			Help:      "Dataset outcomes per synthesis: applied replaced the table, retained kept the previous one.",
		}, []string{"dataset", "result"}),
		SynthesisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_duration_seconds",
			Help:      "Duration of a complete scenario synthesis.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		SynthesisInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "synthesis_in_flight",
			Help:      "Number of scenario syntheses currently running.",
		}),
		DecayRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decay_runs_total",
			Help:      "Resource decay passes applied.",
		}),
		RouteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_requests_total",
			Help:      "Route lookups by provider and outcome.",
		}, []string{"provider", "outcome"}),
		RouteAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "route_api_duration_seconds",
			Help:      "Routing provider request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"provider"}),
		NearestLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nearest_facility_lookups_total",
			Help:      "Nearest-facility queries by outcome.",
		}, []string{"outcome"}),
		SnapshotsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_published_total",
			Help:      "Table snapshots written to Kafka by outcome.",
		}, []string{"outcome"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by method and outcome.",
		}, []string{"method", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by method and result.",
		}, []string{"method", "result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox geocoding request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method"}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      "1 when alert geocoding is enabled, 0 otherwise.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.GenerationRequests,
		m.GenerationDuration,
		m.RecordsAccepted,
		m.RecordsRejected,
		m.DatasetCommits,
		m.SynthesisDuration,
		m.SynthesisInFlight,
		m.DecayRuns,
		m.RouteRequests,
		m.RouteAPIDuration,
		m.NearestLookups,
		m.SnapshotsPublished,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	}
}
