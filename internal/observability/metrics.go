package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ride_hazard"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// hazard service.
type Metrics struct {
	CyclesStarted    prometheus.Counter
	CyclesPublished  prometheus.Counter
	CyclesSuperseded prometheus.Counter
	SourceErrors     *prometheus.CounterVec // labels: source
	SnapshotAlerts   prometheus.Gauge
	CycleDuration    prometheus.Histogram
	AggregatorActive prometheus.Gauge

	// Risk scoring.
	RiskQueries *prometheus.CounterVec // labels: level={LOW,MEDIUM,HIGH}

	// Snapshot fan-out to Kafka.
	SnapshotsProduced prometheus.Counter
	SignalsConsumed   prometheus.Counter

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec   // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
	GeocodeEnabled     prometheus.Gauge
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		CyclesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_started_total",
			Help:      help("Aggregation cycles started."),
		}),
		CyclesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_published_total",
			Help:      help("Aggregation cycles that published a snapshot."),
		}),
		CyclesSuperseded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_superseded_total",
			Help:      help("Aggregation cycles discarded because a newer cycle started."),
		}),
		SourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_errors_total",
			Help:      help("Feed fetch or decode failures by source."),
		}, []string{"source"}),
		SnapshotAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_alerts",
			Help:      help("Number of alerts in the latest published snapshot."),
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      help("Duration of a completed aggregation cycle."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		AggregatorActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "aggregator_running",
			Help:      help("1 when the aggregator loop is active, 0 when stopped."),
		}),
		RiskQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_queries_total",
			Help:      help("Risk queries by resulting level."),
		}, []string{"level"}),
		SnapshotsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_produced_total",
			Help:      help("Snapshots written to the Kafka snapshot topic."),
		}),
		SignalsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_consumed_total",
			Help:      help("Change signals read from the Kafka signal topic."),
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      help("Reverse geocoding API requests by outcome."),
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      help("Reverse geocoding cache lookups by result."),
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      help("Mapbox API request duration in seconds."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      help("1 when address lookup is enabled, 0 otherwise."),
		}),
	}
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(
		m.CyclesStarted,
		m.CyclesPublished,
		m.CyclesSuperseded,
		m.SourceErrors,
		m.SnapshotAlerts,
		m.CycleDuration,
		m.AggregatorActive,
		m.RiskQueries,
		m.SnapshotsProduced,
		m.SignalsConsumed,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}
