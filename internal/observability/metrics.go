package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "weather_stats"

// Metrics holds the Prometheus counters, histograms, and gauges for the analysis driver.
type Metrics struct {
	LinesRead       prometheus.Counter
	RecordsKept     prometheus.Counter
	RecordsRejected prometheus.Counter
	ParseErrors     prometheus.Counter
	DriverRunning   prometheus.Gauge

	// Shard processing metrics.
	ShardsProcessed prometheus.Counter
	ShardCache      *prometheus.CounterVec // labels: result={hit,miss}
	ShardDuration   prometheus.Histogram

	// Scope metrics.
	ScopeDuration    *prometheus.HistogramVec // labels: kind={year,archive}
	ScopeFailures    *prometheus.CounterVec   // labels: kind={parse,data_source}
	ReportsPublished *prometheus.CounterVec   // labels: outcome={success,error}
}

// NewMetrics creates and registers all driver metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		LinesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_read_total",
			Help:      "Total archive lines read.",
		}),
		RecordsKept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_kept_total",
			Help:      "Total records that passed the quality filter.",
		}),
		RecordsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      "Total records removed by the quality filter.",
		}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Total malformed lines that aborted a shard.",
		}),
		DriverRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "driver_running",
			Help:      "1 while the analysis driver is running, 0 otherwise.",
		}),
		ShardsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shards_processed_total",
			Help:      "Total shards read to completion.",
		}),
		ShardCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shard_cache_total",
			Help:      "Shard partial cache lookups by result.",
		}, []string{"result"}),
		ShardDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "shard_duration_seconds",
			Help:      "Time to read and summarise one shard.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		ScopeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scope_duration_seconds",
			Help:      "Duration of a complete scope pass.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"kind"}),
		ScopeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scope_failures_total",
			Help:      "Aborted scopes by error kind.",
		}, []string{"kind"}),
		ReportsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_published_total",
			Help:      "Scope reports handed to loaders by outcome.",
		}, []string{"outcome"}),
	}

	prometheus.MustRegister(
		m.LinesRead,
		m.RecordsKept,
		m.RecordsRejected,
		m.ParseErrors,
		m.DriverRunning,
		m.ShardsProcessed,
		m.ShardCache,
		m.ShardDuration,
		m.ScopeDuration,
		m.ScopeFailures,
		m.ReportsPublished,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		LinesRead:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "lines_read_total"}),
		RecordsKept:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "records_kept_total"}),
		RecordsRejected:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "records_rejected_total"}),
		ParseErrors:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "parse_errors_total"}),
		DriverRunning:    prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "driver_running"}),
		ShardsProcessed:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "shards_processed_total"}),
		ShardCache:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "shard_cache_total"}, []string{"result"}),
		ShardDuration:    prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "shard_duration_seconds"}),
		ScopeDuration:    prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "scope_duration_seconds"}, []string{"kind"}),
		ScopeFailures:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "scope_failures_total"}, []string{"kind"}),
		ReportsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "reports_published_total"}, []string{"outcome"}),
	}
}
