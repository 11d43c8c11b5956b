package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "station_table"

// Metrics holds the Prometheus counters, histograms, and gauges for the consumer and table.
type Metrics struct {
	MessagesConsumed prometheus.Counter
	TransformErrors  prometheus.Counter
	ExtractErrors    prometheus.Counter
	PipelineRunning  prometheus.Gauge

	// Table metrics.
	Upserts               prometheus.Counter
	UpsertDuration        prometheus.Histogram
	ChangelogAppendErrors prometheus.Counter
	TableRows             prometheus.Gauge
	TableReady            prometheus.Gauge

	// Recovery metrics.
	RecoveredEntries prometheus.Counter
	RecoveryDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total messages read from the source topic.",
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      "Total source records skipped because they could not be decoded.",
		}),
		ExtractErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extract_errors_total",
			Help:      "Total failed fetches from the source topic.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "Number of active partition consumers.",
		}),
		Upserts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upserts_total",
			Help:      "Total committed table mutations.",
		}),
		UpsertDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upsert_duration_seconds",
			Help:      "Duration of a changelog append plus in-memory apply.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		ChangelogAppendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changelog_append_errors_total",
			Help:      "Total changelog appends that could not be confirmed.",
		}),
		TableRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "table_rows",
			Help:      "Number of stations currently in the table.",
		}),
		TableReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "table_ready",
			Help:      "1 once changelog replay has completed, 0 while recovering.",
		}),
		RecoveredEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovered_entries_total",
			Help:      "Changelog entries applied during startup replay.",
		}),
		RecoveryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recovery_duration_seconds",
			Help:      "Duration of the startup changelog replay.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}

	prometheus.MustRegister(
		m.MessagesConsumed,
		m.TransformErrors,
		m.ExtractErrors,
		m.PipelineRunning,
		m.Upserts,
		m.UpsertDuration,
		m.ChangelogAppendErrors,
		m.TableRows,
		m.TableReady,
		m.RecoveredEntries,
		m.RecoveryDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		MessagesConsumed:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "messages_consumed_total"}),
		TransformErrors:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "transform_errors_total"}),
		ExtractErrors:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "extract_errors_total"}),
		PipelineRunning:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "pipeline_running"}),
		Upserts:               prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "upserts_total"}),
		UpsertDuration:        prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "upsert_duration_seconds"}),
		ChangelogAppendErrors: prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "changelog_append_errors_total"}),
		TableRows:             prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "table_rows"}),
		TableReady:            prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "table_ready"}),
		RecoveredEntries:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "recovered_entries_total"}),
		RecoveryDuration:      prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "recovery_duration_seconds"}),
	}
}
