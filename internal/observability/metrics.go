package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// forecast pipeline.
type Metrics struct {
	RecordsConsumed  prometheus.Counter
	RecordsProduced  prometheus.Counter
	LinesRejected    prometheus.Counter
	ReconcileErrors  prometheus.Counter
	BatchesRejected  prometheus.Counter
	PipelineRunning  prometheus.Gauge

	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	StageAdjustments *prometheus.CounterVec // labels: stage, direction={increase,decrease}
	WeatherSkipped   *prometheus.CounterVec // labels: reason={no_observation,below_threshold}

	WeatherLookups      *prometheus.CounterVec   // labels: outcome={hit,miss,error}
	WeatherCache        *prometheus.CounterVec   // labels: result={hit,miss}
	WeatherLookupTiming prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RecordsConsumed,
		m.RecordsProduced,
		m.LinesRejected,
		m.ReconcileErrors,
		m.BatchesRejected,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.StageAdjustments,
		m.WeatherSkipped,
		m.WeatherLookups,
		m.WeatherCache,
		m.WeatherLookupTiming,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RecordsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "order_forecast",
			Name:      "records_consumed_total",
			Help:      "Total input records read from the source topic.",
		}),
		RecordsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "order_forecast",
			Name:      "records_produced_total",
			Help:      "Total flattened order records written to sinks.",
		}),
		LinesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "order_forecast",
			Name:      "lines_rejected_total",
			Help:      "Total input records dropped as malformed.",
		}),
		ReconcileErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "order_forecast",
			Name:      "reconcile_errors_total",
			Help:      "Lines whose stage deltas failed to reconcile to the final quantity.",
		}),
		BatchesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "order_forecast",
			Name:      "batches_rejected_total",
			Help:      "Batches rejected before processing, e.g. malformed scenario parameters.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "order_forecast",
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "order_forecast",
			Name:      "batch_size",
			Help:      "Number of forecast lines per (region, date) batch.",
			Buckets:   []float64{1, 10, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "order_forecast",
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch pipeline run.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		StageAdjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "order_forecast",
			Name:      "stage_adjustments_total",
			Help:      "Ledger entries written by stage and direction.",
		}, []string{"stage", "direction"}),
		WeatherSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "order_forecast",
			Name:      "weather_skipped_total",
			Help:      "Store-dates where the weather pass did not run, by reason.",
		}, []string{"reason"}),
		WeatherLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "order_forecast",
			Name:      "weather_lookups_total",
			Help:      "Weather observation lookups by outcome.",
		}, []string{"outcome"}),
		WeatherCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "order_forecast",
			Name:      "weather_cache_total",
			Help:      "Weather cache lookups by result.",
		}, []string{"result"}),
		WeatherLookupTiming: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "order_forecast",
			Name:      "weather_lookup_duration_seconds",
			Help:      "Weather observation lookup duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}
