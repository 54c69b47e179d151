package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "perimeter_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the perimeter pipeline.
type Metrics struct {
	FilesIngested        *prometheus.CounterVec // labels: source={wfigs,copernicus}, outcome={ok,failed}
	Observations         prometheus.Counter
	DuplicateResolutions *prometheus.CounterVec // labels: outcome={resolved,fallback,unresolved}
	FilledDays           prometheus.Counter
	DifferenceRecords    *prometheus.CounterVec // labels: kind={changed,repeated}
	IncidentsFailed      prometheus.Counter
	PipelineRunning      prometheus.Gauge

	// Run-level metrics.
	Runs              *prometheus.CounterVec // labels: status={ok,no_input,failed}
	RunDuration       prometheus.Histogram
	LastSuccessfulRun prometheus.Gauge

	// Download metrics.
	DownloadRequests *prometheus.CounterVec   // labels: source, outcome={success,error,circuit_open}
	DownloadDuration *prometheus.HistogramVec // labels: source
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(m.collectors()...)

	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// Registry returns a fresh registry holding the metrics, for pushing the
// results of a single batch run.
func (m *Metrics) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	for _, c := range m.collectors() {
		_ = reg.Register(c)
	}
	return reg
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.FilesIngested,
		m.Observations,
		m.DuplicateResolutions,
		m.FilledDays,
		m.DifferenceRecords,
		m.IncidentsFailed,
		m.PipelineRunning,
		m.Runs,
		m.RunDuration,
		m.LastSuccessfulRun,
		m.DownloadRequests,
		m.DownloadDuration,
	}
}

func newMetrics() *Metrics {
	return &Metrics{
		FilesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_ingested_total",
			Help:      "Perimeter input files read, by source and outcome.",
		}, []string{"source", "outcome"}),
		Observations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_total",
			Help:      "Perimeter observations produced by ingestion.",
		}),
		DuplicateResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_resolutions_total",
			Help:      "Same-day product groups resolved, by outcome.",
		}, []string{"outcome"}),
		FilledDays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filled_days_total",
			Help:      "Days filled by repeating the last known perimeter.",
		}),
		DifferenceRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "difference_records_total",
			Help:      "Difference records written, by kind.",
		}, []string{"kind"}),
		IncidentsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_failed_total",
			Help:      "Incidents dropped because their geometry could not be processed.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a disaster is being processed, 0 otherwise.",
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Disaster processing runs, by status.",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete disaster processing run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		LastSuccessfulRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_successful_run_timestamp_seconds",
			Help:      "Unix time of the last run that wrote output.",
		}),
		DownloadRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_requests_total",
			Help:      "Upstream download requests by source and outcome.",
		}, []string{"source", "outcome"}),
		DownloadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Upstream download duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"source"}),
	}
}
