package job

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks job processing for Prometheus scraping.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	enqueued  *prometheus.CounterVec
	processed *prometheus.CounterVec
	retries   *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	inFlight  prometheus.Gauge
}

// NewMetrics registers job metrics with the given registerer.
// Pass prometheus.DefaultRegisterer for the standard /metrics endpoint.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		enqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "duework_jobs_enqueued_total",
			Help: "Jobs accepted into the queue, by kind.",
		}, []string{"kind"}),
		processed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "duework_jobs_processed_total",
			Help: "Job executions finished, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "duework_job_retries_total",
			Help: "Retries scheduled after failed attempts, by kind.",
		}, []string{"kind"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "duework_job_duration_seconds",
			Help:    "Handler execution time, by kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "duework_jobs_in_flight",
			Help: "Jobs currently executing.",
		}),
	}
}

func (m *Metrics) JobEnqueued(kind string) {
	if m == nil {
		return
	}
	m.enqueued.WithLabelValues(kind).Inc()
}

func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) JobFinished(kind, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.processed.WithLabelValues(kind, outcome).Inc()
	m.duration.WithLabelValues(kind).Observe(seconds)
}

func (m *Metrics) JobRetried(kind string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(kind).Inc()
}

// StoreCollector exposes queue depth as a gauge, counted from the store
// at scrape time rather than tracked incrementally.
type StoreCollector struct {
	store *Store
	depth *prometheus.Desc
}

func NewStoreCollector(store *Store) *StoreCollector {
	return &StoreCollector{
		store: store,
		depth: prometheus.NewDesc(
			"duework_jobs_queued",
			"Jobs in the store, by status.",
			[]string{"status"}, nil,
		),
	}
}

func (c *StoreCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.depth
}

func (c *StoreCollector) Collect(ch chan<- prometheus.Metric) {
	counts, err := c.store.CountByStatus()
	if err != nil {
		// A failed scrape just reports nothing for this collector
		return
	}
	for status, n := range counts {
		ch <- prometheus.MustNewConstMetric(
			c.depth, prometheus.GaugeValue, float64(n), string(status))
	}
}
