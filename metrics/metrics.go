// Package metrics holds the Prometheus collectors shared by the scraper packages.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Record outcomes counted by IncRecord.
const (
	OutcomeOK      = "ok"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// Metrics bundles Prometheus collectors for fetches, extraction and jobs.
type Metrics struct {
	Registry         *prometheus.Registry
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  prometheus.Histogram
	RecordsTotal     *prometheus.CounterVec
	RetriesTotal     prometheus.Counter
	ErrorsTotal      *prometheus.CounterVec
	CacheHitsTotal   prometheus.Counter
	JobsTotal        *prometheus.CounterVec
	DuplicatesTotal  prometheus.Counter
	BatchesPersisted prometheus.Counter
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quotes_requests_total",
			Help: "Total page fetches issued, by page kind.",
		},
		[]string{"page"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quotes_request_duration_seconds",
			Help:    "Page fetch latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quotes_records_total",
			Help: "Extracted records by outcome (ok, partial, failed).",
		},
		[]string{"outcome"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quotes_retries_total",
			Help: "Total number of fetch retries.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quotes_errors_total",
			Help: "Total number of errors by type.",
		},
		[]string{"error_type"},
	)
	cacheHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quotes_page_cache_hits_total",
			Help: "Page fetches served from the in-memory cache.",
		},
	)
	jobs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quotes_jobs_total",
			Help: "Asynchronous jobs by status transition.",
		},
		[]string{"status"},
	)
	duplicates := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quotes_duplicates_total",
			Help: "Ticker/date pairs rejected as duplicates.",
		},
	)
	batches := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quotes_batches_persisted_total",
			Help: "Record batches handed to persistence successfully.",
		},
	)

	registry.MustRegister(requests, requestDuration, records, retries, errorsTotal, cacheHits, jobs, duplicates, batches)

	return &Metrics{
		Registry:         registry,
		RequestsTotal:    requests,
		RequestDuration:  requestDuration,
		RecordsTotal:     records,
		RetriesTotal:     retries,
		ErrorsTotal:      errorsTotal,
		CacheHitsTotal:   cacheHits,
		JobsTotal:        jobs,
		DuplicatesTotal:  duplicates,
		BatchesPersisted: batches,
	}
}

// IncRequest increments the requests counter for a page kind.
func (m *Metrics) IncRequest(page string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(page).Inc()
}

// ObserveDuration records a fetch duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncRecord counts an extraction outcome.
func (m *Metrics) IncRecord(outcome string) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(outcome).Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncCacheHit counts a page served from cache.
func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

// IncJob counts a job entering status.
func (m *Metrics) IncJob(status string) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(status).Inc()
}

// AddDuplicates counts rejected duplicate pairs.
func (m *Metrics) AddDuplicates(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DuplicatesTotal.Add(float64(n))
}

// IncBatch counts a persisted batch.
func (m *Metrics) IncBatch() {
	if m == nil {
		return
	}
	m.BatchesPersisted.Inc()
}
