// Package metrics defines the Prometheus collectors used by the server and
// exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rag"

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	JobsSubmittedTotal     prometheus.Counter
	JobsFinishedTotal      *prometheus.CounterVec
	DocumentsTotal         *prometheus.CounterVec
	ChunksIndexedTotal     prometheus.Counter
	JobUpdateFailuresTotal prometheus.Counter
	DocumentDuration       prometheus.Histogram

	QueriesTotal        *prometheus.CounterVec
	QueryDuration       prometheus.Histogram
	CandidatesRetrieved prometheus.Histogram
	RerankDegraded      prometheus.Counter

	EmbeddingCacheHits   prometheus.Counter
	EmbeddingCacheMisses prometheus.Counter

	CollaboratorCallsTotal   *prometheus.CounterVec
	CollaboratorRetriesTotal *prometheus.CounterVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds.",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed.",
		}),
		JobsSubmittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_jobs_submitted_total",
			Help:      "Ingestion jobs accepted.",
		}),
		JobsFinishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingest_jobs_finished_total",
				Help:      "Ingestion jobs reaching a terminal status.",
			},
			[]string{"status"},
		),
		DocumentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingest_documents_total",
				Help:      "Documents processed by outcome (succeeded, failed).",
			},
			[]string{"outcome"},
		),
		ChunksIndexedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_chunks_indexed_total",
			Help:      "Chunks embedded and written to the vector store.",
		}),
		JobUpdateFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_job_update_failures_total",
			Help:      "Document outcomes that could not be recorded on their job.",
		}),
		DocumentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_document_duration_seconds",
			Help:      "Time to chunk, embed and store one document.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Chat queries by result (answered, no_information, error).",
			},
			[]string{"result"},
		),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "End-to-end chat query latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40},
		}),
		CandidatesRetrieved: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_candidates_retrieved",
			Help:      "Candidates returned by the vector store per query.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		RerankDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rerank_degraded_total",
			Help:      "Candidates that fell back to retrieval similarity.",
		}),
		EmbeddingCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_hits_total",
			Help:      "Embedding cache hits.",
		}),
		EmbeddingCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_misses_total",
			Help:      "Embedding cache misses.",
		}),
		CollaboratorCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collaborator_calls_total",
				Help:      "Guarded collaborator calls by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		CollaboratorRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collaborator_retries_total",
				Help:      "Attempts beyond the first, by operation.",
			},
			[]string{"operation"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.JobsSubmittedTotal,
		m.JobsFinishedTotal,
		m.DocumentsTotal,
		m.ChunksIndexedTotal,
		m.JobUpdateFailuresTotal,
		m.DocumentDuration,
		m.QueriesTotal,
		m.QueryDuration,
		m.CandidatesRetrieved,
		m.RerankDegraded,
		m.EmbeddingCacheHits,
		m.EmbeddingCacheMisses,
		m.CollaboratorCallsTotal,
		m.CollaboratorRetriesTotal,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// The helpers below tolerate a nil receiver so components can run without
// metrics wired.

func (m *Metrics) JobSubmitted() {
	if m != nil {
		m.JobsSubmittedTotal.Inc()
	}
}

func (m *Metrics) JobFinished(status string) {
	if m != nil {
		m.JobsFinishedTotal.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) DocumentProcessed(outcome string, seconds float64, chunks int) {
	if m == nil {
		return
	}
	m.DocumentsTotal.WithLabelValues(outcome).Inc()
	m.DocumentDuration.Observe(seconds)
	m.ChunksIndexedTotal.Add(float64(chunks))
}

func (m *Metrics) JobUpdateFailed() {
	if m != nil {
		m.JobUpdateFailuresTotal.Inc()
	}
}

func (m *Metrics) QueryFinished(result string, seconds float64, candidates int) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(result).Inc()
	m.QueryDuration.Observe(seconds)
	m.CandidatesRetrieved.Observe(float64(candidates))
}

func (m *Metrics) RerankFellBack(n int) {
	if m != nil && n > 0 {
		m.RerankDegraded.Add(float64(n))
	}
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.EmbeddingCacheHits.Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.EmbeddingCacheMisses.Inc()
	}
}

// CallFinished records one guarded collaborator call. It satisfies
// resilience.Observer.
func (m *Metrics) CallFinished(operation, outcome string, attempts int) {
	if m == nil {
		return
	}
	m.CollaboratorCallsTotal.WithLabelValues(operation, outcome).Inc()
	if attempts > 1 {
		m.CollaboratorRetriesTotal.WithLabelValues(operation).Add(float64(attempts - 1))
	}
}
