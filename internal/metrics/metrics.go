// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "s3search"

var (
	// IngestDocuments counts documents seen by ingestion runs, by outcome
	// (extracted, empty, failed).
	IngestDocuments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "documents_total",
		Help:      "Documents processed by ingestion, by outcome.",
	}, []string{"outcome"})

	// IngestChunks counts text chunks produced by the segmenter.
	IngestChunks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "chunks_total",
		Help:      "Text chunks produced by segmentation.",
	})

	// IngestBatches counts embedding batches, by outcome (ok, failed).
	IngestBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "batches_total",
		Help:      "Embedding batches processed, by outcome.",
	}, []string{"outcome"})

	// IngestRuns counts completed ingestion runs, by outcome (ok, degraded, fatal).
	IngestRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "runs_total",
		Help:      "Completed ingestion runs, by outcome.",
	}, []string{"outcome"})

	// IngestDuration observes the wall time of ingestion runs.
	IngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "run_duration_seconds",
		Help:      "Duration of ingestion runs.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	// IndexRecords is the number of records searchable in the vector store.
	IndexRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "records",
		Help:      "Records held by the vector store.",
	})

	// SearchRequests counts facade searches, by outcome (ok, bad_request, not_ready, error).
	SearchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "search",
		Name:      "requests_total",
		Help:      "Search requests, by outcome.",
	}, []string{"outcome"})

	// SearchLatency observes end-to-end facade search latency.
	SearchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "search",
		Name:      "latency_seconds",
		Help:      "Search latency including query embedding.",
		Buckets:   prometheus.DefBuckets,
	})

	// ResultCache counts vector-store result cache lookups, by result (hit, miss).
	ResultCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "search",
		Name:      "result_cache_total",
		Help:      "Result cache lookups, by result.",
	}, []string{"result"})

	// EmbeddingCache counts embedding cache lookups per text, by result (hit, miss).
	EmbeddingCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "embedding",
		Name:      "cache_total",
		Help:      "Embedding cache lookups per text, by result.",
	}, []string{"result"})

	// EmbeddingModelCalls counts Encode calls sent to the embedding model.
	EmbeddingModelCalls = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "embedding",
		Name:      "model_calls_total",
		Help:      "Batched Encode calls sent to the embedding model.",
	})
)
