package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	DocumentsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexrag_documents_ingested_total",
			Help: "Total number of documents processed by the ingestion pipeline",
		},
		[]string{"pipeline", "status"},
	)

	ChunksProduced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexrag_chunks_produced_total",
			Help: "Total number of chunks produced by chunkers",
		},
		[]string{"pipeline"},
	)

	IngestionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lexrag_ingestion_duration_seconds",
			Help:    "Per-document ingestion duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"pipeline"},
	)

	// Task queue metrics
	TasksEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexrag_tasks_enqueued_total",
			Help: "Total number of tasks enqueued",
		},
		[]string{"type"},
	)

	TasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexrag_tasks_processed_total",
			Help: "Total number of tasks processed by workers",
		},
		[]string{"type", "status"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lexrag_task_duration_seconds",
			Help:    "Task handler duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"type"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lexrag_queue_depth",
			Help: "Current number of tasks waiting in the queue",
		},
	)

	// Vector store metrics
	VectorSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexrag_vector_search_total",
			Help: "Total number of vector searches",
		},
		[]string{"collection", "status"},
	)

	VectorSearchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lexrag_vector_search_latency_seconds",
			Help:    "Vector search latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collection"},
	)

	VectorPointsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexrag_vector_points_upserted_total",
			Help: "Total number of points upserted into the vector store",
		},
		[]string{"collection"},
	)

	// Embedding metrics
	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexrag_embedding_requests_total",
			Help: "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lexrag_embedding_latency_seconds",
			Help:    "Embedding generation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	EmbeddingCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lexrag_embedding_cache_hits_total",
			Help: "Total number of embedding cache hits",
		},
	)

	EmbeddingCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lexrag_embedding_cache_misses_total",
			Help: "Total number of embedding cache misses",
		},
	)

	// LLM metrics
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexrag_llm_requests_total",
			Help: "Total number of LLM completions",
		},
		[]string{"operation", "status"},
	)

	LLMLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lexrag_llm_latency_seconds",
			Help:    "LLM completion latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation"},
	)

	// Session metrics
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lexrag_sessions_created_total",
			Help: "Total number of chat sessions created",
		},
	)

	SessionsMigrated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lexrag_sessions_migrated_total",
			Help: "Total number of sessions migrated from the hot tier to durable storage",
		},
	)

	SessionHotHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lexrag_session_hot_hits_total",
			Help: "Total number of session reads served from the hot tier",
		},
	)

	SessionColdHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lexrag_session_cold_hits_total",
			Help: "Total number of session reads rehydrated from durable storage",
		},
	)

	// Retrieval metrics
	RetrievalRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexrag_retrieval_requests_total",
			Help: "Total number of retrieval requests",
		},
		[]string{"status"},
	)

	RetrievalLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lexrag_retrieval_latency_seconds",
			Help:    "End-to-end retrieval latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Evaluation metrics
	EvaluationsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lexrag_evaluations_started_total",
			Help: "Total number of evaluation runs started",
		},
	)

	EvaluationsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexrag_evaluations_completed_total",
			Help: "Total number of evaluation runs completed",
		},
		[]string{"status"},
	)
)

// RecordIngestionMetrics records metrics for a processed document
func RecordIngestionMetrics(pipeline, status string, durationSeconds float64, chunks int) {
	DocumentsIngested.WithLabelValues(pipeline, status).Inc()
	if durationSeconds > 0 {
		IngestionDuration.WithLabelValues(pipeline).Observe(durationSeconds)
	}
	if chunks > 0 {
		ChunksProduced.WithLabelValues(pipeline).Add(float64(chunks))
	}
}

// RecordTaskMetrics records metrics for a processed queue task
func RecordTaskMetrics(taskType, status string, durationSeconds float64) {
	TasksProcessed.WithLabelValues(taskType, status).Inc()
	if durationSeconds > 0 {
		TaskDuration.WithLabelValues(taskType).Observe(durationSeconds)
	}
}

// RecordVectorSearchMetrics records vector search metrics
func RecordVectorSearchMetrics(collection, status string, durationSeconds float64) {
	VectorSearches.WithLabelValues(collection, status).Inc()
	if durationSeconds > 0 {
		VectorSearchLatency.WithLabelValues(collection).Observe(durationSeconds)
	}
}

// RecordEmbeddingMetrics records embedding metrics
func RecordEmbeddingMetrics(model, status string, durationSeconds float64) {
	EmbeddingRequests.WithLabelValues(model, status).Inc()
	if durationSeconds > 0 {
		EmbeddingLatency.WithLabelValues(model).Observe(durationSeconds)
	}
}

// RecordRetrievalMetrics records end-to-end retrieval metrics
func RecordRetrievalMetrics(status string, durationSeconds float64) {
	RetrievalRequests.WithLabelValues(status).Inc()
	if durationSeconds > 0 {
		RetrievalLatency.Observe(durationSeconds)
	}
}

// RecordLLMMetrics records LLM completion metrics
func RecordLLMMetrics(operation, status string, durationSeconds float64) {
	LLMRequests.WithLabelValues(operation, status).Inc()
	if durationSeconds > 0 {
		LLMLatency.WithLabelValues(operation).Observe(durationSeconds)
	}
}
