package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voice_platform_onboarding_sessions_started_total",
			Help: "Total onboarding sessions started",
		},
	)

	QuestionsAnswered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voice_platform_questions_answered_total",
			Help: "Total interview answers accepted",
		},
	)

	IngestionTasksStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voice_platform_ingestion_tasks_started_total",
			Help: "Total ingestion tasks launched",
		},
	)

	IngestionTaskOutcome = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_platform_ingestion_task_outcome_total",
			Help: "Terminal ingestion task outcomes",
		},
		[]string{"outcome"},
	)

	ChunksStored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voice_platform_knowledge_chunks_stored_total",
			Help: "Total knowledge chunks written to the vector store",
		},
	)

	KnowledgeQueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "voice_platform_knowledge_query_duration_seconds",
			Help:    "Knowledge query latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_platform_llm_requests_total",
			Help: "Total LLM API requests",
		},
		[]string{"operation", "status"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_platform_llm_tokens_used_total",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	VoiceSessionsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voice_platform_voice_sessions_created_total",
			Help: "Total voice sessions minted",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_platform_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_platform_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

func Init() {
	prometheus.MustRegister(
		SessionsStarted,
		QuestionsAnswered,
		IngestionTasksStarted,
		IngestionTaskOutcome,
		ChunksStored,
		KnowledgeQueryDuration,
		LLMRequests,
		LLMTokensUsed,
		VoiceSessionsCreated,
		CacheHits,
		CacheMisses,
	)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
