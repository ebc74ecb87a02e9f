package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "farmora_query_duration_seconds",
			Help:    "End-to-end query duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 12, 20},
		},
		[]string{"intent"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmora_query_total",
			Help: "Queries by outcome (completed, degraded or an error kind)",
		},
		[]string{"outcome"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "farmora_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"stage"},
	)

	ModeratorVerdicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmora_moderator_verdicts_total",
			Help: "Moderator verdicts per stage",
		},
		[]string{"stage", "verdict"},
	)

	ToolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmora_tool_calls_total",
			Help: "Tool adapter calls by final status",
		},
		[]string{"tool", "status"},
	)

	ToolTierAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmora_tool_tier_attempts_total",
			Help: "Fallback tier attempts per tool",
		},
		[]string{"tool", "tier", "result"},
	)

	ContextTokens = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "farmora_context_tokens",
			Help:    "Estimated tokens in the assembled context",
			Buckets: []float64{0, 50, 100, 200, 400, 600, 800, 1200},
		},
	)

	ContextFacts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "farmora_context_facts",
			Help:    "Facts kept in the assembled context",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32},
		},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmora_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmora_llm_requests_total",
			Help: "LLM completion requests by purpose and result",
		},
		[]string{"purpose", "result"},
	)

	TranslationRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmora_translation_requests_total",
			Help: "Translation requests by backend and result",
		},
		[]string{"backend", "result"},
	)

	ConfidenceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "farmora_confidence_score",
			Help:    "Answer confidence scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	IntentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmora_intent_total",
			Help: "Classified intents by primary label",
		},
		[]string{"label"},
	)

	CacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmora_cache_requests_total",
			Help: "Coalescing cache lookups by result",
		},
		[]string{"cache", "result"},
	)

	initOnce sync.Once
)

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			QueryDuration,
			QueryTotal,
			StageDuration,
			ModeratorVerdicts,
			ToolCalls,
			ToolTierAttempts,
			ContextTokens,
			ContextFacts,
			LLMTokensUsed,
			LLMRequests,
			TranslationRequests,
			ConfidenceScore,
			IntentTotal,
			CacheRequests,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
