// Package metrics provides Prometheus metrics for the extraction
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LLMCallsTotal counts LLM invocations.
	// Labels: stage (detection, validation, sql, server, api,
	// dependencies), result (success, filtered, error)
	LLMCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "specforge",
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Total number of LLM invocations",
		},
		[]string{"stage", "result"},
	)

	// LLMCallDuration tracks LLM round-trip latency.
	LLMCallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "specforge",
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "Duration of LLM invocations in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	// RetriesTotal counts retry attempts beyond the first.
	// Labels: operation
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "specforge",
			Subsystem: "retry",
			Name:      "attempts_total",
			Help:      "Total number of retry attempts after a failed first try",
		},
		[]string{"operation"},
	)

	// ParseOutcomes counts robust-parser results.
	// Labels: outcome (parsed, no_information, fallback, empty)
	ParseOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "specforge",
			Subsystem: "parser",
			Name:      "outcomes_total",
			Help:      "Total number of parse outcomes by category",
		},
		[]string{"outcome"},
	)

	// ChunksProcessed counts chunks fed through detection.
	// Labels: result (extracted, skipped, failed)
	ChunksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "specforge",
			Subsystem: "extraction",
			Name:      "chunks_total",
			Help:      "Total number of chunks processed by detection",
		},
		[]string{"result"},
	)

	// ExtractionsTotal counts whole-codebase extraction runs.
	// Labels: result (completed, no_documents, failed)
	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "specforge",
			Subsystem: "extraction",
			Name:      "runs_total",
			Help:      "Total number of extraction runs",
		},
		[]string{"result"},
	)

	// ErrorsCollected counts entries appended to the error collector.
	// Labels: severity (HIGH, MEDIUM, LOW)
	ErrorsCollected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "specforge",
			Subsystem: "errors",
			Name:      "collected_total",
			Help:      "Total number of errors recorded by the collector",
		},
		[]string{"severity"},
	)
)
