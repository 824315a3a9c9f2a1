// Package metrics exposes Prometheus collectors for the catalog engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LLMCalls counts outbound LLM calls by outcome.
	LLMCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog_engine",
		Subsystem: "llm",
		Name:      "calls_total",
		Help:      "Outbound LLM calls by outcome (success, transient_error, hard_error, rejected).",
	}, []string{"outcome"})

	// BreakerState reports the circuit breaker state (0 closed, 1 open, 2 half-open).
	BreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "catalog_engine",
		Subsystem: "llm",
		Name:      "breaker_state",
		Help:      "Circuit breaker state: 0 closed, 1 open, 2 half-open.",
	})

	// BreakerTrips counts closed-to-open transitions.
	BreakerTrips = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "catalog_engine",
		Subsystem: "llm",
		Name:      "breaker_trips_total",
		Help:      "Number of times the circuit breaker tripped open.",
	})

	// JobDuration observes wall-clock job duration by kind and final status.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "catalog_engine",
		Subsystem: "jobs",
		Name:      "duration_seconds",
		Help:      "Job duration from start to terminal state.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"kind", "status"})

	// TablesExtracted counts tables successfully extracted into the catalog.
	TablesExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "catalog_engine",
		Subsystem: "extraction",
		Name:      "tables_total",
		Help:      "Tables successfully extracted into the catalog.",
	})

	// BatchesEnriched counts enrichment batches by outcome.
	BatchesEnriched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog_engine",
		Subsystem: "enrichment",
		Name:      "batches_total",
		Help:      "Enrichment batches processed by outcome.",
	}, []string{"outcome"})
)
