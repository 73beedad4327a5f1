// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package metrics registers the Prometheus instruments shared across the
// platform.
//
// # Architecture
//
// Instruments are process-wide singletons created at init. Components record
// into them directly; /metrics exposition is wired by the API server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestDuration observes handler latency by route and status class.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "flowreader",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "status"})

	// CacheHits counts response-cache hits by source (exact | semantic).
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowreader",
		Subsystem: "dialog",
		Name:      "cache_hits_total",
		Help:      "Response cache hits by lookup source.",
	}, []string{"source"})

	// CacheMisses counts response-cache misses.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flowreader",
		Subsystem: "dialog",
		Name:      "cache_misses_total",
		Help:      "Response cache misses.",
	})

	// LLMTokens counts tokens consumed, labelled by purpose
	// (chat | embedding) and model tier.
	LLMTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowreader",
		Subsystem: "llm",
		Name:      "tokens_total",
		Help:      "Tokens consumed against the inference provider.",
	}, []string{"purpose", "tier"})

	// LLMCostMicros accumulates estimated spend in micro-dollars.
	LLMCostMicros = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowreader",
		Subsystem: "llm",
		Name:      "cost_micros_total",
		Help:      "Estimated provider cost in micro-dollars.",
	}, []string{"purpose", "tier"})

	// EmbeddingCacheLookups counts embedding cache outcomes (hit | miss).
	EmbeddingCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowreader",
		Subsystem: "embedding",
		Name:      "cache_lookups_total",
		Help:      "Embedding cache lookups by result.",
	}, []string{"result"})

	// NoteSearchDuration observes the notes discovery query latency.
	NoteSearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "flowreader",
		Subsystem: "notes",
		Name:      "search_duration_seconds",
		Help:      "Notes discovery query latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .2, .5, 1, 2},
	})

	// RateLimitDecisions counts limiter outcomes by class and decision.
	RateLimitDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowreader",
		Subsystem: "ratelimit",
		Name:      "decisions_total",
		Help:      "Rate limiter outcomes (allowed | denied | degraded).",
	}, []string{"class", "decision"})

	// IngestOutcomes counts finished ingestion pipelines by terminal state.
	IngestOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowreader",
		Subsystem: "ingest",
		Name:      "outcomes_total",
		Help:      "Ingestion pipeline terminal states (ready | failed).",
	}, []string{"state"})
)
