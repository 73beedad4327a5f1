// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package embedding turns text into vectors, batched and cached.

The service sits between callers (ingestion, retrieval, the response cache)
and the provider client. It batches inputs to amortize round trips, serves
repeats from an in-process TTL cache keyed by content hash, and records token
spend on the platform metrics.
*/
package embedding

import (
	"context"

	"github.com/taibuivan/flowreader/internal/ai/llm"
	"github.com/taibuivan/flowreader/internal/platform/constants"
	"github.com/taibuivan/flowreader/internal/platform/metrics"
)

// Embedder is the provider call the service depends on.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, llm.Usage, error)
}

// Service batches and caches embedding computation. Safe for concurrent use.
type Service struct {
	provider Embedder
	cache    *vectorCache
}

// NewService wires the service over a provider client.
func NewService(provider Embedder) *Service {
	return &Service{
		provider: provider,
		cache:    newVectorCache(constants.EmbeddingCacheTTL),
	}
}

/*
EmbedOne embeds a single text, serving repeats from cache.

Returns:
  - []float32: The embedding vector
  - error: Provider failure after retries
*/
func (service *Service) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := service.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

/*
EmbedBatch embeds texts, preserving input order.

Description: Cached inputs are skipped; the remainder is sent to the
provider in batches of at most EmbeddingBatchSize. A provider failure fails
the whole call: partial vectors would leave a book half-embedded.

Parameters:
  - ctx: context.Context
  - texts: []string

Returns:
  - [][]float32: One vector per input, aligned with texts
  - error: Provider failure
*/
func (service *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	// ── 1. Serve from cache ───────────────────────────────────────────────
	var missing []int
	for i, text := range texts {
		if vector, ok := service.cache.get(cacheKey(text)); ok {
			vectors[i] = vector
			metrics.EmbeddingCacheLookups.WithLabelValues("hit").Inc()
			continue
		}
		metrics.EmbeddingCacheLookups.WithLabelValues("miss").Inc()
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return vectors, nil
	}

	// ── 2. Batch the misses ───────────────────────────────────────────────
	for start := 0; start < len(missing); start += constants.EmbeddingBatchSize {
		end := start + constants.EmbeddingBatchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]

		inputs := make([]string, len(batch))
		for j, idx := range batch {
			inputs[j] = texts[idx]
		}

		computed, usage, err := service.provider.Embed(ctx, inputs)
		if err != nil {
			return nil, err
		}

		metrics.LLMTokens.WithLabelValues("embedding", "embedding").Add(float64(usage.PromptTokens))
		metrics.LLMCostMicros.WithLabelValues("embedding", "embedding").Add(float64(usage.CostMicros))

		for j, idx := range batch {
			vectors[idx] = computed[j]
			service.cache.put(cacheKey(texts[idx]), computed[j])
		}
	}

	return vectors, nil
}
