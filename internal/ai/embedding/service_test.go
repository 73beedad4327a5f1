// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/flowreader/internal/ai/llm"
)

// fakeEmbedder returns deterministic vectors and records call batches.
type fakeEmbedder struct {
	batches [][]string
	fail    error
}

func (fake *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, llm.Usage, error) {
	if fake.fail != nil {
		return nil, llm.Usage{}, fake.fail
	}
	fake.batches = append(fake.batches, texts)

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = []float32{float32(len(text)), 1}
	}
	return vectors, llm.Usage{PromptTokens: int64(len(texts))}, nil
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	fake := &fakeEmbedder{}
	service := NewService(fake)

	vectors, err := service.EmbedBatch(context.Background(), []string{"a", "bbb", "cc"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	assert.Equal(t, float32(1), vectors[0][0])
	assert.Equal(t, float32(3), vectors[1][0])
	assert.Equal(t, float32(2), vectors[2][0])
}

func TestEmbedBatchSplitsLargeInputs(t *testing.T) {
	fake := &fakeEmbedder{}
	service := NewService(fake)

	texts := make([]string, 35)
	for i := range texts {
		texts[i] = string(rune('a'+i%26)) + "-unique-" + string(rune('A'+i%26)) + string(rune('0'+i%10))
	}

	_, err := service.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)

	// 35 inputs with a batch size of 16 means 3 provider calls.
	require.Len(t, fake.batches, 3)
	assert.Len(t, fake.batches[0], 16)
	assert.Len(t, fake.batches[1], 16)
	assert.Len(t, fake.batches[2], 3)
}

func TestEmbedOneServesRepeatsFromCache(t *testing.T) {
	fake := &fakeEmbedder{}
	service := NewService(fake)

	first, err := service.EmbedOne(context.Background(), "the same selection")
	require.NoError(t, err)

	second, err := service.EmbedOne(context.Background(), "the same selection")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, fake.batches, 1, "second call should not reach the provider")
}

func TestEmbedBatchProviderFailureFailsWhole(t *testing.T) {
	fake := &fakeEmbedder{fail: errors.New("provider down")}
	service := NewService(fake)

	_, err := service.EmbedBatch(context.Background(), []string{"x", "y"})
	require.Error(t, err)
}

func TestVectorCacheExpiry(t *testing.T) {
	cache := newVectorCache(time.Minute)
	current := time.Unix(1_700_000_000, 0)
	cache.now = func() time.Time { return current }

	cache.put(cacheKey("hello"), []float32{1, 2})

	_, ok := cache.get(cacheKey("hello"))
	assert.True(t, ok)

	current = current.Add(2 * time.Minute)
	_, ok = cache.get(cacheKey("hello"))
	assert.False(t, ok, "entry should expire after the TTL")
}
