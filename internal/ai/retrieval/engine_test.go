// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package retrieval

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore returns a fixed candidate set regardless of the query.
type fakeStore struct {
	candidates []Candidate
}

func (fake *fakeStore) Nearest(_ context.Context, _ string, _ []float32, limit int) ([]Candidate, error) {
	if limit < len(fake.candidates) {
		return fake.candidates[:limit], nil
	}
	return fake.candidates, nil
}

func candidate(chapterID string, idx, ordinal int, similarity float64, vector []float32, content string) Candidate {
	return Candidate{
		ChapterID:    chapterID,
		ChapterIdx:   idx,
		ChunkOrdinal: ordinal,
		Content:      content,
		Similarity:   similarity,
		Vector:       vector,
	}
}

func retrieve(t *testing.T, candidates []Candidate) Result {
	t.Helper()
	engine := NewEngine(&fakeStore{candidates: candidates})
	result, err := engine.Retrieve(context.Background(), "book-1", []float32{1, 0})
	require.NoError(t, err)
	return result
}

func TestRetrieveAbsoluteFloor(t *testing.T) {
	result := retrieve(t, []Candidate{
		candidate("c1", 0, 0, 0.74, []float32{1, 0}, "below the floor"),
		candidate("c1", 0, 1, 0.50, []float32{0, 1}, "far below"),
	})
	assert.True(t, result.Empty())
	assert.Empty(t, result.ContextSignature)
}

func TestRetrieveRelativeFloor(t *testing.T) {
	// Top score 0.95: anything under 0.80 is cut even though it clears the
	// absolute floor.
	result := retrieve(t, []Candidate{
		candidate("c1", 0, 0, 0.95, []float32{1, 0}, "the best passage"),
		candidate("c2", 1, 0, 0.79, []float32{0, 1}, "trailing passage"),
	})
	require.Len(t, result.Passages, 1)
	assert.Equal(t, "the best passage", result.Passages[0].Content)
}

func TestRetrieveDeduplicatesKeepingHigherScore(t *testing.T) {
	// Same direction vectors: cosine 1.0, well over the dedup threshold.
	result := retrieve(t, []Candidate{
		candidate("c1", 0, 0, 0.92, []float32{1, 0}, "kept duplicate"),
		candidate("c2", 1, 0, 0.88, []float32{2, 0}, "dropped duplicate"),
		candidate("c3", 2, 0, 0.85, []float32{0, 1}, "distinct passage"),
	})

	require.Len(t, result.Passages, 2)
	assert.Equal(t, "kept duplicate", result.Passages[0].Content)
	assert.Equal(t, "distinct passage", result.Passages[1].Content)
}

func TestRetrieveCapsAtTopKFinal(t *testing.T) {
	result := retrieve(t, []Candidate{
		candidate("c1", 0, 0, 0.95, []float32{1, 0}, "one"),
		candidate("c2", 1, 0, 0.94, []float32{0, 1}, "two"),
		candidate("c3", 2, 0, 0.93, []float32{1, 1}, "three"),
		candidate("c4", 3, 0, 0.92, []float32{1, -1}, "four"),
	})
	assert.Len(t, result.Passages, 3)
}

func TestRetrieveHonorsTokenBudget(t *testing.T) {
	// ~1400 estimated tokens each: only one fits inside 1500.
	huge := strings.Repeat("word ", 1120)
	result := retrieve(t, []Candidate{
		candidate("c1", 0, 0, 0.95, []float32{1, 0}, huge),
		candidate("c2", 1, 0, 0.94, []float32{0, 1}, huge),
		candidate("c3", 2, 0, 0.93, []float32{1, 1}, "tiny"),
	})

	// The second huge chunk is skipped; the tiny one still fits.
	require.Len(t, result.Passages, 2)
	assert.Equal(t, huge, result.Passages[0].Content)
	assert.Equal(t, "tiny", result.Passages[1].Content)
}

func TestRetrieveTieBreaksByChapterOrder(t *testing.T) {
	result := retrieve(t, []Candidate{
		candidate("c-late", 5, 2, 0.90, []float32{0, 1}, "later chapter"),
		candidate("c-early", 1, 0, 0.90, []float32{1, 0}, "earlier chapter"),
	})

	require.Len(t, result.Passages, 2)
	assert.Equal(t, "earlier chapter", result.Passages[0].Content)
	assert.Equal(t, "later chapter", result.Passages[1].Content)
}

func TestRetrieveIsDeterministic(t *testing.T) {
	candidates := []Candidate{
		candidate("c1", 0, 0, 0.95, []float32{1, 0}, "alpha"),
		candidate("c2", 1, 0, 0.90, []float32{0, 1}, "beta"),
		candidate("c3", 2, 0, 0.88, []float32{1, 1}, "gamma"),
	}

	first := retrieve(t, candidates)
	second := retrieve(t, candidates)

	assert.Equal(t, first.Passages, second.Passages)
	assert.Equal(t, first.ContextSignature, second.ContextSignature)
	assert.NotEmpty(t, first.ContextSignature)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, cosine([]float32{1}, []float32{1, 2}))
	assert.Zero(t, cosine(nil, nil))
}
