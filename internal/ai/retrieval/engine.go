// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package retrieval selects the book passages that ground a model reply.

The engine over-retrieves from the vector index, then narrows the field
deterministically: an absolute similarity floor, a relative floor anchored to
the best hit, near-duplicate suppression, and a token budget over the final
selection. Identical inputs always produce identical passages, which is what
makes the response cache's context signature meaningful.
*/
package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/taibuivan/flowreader/internal/platform/constants"
)

// Passage is one selected chunk, ready for prompt assembly.
type Passage struct {
	ChapterIdx   int
	ChapterTitle string
	ChunkOrdinal int
	Content      string
	Similarity   float64
}

// Result is the grounding for one dialog turn.
type Result struct {
	Passages []Passage

	// ContextSignature fingerprints exactly which chunks were selected.
	// Two turns with the same signature saw the same grounding.
	ContextSignature string
}

// Empty reports whether retrieval found nothing relevant.
func (result Result) Empty() bool { return len(result.Passages) == 0 }

// Engine narrows vector-index candidates into a grounded context.
type Engine struct {
	store Store
}

// NewEngine constructs the retrieval engine.
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

/*
Retrieve selects the passages grounding a reply about one book.

Description: Fetches RetrievalTopKInitial candidates and filters in a fixed
order: absolute floor, relative floor (top score minus RetrievalRelativeDelta),
near-duplicate suppression at RetrievalDedupThreshold keeping the higher
scored chunk, then at most RetrievalTopKFinal passages within the token
budget. Ties in similarity break by chapter index, then chunk ordinal.

Parameters:
  - ctx: context.Context
  - bookID: string
  - queryVector: []float32 (Embedding of the user's query or selection)

Returns:
  - Result: Selected passages (possibly none) and the context signature
  - error: Store failures only; an empty selection is not an error
*/
func (engine *Engine) Retrieve(ctx context.Context, bookID string, queryVector []float32) (Result, error) {
	candidates, err := engine.store.Nearest(ctx, bookID, queryVector, constants.RetrievalTopKInitial)
	if err != nil {
		return Result{}, fmt.Errorf("retrieval: %w", err)
	}

	// ── 1. Absolute floor ─────────────────────────────────────────────────
	filtered := candidates[:0]
	for _, candidate := range candidates {
		if candidate.Similarity >= constants.RetrievalSimilarityFloor {
			filtered = append(filtered, candidate)
		}
	}
	if len(filtered) == 0 {
		return Result{}, nil
	}

	// Deterministic order before any pairwise comparison.
	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Similarity != filtered[j].Similarity {
			return filtered[i].Similarity > filtered[j].Similarity
		}
		if filtered[i].ChapterIdx != filtered[j].ChapterIdx {
			return filtered[i].ChapterIdx < filtered[j].ChapterIdx
		}
		return filtered[i].ChunkOrdinal < filtered[j].ChunkOrdinal
	})

	// ── 2. Relative floor ─────────────────────────────────────────────────
	relativeFloor := filtered[0].Similarity - constants.RetrievalRelativeDelta
	cut := len(filtered)
	for i, candidate := range filtered {
		if candidate.Similarity < relativeFloor {
			cut = i
			break
		}
	}
	filtered = filtered[:cut]

	// ── 3. Near-duplicate suppression ─────────────────────────────────────
	// Walking in score order means the kept chunk of any duplicate pair is
	// always the higher scored one.
	var unique []Candidate
	for _, candidate := range filtered {
		duplicate := false
		for _, kept := range unique {
			if cosine(candidate.Vector, kept.Vector) >= constants.RetrievalDedupThreshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			unique = append(unique, candidate)
		}
	}

	// ── 4. Budgeted selection ─────────────────────────────────────────────
	var passages []Passage
	var signatureParts []string
	budget := constants.RetrievalTokenBudget

	for _, candidate := range unique {
		if len(passages) == constants.RetrievalTopKFinal {
			break
		}
		cost := estimateTokens(candidate.Content)
		if cost > budget {
			continue
		}
		budget -= cost

		passages = append(passages, Passage{
			ChapterIdx:   candidate.ChapterIdx,
			ChapterTitle: candidate.ChapterTitle,
			ChunkOrdinal: candidate.ChunkOrdinal,
			Content:      candidate.Content,
			Similarity:   candidate.Similarity,
		})
		signatureParts = append(signatureParts, fmt.Sprintf("%s:%d", candidate.ChapterID, candidate.ChunkOrdinal))
	}

	if len(passages) == 0 {
		return Result{}, nil
	}

	sum := sha256.Sum256([]byte(strings.Join(signatureParts, "|")))
	return Result{
		Passages:         passages,
		ContextSignature: hex.EncodeToString(sum[:]),
	}, nil
}

// estimateTokens approximates tokens as characters over four, matching the
// coarse budgeting used at chunking time.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// cosine computes cosine similarity between two vectors.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
