// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package retrieval

import "context"

// Candidate is one chunk returned by the vector index, before selection.
type Candidate struct {
	ChapterID    string
	ChapterIdx   int
	ChapterTitle string
	ChunkOrdinal int
	Content      string
	Similarity   float64
	Vector       []float32
}

// Store abstracts the vector index lookup.
type Store interface {
	// Nearest returns the limit most similar chunks of one book, most
	// similar first. Similarity is cosine in [0, 1].
	Nearest(ctx context.Context, bookID string, query []float32, limit int) ([]Candidate, error)
}
