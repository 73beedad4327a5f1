// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package retrieval

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/taibuivan/flowreader/internal/platform/database/schema"
)

// pgStore implements [Store] on the pgvector index.
type pgStore struct {
	pool *pgxpool.Pool
}

// NewStore constructs a PostgreSQL backed vector store.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

/*
Nearest runs the cosine-distance scan for one book.

Description: The `<=>` operator returns cosine distance; similarity is
1 - distance. Chunk text is reconstructed from the chapter content using the
stored character spans, so chunk bodies are never duplicated at rest.

Parameters:
  - ctx: context.Context
  - bookID: string (Scopes the scan; never search across books)
  - query: []float32 (The query embedding)
  - limit: int

Returns:
  - []Candidate: Most similar first, with vectors for downstream dedup
  - error: Query failures
*/
func (store *pgStore) Nearest(ctx context.Context, bookID string, query []float32, limit int) ([]Candidate, error) {

	// Scoped vector scan with span-based chunk reconstruction
	sql := fmt.Sprintf(`
		SELECT
			c.%s, c.%s, c.%s,
			e.%s,
			substr(c.%s, e.%s + 1, e.%s - e.%s),
			1 - (e.%s <=> $1) AS similarity,
			e.%s
		FROM %s e
		JOIN %s c ON e.%s = c.%s
		WHERE c.%s = $2
		ORDER BY e.%s <=> $1
		LIMIT $3
	`,
		schema.Chapter.ID, schema.Chapter.Idx, schema.Chapter.Title,
		schema.ChapterEmbedding.ChunkOrdinal,
		schema.Chapter.Content, schema.ChapterEmbedding.SpanStart, schema.ChapterEmbedding.SpanEnd, schema.ChapterEmbedding.SpanStart,
		schema.ChapterEmbedding.Embedding,
		schema.ChapterEmbedding.Embedding,
		schema.ChapterEmbedding.Table,
		schema.Chapter.Table, schema.ChapterEmbedding.ChapterID, schema.Chapter.ID,
		schema.Chapter.BookID,
		schema.ChapterEmbedding.Embedding,
	)

	rows, err := store.pool.Query(ctx, sql, pgvector.NewVector(query), bookID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query nearest chunks: %w", err)
	}
	defer rows.Close()

	// Candidate hydration
	var candidates []Candidate
	for rows.Next() {
		var candidate Candidate
		var vector pgvector.Vector

		err := rows.Scan(
			&candidate.ChapterID,
			&candidate.ChapterIdx,
			&candidate.ChapterTitle,
			&candidate.ChunkOrdinal,
			&candidate.Content,
			&candidate.Similarity,
			&vector,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan chunk candidate: %w", err)
		}

		candidate.Vector = vector.Slice()
		candidates = append(candidates, candidate)
	}

	return candidates, rows.Err()
}
