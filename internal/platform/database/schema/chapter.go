// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package schema

// ChapterTable represents the 'chapters' table.
type ChapterTable struct {
	Table     string
	ID        string
	BookID    string
	Idx       string
	Title     string
	Content   string
	WordCount string
	CreatedAt string
}

// Chapter is the schema definition for chapters.
var Chapter = ChapterTable{
	Table:     "chapters",
	ID:        "id",
	BookID:    "book_id",
	Idx:       "idx",
	Title:     "title",
	Content:   "content",
	WordCount: "word_count",
	CreatedAt: "created_at",
}

// ChapterEmbeddingTable represents the 'chapter_embeddings' table.
type ChapterEmbeddingTable struct {
	Table        string
	ID           string
	ChapterID    string
	ChunkOrdinal string
	Embedding    string
	SpanStart    string
	SpanEnd      string
	CreatedAt    string
}

// ChapterEmbedding is the schema definition for chapter_embeddings.
var ChapterEmbedding = ChapterEmbeddingTable{
	Table:        "chapter_embeddings",
	ID:           "id",
	ChapterID:    "chapter_id",
	ChunkOrdinal: "chunk_ordinal",
	Embedding:    "embedding",
	SpanStart:    "span_start",
	SpanEnd:      "span_end",
	CreatedAt:    "created_at",
}
