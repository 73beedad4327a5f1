// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package note

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSearchOwnerOnly(t *testing.T) {
	sql, args := buildSearch("user-1", SearchQuery{Sort: SortCreatedAt, Descending: true, Limit: 20, Offset: 0})

	assert.Contains(t, sql, "owner_user_id = $1")
	assert.Contains(t, sql, "ORDER BY created_at DESC")
	assert.Contains(t, sql, "COUNT(*) OVER()")
	require.Len(t, args, 3)
	assert.Equal(t, "user-1", args[0])
	assert.Equal(t, 20, args[1])
	assert.Equal(t, 0, args[2])
}

func TestBuildSearchFilters(t *testing.T) {
	floor := 0.7
	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	sql, args := buildSearch("user-1", SearchQuery{
		BookID:        "book-1",
		ChapterID:     "chapter-1",
		Source:        SourceAuto,
		Intent:        "enhance",
		Tags:          []string{"fallback", "auto_generated"},
		MinConfidence: &floor,
		CreatedAfter:  &after,
		Sort:          SortConfidence,
		Descending:    true,
		Limit:         10,
	})

	assert.Contains(t, sql, "book_id = $2")
	assert.Contains(t, sql, "chapter_id = $3")
	assert.Contains(t, sql, "source = $4")
	assert.Contains(t, sql, "intent = $5")
	assert.Contains(t, sql, "tags @> $6")
	assert.Contains(t, sql, "confidence >= $7")
	assert.Contains(t, sql, "created_at >= $8")
	assert.Contains(t, sql, "ORDER BY confidence DESC")

	require.Len(t, args, 10)
	assert.Equal(t, []string{"fallback", "auto_generated"}, args[5])
	assert.Equal(t, 0.7, args[6])
}

func TestBuildSearchFullText(t *testing.T) {
	t.Run("single term gets prefix matching", func(t *testing.T) {
		sql, args := buildSearch("user-1", SearchQuery{Query: "whale", Sort: SortCreatedAt, Limit: 20})

		assert.Contains(t, sql, "search_vector @@ to_tsquery('english', $2)")
		assert.Equal(t, "whale:*", args[1])
	})

	t.Run("phrase goes through websearch parsing", func(t *testing.T) {
		sql, args := buildSearch("user-1", SearchQuery{Query: "white whale", Sort: SortCreatedAt, Limit: 20})

		assert.Contains(t, sql, "websearch_to_tsquery('english', $2)")
		assert.Equal(t, "white whale", args[1])
	})
}

func TestBuildSearchRelevanceSort(t *testing.T) {
	t.Run("with query ranks matches", func(t *testing.T) {
		sql, _ := buildSearch("user-1", SearchQuery{Query: "whale", Sort: SortRelevance, Descending: true, Limit: 20})

		assert.Contains(t, sql, "ts_rank(search_vector, to_tsquery('english', $2)) DESC")
	})

	t.Run("without query degrades to recency", func(t *testing.T) {
		sql, _ := buildSearch("user-1", SearchQuery{Sort: SortRelevance, Limit: 20})

		assert.Contains(t, sql, "ORDER BY created_at DESC")
		assert.NotContains(t, sql, "ts_rank")
	})
}

func TestBuildSearchContentLengthSort(t *testing.T) {
	sql, _ := buildSearch("user-1", SearchQuery{Sort: SortContentLength, Limit: 20})

	assert.Contains(t, sql, "ORDER BY char_length(content) ASC")
}
