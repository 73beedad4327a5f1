// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package note

import (
	"context"
	"time"
)

// # Search Contract

// Sort keys accepted by the discovery endpoint.
const (
	SortCreatedAt     = "createdAt"
	SortConfidence    = "confidence"
	SortContentLength = "contentLength"
	SortRelevance     = "relevance"
)

// SearchQuery is one validated discovery request.
//
// Relevance ordering needs a full-text query; without one it falls back to
// newest first.
type SearchQuery struct {
	BookID        string
	ChapterID     string
	Source        Source
	Intent        string
	Tags          []string
	MinConfidence *float64
	CreatedAfter  *time.Time
	CreatedBefore *time.Time

	// Query is the full-text term set, matched case-insensitively with
	// prefix support over content and tags.
	Query string

	Sort       string
	Descending bool
	Limit      int
	Offset     int
}

// Store defines the persistence contract for notes.
type Store interface {
	// Create persists one note under the owner's row-security identity.
	Create(ctx context.Context, note *Note) error

	// FindByID returns one of the owner's notes.
	FindByID(ctx context.Context, ownerID, noteID string) (*Note, error)

	// Delete removes one of the owner's notes.
	Delete(ctx context.Context, ownerID, noteID string) error

	// Search runs a filtered, optionally full-text, discovery query and
	// returns the page with the total match count.
	Search(ctx context.Context, ownerID string, q SearchQuery) ([]*Note, int, error)
}
