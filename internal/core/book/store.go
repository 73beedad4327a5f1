// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package book

import "context"

// Store defines the persistence contract for the library domain.
//
// Every method takes the owner's user ID and answers NotFound for rows owned
// by anyone else; another user's library is indistinguishable from an empty
// one.
type Store interface {
	// ListByOwner returns a page of the owner's books, newest first, with
	// the total count.
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*Book, int, error)

	// FindByID returns one of the owner's books.
	FindByID(ctx context.Context, ownerID, bookID string) (*Book, error)

	// Delete removes a book. Chapters, embeddings, dialog history, notes,
	// and positions cascade at the schema level.
	Delete(ctx context.Context, ownerID, bookID string) error

	// ListChapters returns a page of chapter summaries in reading order.
	ListChapters(ctx context.Context, ownerID, bookID string, limit, offset int) ([]*ChapterSummary, int, error)

	// FindChapter returns one chapter with its full content.
	FindChapter(ctx context.Context, ownerID, bookID, chapterID string) (*Chapter, error)

	// FindChapterByID returns one chapter without a book scoping hint, for
	// the flat chapter endpoint.
	FindChapterByID(ctx context.Context, ownerID, chapterID string) (*Chapter, error)

	// FindPosition returns the saved reading position, or NotFound when the
	// reader has none yet.
	FindPosition(ctx context.Context, ownerID, bookID string) (*Position, error)

	// UpsertPosition saves the reading position, replacing any previous one.
	UpsertPosition(ctx context.Context, ownerID string, position *Position) error
}
