// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package book

import (
	"context"
	"log/slog"

	"github.com/taibuivan/flowreader/internal/platform/apperr"
	"github.com/taibuivan/flowreader/internal/platform/ctxutil"
)

// # Service Layer

// Service implements the library domain logic.
type Service struct {
	store Store
}

// NewService constructs the library [Service].
func NewService(store Store) *Service {
	return &Service{store: store}
}

// ListBooks returns a page of the caller's library.
func (service *Service) ListBooks(ctx context.Context, ownerID string, limit, offset int) ([]*Book, int, error) {
	return service.store.ListByOwner(ctx, ownerID, limit, offset)
}

// GetBook returns one book, regardless of its processing state. Clients use
// the status field to decide whether content endpoints are usable yet.
func (service *Service) GetBook(ctx context.Context, ownerID, bookID string) (*Book, error) {
	return service.store.FindByID(ctx, ownerID, bookID)
}

/*
DeleteBook removes a book and all derived data.

Description: Chapters, embeddings, dialog history, notes, and reading
positions cascade with the book row. Cached dialog replies referencing the
book age out on their own TTL; the book ID can never collide again, so a
stale entry is unreachable.
*/
func (service *Service) DeleteBook(ctx context.Context, ownerID, bookID string) error {
	if err := service.store.Delete(ctx, ownerID, bookID); err != nil {
		return err
	}

	ctxutil.GetLogger(ctx).InfoContext(ctx, "book_deleted",
		slog.String("book_id", bookID),
	)
	return nil
}

// requireReady loads a book and insists the pipeline has finished with it.
func (service *Service) requireReady(ctx context.Context, ownerID, bookID string) (*Book, error) {
	bookRecord, err := service.store.FindByID(ctx, ownerID, bookID)
	if err != nil {
		return nil, err
	}
	if bookRecord.Status != StatusReady {
		return nil, apperr.NotReady("The book is still being processed")
	}
	return bookRecord, nil
}

// ListChapters returns a page of chapter summaries for a ready book.
func (service *Service) ListChapters(ctx context.Context, ownerID, bookID string, limit, offset int) ([]*ChapterSummary, int, error) {
	if _, err := service.requireReady(ctx, ownerID, bookID); err != nil {
		return nil, 0, err
	}
	return service.store.ListChapters(ctx, ownerID, bookID, limit, offset)
}

// GetChapter returns one chapter's full content, located by its ID alone.
// The owning book must be ready.
func (service *Service) GetChapter(ctx context.Context, ownerID, chapterID string) (*Chapter, error) {
	chapter, err := service.store.FindChapterByID(ctx, ownerID, chapterID)
	if err != nil {
		return nil, err
	}
	if _, err := service.requireReady(ctx, ownerID, chapter.BookID); err != nil {
		return nil, err
	}
	return chapter, nil
}

// GetPosition returns the saved reading position for one book.
func (service *Service) GetPosition(ctx context.Context, ownerID, bookID string) (*Position, error) {
	if _, err := service.store.FindByID(ctx, ownerID, bookID); err != nil {
		return nil, err
	}
	return service.store.FindPosition(ctx, ownerID, bookID)
}

/*
SavePosition upserts the reading position for one book.

Description: The chapter must belong to the book; a mismatched pair is a
validation problem, not a missing row.
*/
func (service *Service) SavePosition(ctx context.Context, ownerID string, position *Position) error {
	chapter, err := service.store.FindChapter(ctx, ownerID, position.BookID, position.ChapterID)
	if err != nil {
		return err
	}

	// Clamp the offset into the chapter's actual extent.
	if position.Offset > len(chapter.Content) {
		return apperr.ValidationError("Validation failed", apperr.FieldError{
			Field:   "offset",
			Message: "Offset exceeds the chapter length",
		})
	}

	return service.store.UpsertPosition(ctx, ownerID, position)
}
