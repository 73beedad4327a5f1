// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package note

import (
	"context"
	"log/slog"
	"time"

	"github.com/taibuivan/flowreader/internal/core/book"
	"github.com/taibuivan/flowreader/internal/platform/apperr"
	"github.com/taibuivan/flowreader/internal/platform/ctxutil"
	"github.com/taibuivan/flowreader/internal/platform/metrics"
	"github.com/taibuivan/flowreader/internal/platform/validate"
	"github.com/taibuivan/flowreader/pkg/uuid"
)

// BookGate exposes the library lookup the notes domain needs.
type BookGate interface {
	GetBook(ctx context.Context, ownerID, bookID string) (*book.Book, error)
}

// # Service Layer

// SearchPage is the discovery response: one page plus its accounting.
type SearchPage struct {
	Items   []*Note `json:"items"`
	Total   int     `json:"total"`
	HasMore bool    `json:"hasMore"`
	Metrics struct {
		QueryMs int64 `json:"queryMs"`
	} `json:"metrics"`
}

// Service implements the notes domain logic.
type Service struct {
	store     Store
	books     BookGate
	generator *Generator
}

// NewService constructs the notes [Service].
func NewService(store Store, books BookGate, generator *Generator) *Service {
	return &Service{store: store, books: books, generator: generator}
}

/*
CreateManual persists a reader-written note after an ownership check on
the referenced book.

Description: The note body and any selection excerpt are user text headed
for storage and later rendering; both pass through the markup sanitizer
before the insert.
*/
func (service *Service) CreateManual(ctx context.Context, userID string, note *Note) (*Note, error) {
	if _, err := service.books.GetBook(ctx, userID, note.BookID); err != nil {
		return nil, err
	}

	note.Content = validate.Sanitize(note.Content)
	if note.Content == "" {
		return nil, apperr.ValidationError("Validation failed", apperr.FieldError{
			Field:   "content",
			Message: "Note content is empty after markup removal",
		})
	}
	if note.Selection != nil {
		note.Selection.Text = validate.Sanitize(note.Selection.Text)
	}

	note.ID = uuid.New()
	note.OwnerUserID = userID
	note.Source = SourceManual
	note.CreatedAt = time.Now().UTC()
	if note.Tags == nil {
		note.Tags = []string{}
	}

	if err := service.store.Create(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

/*
AutoGenerate produces and persists one auto note.

Description: The book must be fully processed; generation draws on its
embeddings and dialog history. The generator's confidence gate and fallback
have already run by the time the note is persisted.
*/
func (service *Service) AutoGenerate(ctx context.Context, input GenerateInput) (*Note, error) {
	bookRecord, err := service.books.GetBook(ctx, input.UserID, input.BookID)
	if err != nil {
		return nil, err
	}
	if bookRecord.Status != book.StatusReady {
		return nil, apperr.NotReady("The book is still being processed")
	}

	// The selection is user text that both feeds the prompt and lands in
	// the stored note verbatim.
	if input.Selection != nil {
		input.Selection.Text = validate.Sanitize(input.Selection.Text)
	}

	note, err := service.generator.Generate(ctx, input)
	if err != nil {
		return nil, err
	}

	note.ID = uuid.New()
	note.OwnerUserID = input.UserID
	note.CreatedAt = time.Now().UTC()

	if err := service.store.Create(ctx, note); err != nil {
		return nil, err
	}

	ctxutil.GetLogger(ctx).InfoContext(ctx, "auto_note_created",
		slog.String("note_id", note.ID),
		slog.String("book_id", note.BookID),
		slog.String("method", string(note.Meta.GenerationMethod)),
		slog.Float64("confidence", note.Meta.Confidence),
	)
	return note, nil
}

// GetNote returns one of the caller's notes.
func (service *Service) GetNote(ctx context.Context, userID, noteID string) (*Note, error) {
	return service.store.FindByID(ctx, userID, noteID)
}

// DeleteNote removes one of the caller's notes.
func (service *Service) DeleteNote(ctx context.Context, userID, noteID string) error {
	return service.store.Delete(ctx, userID, noteID)
}

// Search runs the discovery query and reports its latency alongside the
// page.
func (service *Service) Search(ctx context.Context, userID string, q SearchQuery) (*SearchPage, error) {
	started := time.Now()

	notes, total, err := service.store.Search(ctx, userID, q)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(started)
	metrics.NoteSearchDuration.Observe(elapsed.Seconds())

	if notes == nil {
		notes = []*Note{}
	}

	page := &SearchPage{
		Items:   notes,
		Total:   total,
		HasMore: q.Offset+len(notes) < total,
	}
	page.Metrics.QueryMs = elapsed.Milliseconds()
	return page, nil
}
