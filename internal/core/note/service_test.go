// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package note

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/flowreader/internal/ai/policy"
	"github.com/taibuivan/flowreader/internal/core/book"
	"github.com/taibuivan/flowreader/internal/platform/apperr"
)

// memNoteStore is an in-memory [Store] for service tests.
type memNoteStore struct {
	notes map[string]*Note
}

func newMemNoteStore() *memNoteStore {
	return &memNoteStore{notes: map[string]*Note{}}
}

func (store *memNoteStore) Create(_ context.Context, note *Note) error {
	store.notes[note.ID] = note
	return nil
}

func (store *memNoteStore) FindByID(_ context.Context, ownerID, noteID string) (*Note, error) {
	note, ok := store.notes[noteID]
	if !ok || note.OwnerUserID != ownerID {
		return nil, apperr.NotFound("note")
	}
	return note, nil
}

func (store *memNoteStore) Delete(_ context.Context, ownerID, noteID string) error {
	if _, err := store.FindByID(context.Background(), ownerID, noteID); err != nil {
		return err
	}
	delete(store.notes, noteID)
	return nil
}

func (store *memNoteStore) Search(_ context.Context, ownerID string, q SearchQuery) ([]*Note, int, error) {
	var owned []*Note
	for _, note := range store.notes {
		if note.OwnerUserID == ownerID {
			owned = append(owned, note)
		}
	}
	total := len(owned)
	if q.Offset >= total {
		return nil, total, nil
	}
	end := q.Offset + q.Limit
	if end > total {
		end = total
	}
	return owned[q.Offset:end], total, nil
}

type stubBookGate struct {
	status book.Status
	err    error
}

func (gate *stubBookGate) GetBook(_ context.Context, _, bookID string) (*book.Book, error) {
	if gate.err != nil {
		return nil, gate.err
	}
	return &book.Book{ID: bookID, Status: gate.status}, nil
}

func newNoteService(gate *stubBookGate) (*Service, *memNoteStore) {
	store := newMemNoteStore()
	generator := newGenerator(&fakeNoteCompleter{replyLen: 500}, &fakeNoteRetriever{passages: fullGrounding()}, nil)
	return NewService(store, gate, generator), store
}

func TestCreateManual(t *testing.T) {
	service, store := newNoteService(&stubBookGate{status: book.StatusReady})

	created, err := service.CreateManual(context.Background(), "user-1", &Note{
		BookID:  "book-1",
		Content: "my thought",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, SourceManual, created.Source)
	assert.Equal(t, "user-1", created.OwnerUserID)
	assert.NotNil(t, created.Tags)
	assert.Contains(t, store.notes, created.ID)
}

func TestCreateManualStripsMarkup(t *testing.T) {
	service, store := newNoteService(&stubBookGate{status: book.StatusReady})

	created, err := service.CreateManual(context.Background(), "user-1", &Note{
		BookID:    "book-1",
		Content:   `useful thought<script>alert("x")</script>`,
		Selection: &Selection{Text: `<img onerror="steal()">Call me Ishmael.`, Start: 0, End: 16},
	})
	require.NoError(t, err)

	// The stored note carries no executable markup.
	stored := store.notes[created.ID]
	assert.Equal(t, "useful thought", stored.Content)
	assert.Equal(t, "Call me Ishmael.", stored.Selection.Text)
}

func TestCreateManualRejectsMarkupOnlyContent(t *testing.T) {
	service, _ := newNoteService(&stubBookGate{status: book.StatusReady})

	_, err := service.CreateManual(context.Background(), "user-1", &Note{
		BookID:  "book-1",
		Content: `<script>alert("x")</script>`,
	})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", apperr.As(err).Code)
}

func TestCreateManualForeignBook(t *testing.T) {
	service, _ := newNoteService(&stubBookGate{err: apperr.NotFound("book")})

	_, err := service.CreateManual(context.Background(), "user-1", &Note{BookID: "book-2", Content: "x"})
	assert.True(t, apperr.IsNotFound(err))
}

func TestAutoGeneratePersists(t *testing.T) {
	service, store := newNoteService(&stubBookGate{status: book.StatusReady})

	note, err := service.AutoGenerate(context.Background(), GenerateInput{
		UserID:    "user-1",
		BookID:    "book-1",
		Intent:    policy.IntentEnhance,
		Selection: &Selection{Text: "Call me Ishmael."},
	})
	require.NoError(t, err)

	assert.Equal(t, SourceAuto, note.Source)
	assert.NotEmpty(t, note.ID)
	assert.Contains(t, store.notes, note.ID)
}

func TestAutoGenerateStripsSelectionMarkup(t *testing.T) {
	service, store := newNoteService(&stubBookGate{status: book.StatusReady})

	note, err := service.AutoGenerate(context.Background(), GenerateInput{
		UserID:    "user-1",
		BookID:    "book-1",
		Intent:    policy.IntentEnhance,
		Selection: &Selection{Text: `Call me Ishmael.<script>alert("x")</script>`},
	})
	require.NoError(t, err)

	assert.Equal(t, "Call me Ishmael.", store.notes[note.ID].Selection.Text)
}

func TestAutoGenerateRequiresReadyBook(t *testing.T) {
	service, _ := newNoteService(&stubBookGate{status: book.StatusProcessing})

	_, err := service.AutoGenerate(context.Background(), GenerateInput{
		UserID: "user-1",
		BookID: "book-1",
		Intent: policy.IntentSummarize,
	})

	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, "NOT_READY", appError.Code)
}

func TestSearchPageAccounting(t *testing.T) {
	service, store := newNoteService(&stubBookGate{status: book.StatusReady})
	for i := 0; i < 5; i++ {
		note := &Note{ID: string(rune('a' + i)), OwnerUserID: "user-1", BookID: "book-1", Content: "n"}
		store.notes[note.ID] = note
	}

	page, err := service.Search(context.Background(), "user-1", SearchQuery{Limit: 2, Offset: 2})
	require.NoError(t, err)

	assert.Len(t, page.Items, 2)
	assert.Equal(t, 5, page.Total)
	assert.True(t, page.HasMore)
	assert.GreaterOrEqual(t, page.Metrics.QueryMs, int64(0))

	last, err := service.Search(context.Background(), "user-1", SearchQuery{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, last.Items, 1)
	assert.False(t, last.HasMore)
}
