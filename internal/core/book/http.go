// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package book

import (
	"net/http"

	"github.com/taibuivan/flowreader/internal/platform/constants"
	requestutil "github.com/taibuivan/flowreader/internal/platform/request"
	"github.com/taibuivan/flowreader/internal/platform/respond"
	"github.com/taibuivan/flowreader/internal/platform/validate"
	"github.com/taibuivan/flowreader/pkg/pagination"
)

// # Handler Implementation

// Handler implements the HTTP layer for the library.
type Handler struct {
	service *Service
}

// NewHandler constructs a new library [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// # Library Browsing

/*
GET /api/books.

Description: Returns the caller's library, newest upload first.

Request:
  - limit: int (1..100)
  - offset: int

Response:
  - 200: {items, meta}: Paginated list
  - 400: Validation: Out-of-range pagination
*/
func (handler *Handler) ListBooks(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	params, err := pagination.FromRequest(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	books, total, err := handler.service.ListBooks(request.Context(), userID, params.Limit, params.Offset)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	if books == nil {
		books = []*Book{}
	}

	respond.OK(writer, map[string]any{
		constants.FieldItems: books,
		constants.FieldMeta:  pagination.NewMeta(params, len(books), total),
	})
}

/*
GET /api/books/{bookID}.

Response:
  - 200: Book: Including status and failureKind while processing
  - 404: ErrNotFound: Absent or not owned by the caller
*/
func (handler *Handler) GetBook(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	bookRecord, err := handler.service.GetBook(request.Context(), userID, requestutil.ID(request, "bookID"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, bookRecord)
}

/*
DELETE /api/books/{bookID}.

Description: Removes the book and every derived artifact (chapters,
embeddings, dialog history, notes, reading position).

Response:
  - 204: Deleted
  - 404: ErrNotFound
*/
func (handler *Handler) DeleteBook(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.DeleteBook(request.Context(), userID, requestutil.ID(request, "bookID")); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// # Chapter Access

/*
GET /api/books/{bookID}/chapters.

Response:
  - 200: {items, meta}: Chapter summaries in reading order
  - 404: ErrNotFound
  - 409: NOT_READY: Pipeline still running
*/
func (handler *Handler) ListChapters(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	params, err := pagination.FromRequest(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	chapters, total, err := handler.service.ListChapters(request.Context(), userID, requestutil.ID(request, "bookID"), params.Limit, params.Offset)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	if chapters == nil {
		chapters = []*ChapterSummary{}
	}

	respond.OK(writer, map[string]any{
		constants.FieldItems: chapters,
		constants.FieldMeta:  pagination.NewMeta(params, len(chapters), total),
	})
}

/*
GET /api/chapters/{chapterID}.

Response:
  - 200: Chapter: Full content
  - 404: ErrNotFound
  - 409: NOT_READY: Pipeline still running
*/
func (handler *Handler) GetChapter(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	chapter, err := handler.service.GetChapter(
		request.Context(),
		userID,
		requestutil.ID(request, "chapterID"),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, chapter)
}

// # Reading Position

/*
GET /api/books/{bookID}/position.

Response:
  - 200: Position
  - 404: ErrNotFound: No position saved yet
*/
func (handler *Handler) GetPosition(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	position, err := handler.service.GetPosition(request.Context(), userID, requestutil.ID(request, "bookID"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, position)
}

// savePositionRequest defines the inbound JSON schema for position sync.
type savePositionRequest struct {
	BookID    string `json:"bookId"`
	ChapterID string `json:"chapterId"`
	Offset    int    `json:"offset"`
}

/*
POST /api/position.

Description: Saves the reading position. Last writer wins across devices.

Request:
  - body: savePositionRequest

Response:
  - 204: Saved
  - 400: Validation: Bad chapter reference or offset
  - 404: ErrNotFound
*/
func (handler *Handler) SavePosition(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input savePositionRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	v := &validate.Validator{}
	v.Required("bookId", input.BookID)
	v.UUID("bookId", input.BookID)
	v.Required("chapterId", input.ChapterID)
	v.UUID("chapterId", input.ChapterID)
	v.NonNegative("offset", input.Offset)
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	position := &Position{
		BookID:    input.BookID,
		ChapterID: input.ChapterID,
		Offset:    input.Offset,
	}

	if err := handler.service.SavePosition(request.Context(), userID, position); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}
