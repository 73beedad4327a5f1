// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package note

import (
	"net/http"
	"time"

	"github.com/taibuivan/flowreader/internal/ai/policy"
	"github.com/taibuivan/flowreader/internal/platform/constants"
	requestutil "github.com/taibuivan/flowreader/internal/platform/request"
	"github.com/taibuivan/flowreader/internal/platform/respond"
	"github.com/taibuivan/flowreader/internal/platform/validate"
	"github.com/taibuivan/flowreader/pkg/pagination"
	"github.com/taibuivan/flowreader/pkg/query"
)

// # Handler Implementation

// Handler implements the HTTP layer for notes.
type Handler struct {
	service *Service
}

// NewHandler constructs a new notes [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// selectionBody is the inbound selection span.
type selectionBody struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// # Manual Notes

// createNoteRequest defines the inbound JSON schema for manual creation.
type createNoteRequest struct {
	BookID    string         `json:"bookId"`
	ChapterID string         `json:"chapterId,omitempty"`
	Selection *selectionBody `json:"selection,omitempty"`
	Content   string         `json:"content"`
	Tags      []string       `json:"tags,omitempty"`
}

/*
POST /api/notes.

Description: Saves a reader-written note against one of the caller's books.

Request:
  - body: createNoteRequest

Response:
  - 201: Note
  - 400: Validation: Missing content, oversized fields
  - 404: ErrNotFound: Book absent or foreign
*/
func (handler *Handler) CreateManual(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input createNoteRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	v := &validate.Validator{}
	v.Required("bookId", input.BookID)
	v.UUID("bookId", input.BookID)
	v.Required("content", input.Content)
	v.MaxLen("content", input.Content, constants.MaxNoteContentChars)
	if input.ChapterID != "" {
		v.UUID("chapterId", input.ChapterID)
	}
	if input.Selection != nil {
		v.Required("selection.text", input.Selection.Text)
		v.MaxLen("selection.text", input.Selection.Text, constants.MaxSelectionChars)
		v.NonNegative("selection.start", input.Selection.Start)
		v.Custom("selection.end", input.Selection.End < input.Selection.Start, "Selection end precedes its start")
	}
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	note := &Note{
		BookID:    input.BookID,
		ChapterID: optional(input.ChapterID),
		Selection: toSelection(input.Selection),
		Content:   input.Content,
		Tags:      input.Tags,
	}

	created, err := handler.service.CreateManual(request.Context(), userID, note)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, created)
}

// # Auto Notes

// autoNoteRequest defines the inbound JSON schema for generation.
type autoNoteRequest struct {
	BookID       string         `json:"bookId"`
	ChapterID    string         `json:"chapterId,omitempty"`
	Intent       string         `json:"intent,omitempty"`
	ContextScope string         `json:"contextScope,omitempty"`
	Selection    *selectionBody `json:"selection,omitempty"`
}

/*
POST /api/notes/auto.

Description: Generates a note from the book's content, the selection, or
the recent dialog, and persists it. A missing intent defaults to enhance
when a selection is present and summarize otherwise.

Request:
  - body: autoNoteRequest

Response:
  - 201: Note: Including meta.confidence and the generation method
  - 400: Validation: Unknown intent or scope, chapter scope without chapterId
  - 404: ErrNotFound
  - 409: NOT_READY: Book still processing
*/
func (handler *Handler) AutoGenerate(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input autoNoteRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if input.Intent == "" {
		if input.Selection != nil {
			input.Intent = string(policy.IntentEnhance)
		} else {
			input.Intent = string(policy.IntentSummarize)
		}
	}

	v := &validate.Validator{}
	v.Required("bookId", input.BookID)
	v.UUID("bookId", input.BookID)
	v.OneOf("intent", input.Intent, policy.Strings()...)
	v.Custom("contextScope", !ContextScope(input.ContextScope).Valid(), "Unknown context scope")
	v.Custom("chapterId", ContextScope(input.ContextScope) == ScopeChapter && input.ChapterID == "", "Chapter scope requires chapterId")
	if input.ChapterID != "" {
		v.UUID("chapterId", input.ChapterID)
	}
	if input.Selection != nil {
		v.Required("selection.text", input.Selection.Text)
		v.MaxLen("selection.text", input.Selection.Text, constants.MaxSelectionChars)
	}
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	note, err := handler.service.AutoGenerate(request.Context(), GenerateInput{
		UserID:    userID,
		BookID:    input.BookID,
		ChapterID: optional(input.ChapterID),
		Intent:    policy.Intent(input.Intent),
		Scope:     ContextScope(input.ContextScope),
		Selection: toSelection(input.Selection),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, note)
}

// # Discovery

/*
GET /api/notes/search.

Description: Filtered, optionally full-text, discovery over the caller's
notes. Filters combine with AND; tags must all match.

Request:
  - bookId, chapterId: uuid filters
  - source: manual | auto
  - intent: intent filter
  - tags: comma-separated, all required
  - minConfidence: float
  - createdAfter, createdBefore: RFC 3339
  - q: full-text term, prefix-capable
  - sort: createdAt | confidence | contentLength | relevance
  - order: asc | desc
  - limit, offset: pagination

Response:
  - 200: SearchPage: {items, total, hasMore, metrics.queryMs}
  - 400: Validation
*/
func (handler *Handler) Search(writer http.ResponseWriter, request *http.Request) {
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

	values := request.URL.Query()
	searchQuery := SearchQuery{
		BookID:    values.Get("bookId"),
		ChapterID: values.Get("chapterId"),
		Source:    Source(values.Get("source")),
		Intent:    values.Get("intent"),
		Tags:      query.StringSlice(values.Get("tags")),
		Query:     values.Get("q"),
		Sort:      values.Get("sort"),
		Limit:     params.Limit,
		Offset:    params.Offset,
	}
	if searchQuery.Sort == "" {
		searchQuery.Sort = SortCreatedAt
	}
	searchQuery.Descending = values.Get("order") != "asc"

	v := &validate.Validator{}
	if searchQuery.BookID != "" {
		v.UUID("bookId", searchQuery.BookID)
	}
	if searchQuery.ChapterID != "" {
		v.UUID("chapterId", searchQuery.ChapterID)
	}
	if raw := values.Get("source"); raw != "" && raw != "any" {
		v.OneOf("source", raw, string(SourceManual), string(SourceAuto))
	} else {
		searchQuery.Source = ""
	}
	v.OneOf("sort", searchQuery.Sort, SortCreatedAt, SortConfidence, SortContentLength, SortRelevance)
	if raw := values.Get("minConfidence"); raw != "" {
		floor := query.Float(raw, -1)
		v.Custom("minConfidence", floor < 0 || floor > 1, "Must be a number between 0 and 1")
		searchQuery.MinConfidence = &floor
	}
	if raw := values.Get("createdAfter"); raw != "" {
		ts, parseErr := time.Parse(time.RFC3339, raw)
		v.Custom("createdAfter", parseErr != nil, "Must be an RFC 3339 timestamp")
		searchQuery.CreatedAfter = &ts
	}
	if raw := values.Get("createdBefore"); raw != "" {
		ts, parseErr := time.Parse(time.RFC3339, raw)
		v.Custom("createdBefore", parseErr != nil, "Must be an RFC 3339 timestamp")
		searchQuery.CreatedBefore = &ts
	}
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	page, err := handler.service.Search(request.Context(), userID, searchQuery)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, page)
}

// # Detail & Removal

/*
GET /api/notes/{noteID}.

Response:
  - 200: Note
  - 404: ErrNotFound
*/
func (handler *Handler) GetNote(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	note, err := handler.service.GetNote(request.Context(), userID, requestutil.ID(request, "noteID"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, note)
}

/*
DELETE /api/notes/{noteID}.

Response:
  - 204: Deleted
  - 404: ErrNotFound
*/
func (handler *Handler) DeleteNote(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.DeleteNote(request.Context(), userID, requestutil.ID(request, "noteID")); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// optional maps the empty string to a nil pointer.
func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

// toSelection converts the inbound selection body.
func toSelection(body *selectionBody) *Selection {
	if body == nil {
		return nil
	}
	return &Selection{Text: body.Text, Start: body.Start, End: body.End}
}
