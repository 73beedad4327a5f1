// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package dialog

import (
	"net/http"

	"github.com/taibuivan/flowreader/internal/ai/policy"
	"github.com/taibuivan/flowreader/internal/platform/constants"
	requestutil "github.com/taibuivan/flowreader/internal/platform/request"
	"github.com/taibuivan/flowreader/internal/platform/respond"
	"github.com/taibuivan/flowreader/internal/platform/validate"
	"github.com/taibuivan/flowreader/pkg/pagination"
)

// # Handler Implementation

// Handler implements the HTTP layer for the reading companion.
type Handler struct {
	service *Service
}

// NewHandler constructs a new dialog [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// chatRequest defines the inbound JSON schema for a dialog turn.
type chatRequest struct {
	BookID    string `json:"bookId"`
	Query     string `json:"query"`
	Intent    string `json:"intent"`
	Selection string `json:"selection,omitempty"`
}

/*
POST /api/chat/stream.

Description: Runs one dialog turn and streams the reply as Server-Sent
Events. Validation and readiness failures are rejected as plain JSON before
the stream opens; anything later arrives as an error event.

Request:
  - body: chatRequest

Response:
  - 200: text/event-stream: session, sources, token*, usage, done|error
  - 400: Validation: Bad intent, missing query, oversized fields
  - 404: ErrNotFound: Book absent or not owned by the caller
  - 409: NOT_READY: Book still processing
*/
func (handler *Handler) StreamChat(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input chatRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	v := &validate.Validator{}
	v.Required("bookId", input.BookID)
	v.UUID("bookId", input.BookID)
	v.Required("query", input.Query)
	v.MaxLen("query", input.Query, constants.MaxQueryChars)
	v.MaxLen("selection", input.Selection, constants.MaxSelectionChars)
	v.OneOf("intent", input.Intent, policy.DialogIntents()...)
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.EnsureReady(request.Context(), userID, input.BookID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	stream, err := NewStreamWriter(writer)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.service.StreamChat(request.Context(), ChatInput{
		UserID:    userID,
		BookID:    input.BookID,
		Intent:    policy.Intent(input.Intent),
		Query:     input.Query,
		Selection: input.Selection,
	}, stream)
}

/*
GET /api/dialog/history.

Description: Returns a book's dialog history, oldest first, including
incomplete turns.

Request:
  - bookId: uuid
  - limit: int (1..100)
  - offset: int

Response:
  - 200: {messages, pagination}: Paginated history
  - 400: Validation: Missing or malformed bookId
  - 404: ErrNotFound
*/
func (handler *Handler) History(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	bookID := request.URL.Query().Get("bookId")
	v := &validate.Validator{}
	v.Required("bookId", bookID)
	v.UUID("bookId", bookID)
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	params, err := pagination.FromRequest(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	messages, total, err := handler.service.History(request.Context(), userID, bookID, params.Limit, params.Offset)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	if messages == nil {
		messages = []*Message{}
	}

	respond.OK(writer, map[string]any{
		constants.FieldMessages:   messages,
		constants.FieldPagination: pagination.NewMeta(params, len(messages), total),
	})
}
