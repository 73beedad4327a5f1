// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package dialog

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/taibuivan/flowreader/internal/ai/llm"
	"github.com/taibuivan/flowreader/internal/ai/policy"
	"github.com/taibuivan/flowreader/internal/ai/respcache"
	"github.com/taibuivan/flowreader/internal/ai/retrieval"
	"github.com/taibuivan/flowreader/internal/core/book"
	"github.com/taibuivan/flowreader/internal/platform/apperr"
	"github.com/taibuivan/flowreader/internal/platform/constants"
	"github.com/taibuivan/flowreader/internal/platform/ctxutil"
	"github.com/taibuivan/flowreader/internal/platform/metrics"
	"github.com/taibuivan/flowreader/internal/platform/validate"
	"github.com/taibuivan/flowreader/pkg/uuid"
)

// # Dependencies

// BookGate exposes the library lookup the dialog needs.
type BookGate interface {
	GetBook(ctx context.Context, ownerID, bookID string) (*book.Book, error)
}

// Embedder embeds the reader's query for retrieval and cache matching.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Retriever selects grounding passages.
type Retriever interface {
	Retrieve(ctx context.Context, bookID string, queryVector []float32) (retrieval.Result, error)
}

// Completer streams a model reply.
type Completer interface {
	Stream(ctx context.Context, request llm.ChatRequest, onToken llm.TokenFunc) (string, llm.Usage, error)
}

// # Service Layer

// ChatInput is one validated dialog request.
type ChatInput struct {
	UserID    string
	BookID    string
	Intent    policy.Intent
	Query     string
	Selection string
}

// Service orchestrates a dialog turn end to end.
type Service struct {
	store     Store
	books     BookGate
	embedder  Embedder
	retriever Retriever
	completer Completer
	cache     *respcache.Cache
}

// NewService constructs the dialog [Service].
func NewService(store Store, books BookGate, embedder Embedder, retriever Retriever, completer Completer, cache *respcache.Cache) *Service {
	return &Service{
		store:     store,
		books:     books,
		embedder:  embedder,
		retriever: retriever,
		completer: completer,
		cache:     cache,
	}
}

// EnsureReady verifies the book belongs to the caller and is fully
// processed. Called before the response is committed to streaming.
func (service *Service) EnsureReady(ctx context.Context, userID, bookID string) error {
	bookRecord, err := service.books.GetBook(ctx, userID, bookID)
	if err != nil {
		return err
	}
	if bookRecord.Status != book.StatusReady {
		return apperr.NotReady("The book is still being processed")
	}
	return nil
}

/*
StreamChat runs one dialog turn over an already-opened SSE stream.

Description: The event order is session, sources, token*, usage, then done
or error. Cache hits replay without a model call; concurrent identical
requests collapse into one build, with followers replaying the shared
reply. Every assistant turn persists to history; turns cut short by errors
or disconnects persist with completed=false.

Errors are reported on the stream, never returned: the HTTP status is
already committed.
*/
func (service *Service) StreamChat(ctx context.Context, input ChatInput, stream *StreamWriter) {
	logger := ctxutil.GetLogger(ctx)
	started := time.Now()

	// Both fields are user text that persists into history and feeds the
	// prompt; strip markup before either happens. Sanitizing up front also
	// keeps the cache fingerprint aligned with what was actually asked.
	input.Query = validate.Sanitize(input.Query)
	input.Selection = validate.Sanitize(input.Selection)

	directive, ok := policy.For(input.Intent)
	if !ok || !directive.Streaming {
		// The handler validates intents; reaching here is a routing bug.
		_ = stream.Send(EventError, ErrorEvent{Code: "VALIDATION_ERROR", Message: "Unsupported dialog intent"})
		return
	}

	// ── 1. Record the user's turn ─────────────────────────────────────────
	userMessage := &Message{
		ID:          uuid.New(),
		BookID:      input.BookID,
		OwnerUserID: input.UserID,
		Role:        RoleUser,
		Content:     composeUserContent(input),
		Intent:      input.Intent,
		Completed:   true,
	}
	if err := service.store.AppendMessage(ctx, userMessage); err != nil {
		service.streamError(stream, err)
		return
	}

	assistantID := uuid.New()
	if err := stream.Send(EventSession, SessionEvent{MessageID: assistantID}); err != nil {
		return
	}

	// ── 2. Ground the turn ────────────────────────────────────────────────
	queryVector, err := service.embedder.EmbedOne(ctx, composeUserContent(input))
	if err != nil {
		service.streamError(stream, err)
		return
	}

	grounding, err := service.retriever.Retrieve(ctx, input.BookID, queryVector)
	if err != nil {
		service.streamError(stream, err)
		return
	}

	if err := stream.Send(EventSources, sourceRefs(grounding.Passages)); err != nil {
		return
	}

	// ── 3. Serve from cache when possible ─────────────────────────────────
	cacheKey := respcache.Key{
		UserID:           input.UserID,
		BookID:           input.BookID,
		Intent:           input.Intent,
		Query:            input.Query,
		Tier:             directive.Tier,
		ContextSignature: grounding.ContextSignature,
	}

	if entry, source, hit := service.cache.Get(cacheKey, queryVector); hit {
		service.replay(ctx, stream, input, assistantID, entry.Reply, UsageEvent{
			Cached:      true,
			CacheSource: string(source),
		}, started)
		return
	}

	// ── 4. Build the reply, collapsing concurrent identical builds ────────
	chatRequest := llm.ChatRequest{
		Tier:            directive.Tier,
		System:          composeSystemPrompt(directive, grounding.Passages),
		MaxOutputTokens: directive.MaxOutputTokens,
	}

	turns, err := service.store.RecentTurns(ctx, input.UserID, input.BookID, constants.DialogSummaryWindow)
	if err != nil {
		service.streamError(stream, err)
		return
	}
	for _, turn := range turns {
		role := llm.RoleUser
		if turn.Role == RoleAssistant {
			role = llm.RoleAssistant
		}
		chatRequest.Messages = append(chatRequest.Messages, llm.Message{Role: role, Content: turn.Content})
	}
	chatRequest.Messages = append(chatRequest.Messages, llm.Message{Role: llm.RoleUser, Content: userMessage.Content})

	var (
		leader  bool
		partial string
		usage   llm.Usage
	)

	entry, _, buildErr := service.cache.Do(cacheKey.Fingerprint(), func() (respcache.Entry, error) {
		leader = true

		reply, streamUsage, streamErr := service.completer.Stream(ctx, chatRequest, func(token string) error {
			return stream.Send(EventToken, TokenEvent{Text: token})
		})
		partial, usage = reply, streamUsage
		if streamErr != nil {
			return respcache.Entry{}, streamErr
		}

		built := respcache.Entry{
			Reply:       reply,
			Passages:    grounding.Passages,
			QueryVector: queryVector,
		}
		// Only replies worth replaying are cached; a thin or poorly
		// grounded answer gets rebuilt for the next asker.
		if replyQuality(reply, len(grounding.Passages)) >= constants.ConfidenceGate {
			service.cache.Put(cacheKey, built)
		}
		return built, nil
	})

	if buildErr != nil {
		// A truncated reply is still part of the history.
		if leader && partial != "" {
			service.persistAssistant(ctx, input, assistantID, partial, usage, started, false)
		}
		if ctx.Err() == nil {
			service.streamError(stream, buildErr)
		}
		logger.WarnContext(ctx, "dialog_turn_failed",
			slog.String("book_id", input.BookID),
			slog.Bool("partial", partial != ""),
		)
		return
	}

	if !leader {
		// A concurrent identical request built the reply; replay it.
		service.replay(ctx, stream, input, assistantID, entry.Reply, UsageEvent{
			Cached:      true,
			CacheSource: "inflight",
		}, started)
		return
	}

	// ── 5. Close out the leader's stream ──────────────────────────────────
	metrics.LLMTokens.WithLabelValues("chat", string(directive.Tier)).Add(float64(usage.PromptTokens + usage.CompletionTokens))
	metrics.LLMCostMicros.WithLabelValues("chat", string(directive.Tier)).Add(float64(usage.CostMicros))

	if err := stream.Send(EventUsage, UsageEvent{
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		CostMicros:       usage.CostMicros,
	}); err == nil {
		_ = stream.Send(EventDone, struct{}{})
	}

	service.persistAssistant(ctx, input, assistantID, entry.Reply, usage, started, true)
}

// replay serves a finished reply (cache or in-flight share) as a single
// token frame followed by usage and done.
func (service *Service) replay(ctx context.Context, stream *StreamWriter, input ChatInput, assistantID, reply string, usage UsageEvent, started time.Time) {
	if err := stream.Send(EventToken, TokenEvent{Text: reply}); err != nil {
		return
	}
	if err := stream.Send(EventUsage, usage); err != nil {
		return
	}
	_ = stream.Send(EventDone, struct{}{})

	service.persistAssistant(ctx, input, assistantID, reply, llm.Usage{}, started, true)
}

// persistAssistant records the assistant's turn, complete or not.
func (service *Service) persistAssistant(ctx context.Context, input ChatInput, assistantID, content string, usage llm.Usage, started time.Time, completed bool) {
	message := &Message{
		ID:          assistantID,
		BookID:      input.BookID,
		OwnerUserID: input.UserID,
		Role:        RoleAssistant,
		Content:     content,
		Intent:      input.Intent,
		Completed:   completed,
		Tokens:      usage.PromptTokens + usage.CompletionTokens,
		CostMicros:  usage.CostMicros,
		LatencyMs:   time.Since(started).Milliseconds(),
	}

	// History persistence must survive a cancelled request context.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := service.store.AppendMessage(persistCtx, message); err != nil {
		ctxutil.GetLogger(ctx).ErrorContext(ctx, "dialog_history_write_failed",
			slog.String("message_id", assistantID),
			slog.Any("error", err),
		)
	}
}

// streamError emits the terminal error event using the apperr taxonomy.
func (service *Service) streamError(stream *StreamWriter, err error) {
	appError := apperr.As(err)
	if appError == nil {
		appError = apperr.Internal(err)
	}
	_ = stream.Send(EventError, ErrorEvent{Code: appError.Code, Message: appError.Message})
}

// History returns a page of a book's dialog after an ownership check.
func (service *Service) History(ctx context.Context, userID, bookID string, limit, offset int) ([]*Message, int, error) {
	if _, err := service.books.GetBook(ctx, userID, bookID); err != nil {
		return nil, 0, err
	}
	return service.store.History(ctx, userID, bookID, limit, offset)
}

// targetReplyChars is where the reply-length signal saturates.
const targetReplyChars = 400

/*
replyQuality scores a completed reply from its observable signals.

Description: Length and grounding coverage mirror the confidence heuristic
used for auto notes: a short answer over thin passages scores low. The
floor keeps a passage-free factual answer from zeroing out.
*/
func replyQuality(reply string, passages int) float64 {
	coverage := float64(passages) / constants.RetrievalTopKFinal
	if coverage > 1 {
		coverage = 1
	}

	lengthScore := float64(len(reply)) / targetReplyChars
	if lengthScore > 1 {
		lengthScore = 1
	}

	quality := 0.25 + 0.45*lengthScore + 0.30*coverage
	if quality > 1 {
		quality = 1
	}
	return quality
}

// # Prompt Assembly

// composeUserContent merges an optional selection with the query.
func composeUserContent(input ChatInput) string {
	if strings.TrimSpace(input.Selection) == "" {
		return input.Query
	}
	return "Selected passage:\n\"" + input.Selection + "\"\n\n" + input.Query
}

// composeSystemPrompt appends the grounding passages to the intent's prompt.
func composeSystemPrompt(directive policy.Directive, passages []retrieval.Passage) string {
	if len(passages) == 0 {
		return directive.SystemPrompt + "\n\nNo relevant book passages were found for this request."
	}

	var builder strings.Builder
	builder.WriteString(directive.SystemPrompt)
	builder.WriteString("\n\nBook passages:\n")
	for i, passage := range passages {
		builder.WriteString("\n[")
		builder.WriteString(passage.ChapterTitle)
		builder.WriteString("]\n")
		builder.WriteString(passage.Content)
		if i < len(passages)-1 {
			builder.WriteString("\n")
		}
	}
	return builder.String()
}

// sourceRefs projects passages into their client-facing references.
func sourceRefs(passages []retrieval.Passage) []SourceRef {
	refs := make([]SourceRef, len(passages))
	for i, passage := range passages {
		refs[i] = SourceRef{
			ChapterIdx:   passage.ChapterIdx,
			ChapterTitle: passage.ChapterTitle,
			Similarity:   passage.Similarity,
		}
	}
	return refs
}
