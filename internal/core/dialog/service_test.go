// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package dialog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/flowreader/internal/ai/llm"
	"github.com/taibuivan/flowreader/internal/ai/policy"
	"github.com/taibuivan/flowreader/internal/ai/respcache"
	"github.com/taibuivan/flowreader/internal/ai/retrieval"
	"github.com/taibuivan/flowreader/internal/core/book"
	"github.com/taibuivan/flowreader/internal/platform/apperr"
)

// # Test Doubles

type fakeDialogStore struct {
	appended []*Message
	turns    []*Message
}

func (store *fakeDialogStore) AppendMessage(_ context.Context, message *Message) error {
	store.appended = append(store.appended, message)
	return nil
}

func (store *fakeDialogStore) History(_ context.Context, _, _ string, _, _ int) ([]*Message, int, error) {
	return store.appended, len(store.appended), nil
}

func (store *fakeDialogStore) RecentTurns(_ context.Context, _, _ string, _ int) ([]*Message, error) {
	return store.turns, nil
}

type fakeBookGate struct {
	status book.Status
	err    error
}

func (gate *fakeBookGate) GetBook(_ context.Context, _, bookID string) (*book.Book, error) {
	if gate.err != nil {
		return nil, gate.err
	}
	return &book.Book{ID: bookID, Status: gate.status}, nil
}

type fakeQueryEmbedder struct{}

func (fakeQueryEmbedder) EmbedOne(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type fakeRetriever struct {
	result retrieval.Result
}

func (retriever *fakeRetriever) Retrieve(_ context.Context, _ string, _ []float32) (retrieval.Result, error) {
	return retriever.result, nil
}

type fakeCompleter struct {
	tokens  []string
	usage   llm.Usage
	err     error
	calls   int
	lastReq llm.ChatRequest
}

func (completer *fakeCompleter) Stream(_ context.Context, request llm.ChatRequest, onToken llm.TokenFunc) (string, llm.Usage, error) {
	completer.calls++
	completer.lastReq = request

	var builder strings.Builder
	for _, token := range completer.tokens {
		if err := onToken(token); err != nil {
			return builder.String(), completer.usage, err
		}
		builder.WriteString(token)
	}
	if completer.err != nil {
		return builder.String(), completer.usage, completer.err
	}
	return builder.String(), completer.usage, nil
}

// # SSE Decoding

type sseFrame struct {
	Event string
	Data  string
}

func decodeFrames(t *testing.T, body string) []sseFrame {
	t.Helper()

	var frames []sseFrame
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		var frame sseFrame
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				frame.Event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				frame.Data = strings.TrimPrefix(line, "data: ")
			}
		}
		require.NotEmpty(t, frame.Event, "frame without event name: %q", block)
		frames = append(frames, frame)
	}
	return frames
}

func eventNames(frames []sseFrame) []string {
	names := make([]string, len(frames))
	for i, frame := range frames {
		names[i] = frame.Event
	}
	return names
}

// # Fixtures

var testPassages = []retrieval.Passage{
	{ChapterIdx: 0, ChapterTitle: "Chapter One", Content: "Call me Ishmael.", Similarity: 0.91},
}

func newTestSetup(completer *fakeCompleter) (*Service, *fakeDialogStore, *respcache.Cache) {
	store := &fakeDialogStore{}
	cache := respcache.New(false)
	service := NewService(
		store,
		&fakeBookGate{status: book.StatusReady},
		fakeQueryEmbedder{},
		&fakeRetriever{result: retrieval.Result{Passages: testPassages, ContextSignature: "sig-1"}},
		completer,
		cache,
	)
	return service, store, cache
}

func testInput() ChatInput {
	return ChatInput{
		UserID: "user-1",
		BookID: "book-1",
		Intent: policy.IntentExplain,
		Query:  "Who is Ishmael?",
	}
}

func runTurn(t *testing.T, service *Service, input ChatInput) []sseFrame {
	t.Helper()

	recorder := httptest.NewRecorder()
	stream, err := NewStreamWriter(recorder)
	require.NoError(t, err)

	service.StreamChat(context.Background(), input, stream)
	return decodeFrames(t, recorder.Body.String())
}

// # Tests

func TestStreamChatEventOrder(t *testing.T) {
	completer := &fakeCompleter{
		tokens: []string{"Ishmael ", "is ", "the narrator."},
		usage:  llm.Usage{PromptTokens: 120, CompletionTokens: 9, CostMicros: 42},
	}
	service, store, _ := newTestSetup(completer)

	frames := runTurn(t, service, testInput())

	assert.Equal(t,
		[]string{"session", "sources", "token", "token", "token", "usage", "done"},
		eventNames(frames),
	)

	var sources []SourceRef
	require.NoError(t, json.Unmarshal([]byte(frames[1].Data), &sources))
	require.Len(t, sources, 1)
	assert.Equal(t, "Chapter One", sources[0].ChapterTitle)

	var usage UsageEvent
	require.NoError(t, json.Unmarshal([]byte(frames[5].Data), &usage))
	assert.Equal(t, int64(120), usage.PromptTokens)
	assert.Equal(t, int64(42), usage.CostMicros)
	assert.False(t, usage.Cached)

	// Both turns persisted, the assistant's marked complete.
	require.Len(t, store.appended, 2)
	assert.Equal(t, RoleUser, store.appended[0].Role)
	assert.Equal(t, RoleAssistant, store.appended[1].Role)
	assert.True(t, store.appended[1].Completed)
	assert.Equal(t, "Ishmael is the narrator.", store.appended[1].Content)

	// The session event named the persisted assistant message.
	var session SessionEvent
	require.NoError(t, json.Unmarshal([]byte(frames[0].Data), &session))
	assert.Equal(t, session.MessageID, store.appended[1].ID)
}

func TestStreamChatGroundsThePrompt(t *testing.T) {
	completer := &fakeCompleter{tokens: []string{"ok"}}
	service, store, _ := newTestSetup(completer)
	store.turns = []*Message{
		{Role: RoleUser, Content: "Earlier question", Completed: true},
		{Role: RoleAssistant, Content: "Earlier answer", Completed: true},
	}

	runTurn(t, service, testInput())

	require.Equal(t, 1, completer.calls)
	assert.Contains(t, completer.lastReq.System, "Call me Ishmael.")
	assert.Equal(t, policy.TierPrimary, completer.lastReq.Tier)

	// History window precedes the current question.
	require.Len(t, completer.lastReq.Messages, 3)
	assert.Equal(t, llm.RoleAssistant, completer.lastReq.Messages[1].Role)
	assert.Equal(t, "Who is Ishmael?", completer.lastReq.Messages[2].Content)
}

func TestStreamChatExactCacheHit(t *testing.T) {
	completer := &fakeCompleter{tokens: []string{"fresh"}}
	service, store, cache := newTestSetup(completer)

	cache.Put(respcache.Key{
		UserID:           "user-1",
		BookID:           "book-1",
		Intent:           policy.IntentExplain,
		Query:            "Who is Ishmael?",
		Tier:             policy.TierPrimary,
		ContextSignature: "sig-1",
	}, respcache.Entry{Reply: "The narrator.", Passages: testPassages, QueryVector: []float32{1, 0}})

	frames := runTurn(t, service, testInput())

	assert.Equal(t,
		[]string{"session", "sources", "token", "usage", "done"},
		eventNames(frames),
	)
	assert.Zero(t, completer.calls, "cache hit must not call the model")

	var token TokenEvent
	require.NoError(t, json.Unmarshal([]byte(frames[2].Data), &token))
	assert.Equal(t, "The narrator.", token.Text)

	var usage UsageEvent
	require.NoError(t, json.Unmarshal([]byte(frames[3].Data), &usage))
	assert.True(t, usage.Cached)
	assert.Equal(t, "exact", usage.CacheSource)

	// Replayed turns still land in history.
	require.Len(t, store.appended, 2)
	assert.True(t, store.appended[1].Completed)
}

func TestStreamChatMidStreamFailure(t *testing.T) {
	completer := &fakeCompleter{
		tokens: []string{"partial "},
		err:    errors.New("upstream hiccup"),
	}
	service, store, cache := newTestSetup(completer)

	frames := runTurn(t, service, testInput())

	assert.Equal(t,
		[]string{"session", "sources", "token", "error"},
		eventNames(frames),
	)

	// The truncated turn is kept, marked incomplete, and never cached.
	require.Len(t, store.appended, 2)
	assert.False(t, store.appended[1].Completed)
	assert.Equal(t, "partial ", store.appended[1].Content)

	_, _, hit := cache.Get(respcache.Key{
		UserID:           "user-1",
		BookID:           "book-1",
		Intent:           policy.IntentExplain,
		Query:            "Who is Ishmael?",
		Tier:             policy.TierPrimary,
		ContextSignature: "sig-1",
	}, []float32{1, 0})
	assert.False(t, hit)
}

func TestStreamChatCompletedReplyIsCached(t *testing.T) {
	completer := &fakeCompleter{tokens: []string{strings.Repeat("Ishmael narrates the whole voyage. ", 8)}}
	service, _, _ := newTestSetup(completer)

	input := testInput()
	runTurn(t, service, input)
	frames := runTurn(t, service, input)

	assert.Equal(t, 1, completer.calls, "second identical turn must replay")

	var usage UsageEvent
	require.NoError(t, json.Unmarshal([]byte(frames[3].Data), &usage))
	assert.True(t, usage.Cached)
}

func TestStreamChatThinReplyIsNotCached(t *testing.T) {
	// A terse answer over partial grounding scores under the gate; the next
	// identical turn rebuilds instead of replaying it.
	completer := &fakeCompleter{tokens: []string{"yes"}}
	service, _, cache := newTestSetup(completer)

	input := testInput()
	runTurn(t, service, input)
	runTurn(t, service, input)

	assert.Equal(t, 2, completer.calls)

	_, _, hit := cache.Get(respcache.Key{
		UserID:           "user-1",
		BookID:           "book-1",
		Intent:           policy.IntentExplain,
		Query:            "Who is Ishmael?",
		Tier:             policy.TierPrimary,
		ContextSignature: "sig-1",
	}, []float32{1, 0})
	assert.False(t, hit)
}

func TestStreamChatStripsMarkupBeforePersisting(t *testing.T) {
	completer := &fakeCompleter{tokens: []string{"ok"}}
	service, store, _ := newTestSetup(completer)

	input := testInput()
	input.Query = `Who is Ishmael?<script>alert("x")</script>`
	input.Selection = `<img onerror="steal()">Call me Ishmael.`
	runTurn(t, service, input)

	// The persisted user turn and the prompt both carry plain text only.
	require.NotEmpty(t, store.appended)
	userTurn := store.appended[0].Content
	assert.NotContains(t, userTurn, "<script>")
	assert.NotContains(t, userTurn, "onerror")
	assert.Contains(t, userTurn, "Who is Ishmael?")
	assert.Contains(t, userTurn, "Call me Ishmael.")

	require.Equal(t, 1, completer.calls)
	for _, message := range completer.lastReq.Messages {
		assert.NotContains(t, message.Content, "<script>")
	}
}

func TestEnsureReady(t *testing.T) {
	tests := []struct {
		name     string
		gate     *fakeBookGate
		wantCode string
	}{
		{
			name: "ready book passes",
			gate: &fakeBookGate{status: book.StatusReady},
		},
		{
			name:     "processing book is rejected",
			gate:     &fakeBookGate{status: book.StatusProcessing},
			wantCode: "NOT_READY",
		},
		{
			name:     "foreign book is not found",
			gate:     &fakeBookGate{err: apperr.NotFound("Book not found")},
			wantCode: "NOT_FOUND",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			service := NewService(&fakeDialogStore{}, tc.gate, fakeQueryEmbedder{}, &fakeRetriever{}, &fakeCompleter{}, respcache.New(true))

			err := service.EnsureReady(context.Background(), "user-1", "book-1")
			if tc.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			appError := apperr.As(err)
			require.NotNil(t, appError)
			assert.Equal(t, tc.wantCode, appError.Code)
		})
	}
}

func TestStreamChatNonStreamingIntentRejected(t *testing.T) {
	service, store, _ := newTestSetup(&fakeCompleter{})

	input := testInput()
	input.Intent = policy.IntentSummarize
	frames := runTurn(t, service, input)

	require.Len(t, frames, 1)
	assert.Equal(t, "error", frames[0].Event)
	assert.Empty(t, store.appended)
}
