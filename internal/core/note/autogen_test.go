// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package note

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/flowreader/internal/ai/llm"
	"github.com/taibuivan/flowreader/internal/ai/policy"
	"github.com/taibuivan/flowreader/internal/ai/retrieval"
	"github.com/taibuivan/flowreader/internal/core/dialog"
)

// # Test Doubles

type fakeDialogReader struct {
	turns []*dialog.Message
}

func (reader *fakeDialogReader) RecentTurns(_ context.Context, _, _ string, _ int) ([]*dialog.Message, error) {
	return reader.turns, nil
}

type fakeChapterSource struct {
	content string
}

func (source *fakeChapterSource) ChapterContent(_ context.Context, _, _ string) (string, error) {
	return source.content, nil
}

type fakeNoteEmbedder struct{}

func (fakeNoteEmbedder) EmbedOne(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type fakeNoteRetriever struct {
	passages []retrieval.Passage
}

func (retriever *fakeNoteRetriever) Retrieve(_ context.Context, _ string, _ []float32) (retrieval.Result, error) {
	return retrieval.Result{Passages: retriever.passages, ContextSignature: "sig"}, nil
}

// fakeNoteCompleter replies with a fixed-length body and records the tiers
// it was asked for, so tests can observe routing and fallback hops.
type fakeNoteCompleter struct {
	replyLen int
	tiers    []policy.Tier
}

func (completer *fakeNoteCompleter) Complete(_ context.Context, request llm.ChatRequest) (string, llm.Usage, error) {
	completer.tiers = append(completer.tiers, request.Tier)
	return strings.Repeat("a", completer.replyLen), llm.Usage{PromptTokens: 10, CompletionTokens: 5}, nil
}

func fullGrounding() []retrieval.Passage {
	return []retrieval.Passage{
		{ChapterTitle: "One", Content: "p1", Similarity: 0.9},
		{ChapterTitle: "Two", Content: "p2", Similarity: 0.85},
		{ChapterTitle: "Three", Content: "p3", Similarity: 0.8},
	}
}

func newGenerator(completer *fakeNoteCompleter, retriever *fakeNoteRetriever, dialogs *fakeDialogReader) *Generator {
	if dialogs == nil {
		dialogs = &fakeDialogReader{turns: []*dialog.Message{
			{Role: dialog.RoleUser, Content: "What happens in chapter one?", Completed: true},
			{Role: dialog.RoleAssistant, Content: "The voyage begins.", Completed: true},
		}}
	}
	return NewGenerator(dialogs, &fakeChapterSource{content: "chapter text"}, fakeNoteEmbedder{}, retriever, completer)
}

// # Routing

func TestRouting(t *testing.T) {
	selection := &Selection{Text: "a passage"}

	tests := []struct {
		name  string
		input GenerateInput
		want  GenerationMethod
	}{
		{
			name:  "enhance with selection",
			input: GenerateInput{Intent: policy.IntentEnhance, Selection: selection},
			want:  MethodKnowledgeEnhancement,
		},
		{
			name:  "recent dialog scope",
			input: GenerateInput{Intent: policy.IntentAnalyze, Scope: ScopeRecentDialog, Selection: selection},
			want:  MethodDialogSummary,
		},
		{
			name:  "no selection defaults to summary",
			input: GenerateInput{Intent: policy.IntentSummarize},
			want:  MethodDialogSummary,
		},
		{
			name:  "selection without enhance",
			input: GenerateInput{Intent: policy.IntentAnalyze, Selection: selection},
			want:  MethodContextAnalysis,
		},
		{
			name:  "chapter scope without selection",
			input: GenerateInput{Intent: policy.IntentAnalyze, Scope: ScopeChapter},
			want:  MethodContextAnalysis,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, route(tc.input))
		})
	}
}

// # Generation

func TestGenerateEnhancementPassesGate(t *testing.T) {
	completer := &fakeNoteCompleter{replyLen: 500}
	generator := newGenerator(completer, &fakeNoteRetriever{passages: fullGrounding()}, nil)

	note, err := generator.Generate(context.Background(), GenerateInput{
		UserID:    "user-1",
		BookID:    "book-1",
		Intent:    policy.IntentEnhance,
		Selection: &Selection{Text: "Call me Ishmael."},
	})
	require.NoError(t, err)

	assert.Equal(t, SourceAuto, note.Source)
	assert.Equal(t, MethodKnowledgeEnhancement, note.Meta.GenerationMethod)
	assert.GreaterOrEqual(t, note.Meta.Confidence, 0.6)
	assert.False(t, note.HasTag("fallback"))
	assert.True(t, note.HasTag("auto_generated"))
	assert.True(t, note.HasTag("intent:enhance"))
	assert.True(t, note.HasTag("method:knowledge_enhancement"))

	// Enhancement runs on the primary tier, once.
	require.Len(t, completer.tiers, 1)
	assert.Equal(t, policy.TierPrimary, completer.tiers[0])
}

func TestGenerateFallsBackOnLowConfidence(t *testing.T) {
	// A terse reply over empty grounding scores under the gate; the
	// enhancement attempt must be retried as context analysis.
	completer := &fakeNoteCompleter{replyLen: 30}
	generator := newGenerator(completer, &fakeNoteRetriever{}, nil)

	note, err := generator.Generate(context.Background(), GenerateInput{
		UserID:    "user-1",
		BookID:    "book-1",
		Intent:    policy.IntentEnhance,
		Selection: &Selection{Text: "q"},
	})
	require.NoError(t, err)

	require.Len(t, completer.tiers, 2, "one fallback hop expected")
	assert.Equal(t, MethodContextAnalysis, note.Meta.GenerationMethod)
	assert.True(t, note.HasTag("method:context_analysis"))

	// Still under the gate after the hop: flagged, not rejected.
	assert.Less(t, note.Meta.Confidence, 0.6)
	assert.True(t, note.HasTag("fallback"))
	assert.Contains(t, note.Meta.ProcessingInfo["warning"], "below gate")
}

func TestGenerateFallbackRecovers(t *testing.T) {
	// The retry sees full grounding and a substantial reply, clearing the
	// gate on the second attempt.
	retriever := &fakeNoteRetriever{}
	completer := &recoveringCompleter{}
	generator := newGenerator(&completer.fakeNoteCompleter, retriever, nil)
	generator.completer = completer

	note, err := generator.Generate(context.Background(), GenerateInput{
		UserID:    "user-1",
		BookID:    "book-1",
		Intent:    policy.IntentEnhance,
		Selection: &Selection{Text: "q"},
	})
	require.NoError(t, err)

	require.Len(t, completer.tiers, 2)
	assert.Equal(t, MethodContextAnalysis, note.Meta.GenerationMethod)
	assert.GreaterOrEqual(t, note.Meta.Confidence, 0.6)
	assert.False(t, note.HasTag("fallback"))
}

// recoveringCompleter answers tersely first, then substantially.
type recoveringCompleter struct {
	fakeNoteCompleter
}

func (completer *recoveringCompleter) Complete(ctx context.Context, request llm.ChatRequest) (string, llm.Usage, error) {
	length := 20
	if len(completer.tiers) > 0 {
		length = 1000
	}
	completer.replyLen = length
	return completer.fakeNoteCompleter.Complete(ctx, request)
}

func TestGenerateDialogSummary(t *testing.T) {
	completer := &fakeNoteCompleter{replyLen: 400}
	dialogs := &fakeDialogReader{turns: []*dialog.Message{
		{Role: dialog.RoleUser, Content: "Q1", Completed: true},
		{Role: dialog.RoleAssistant, Content: "A1", Completed: true},
		{Role: dialog.RoleUser, Content: "Q2", Completed: true},
		{Role: dialog.RoleAssistant, Content: "A2", Completed: true},
		{Role: dialog.RoleUser, Content: "Q3", Completed: true},
		{Role: dialog.RoleAssistant, Content: "A3", Completed: true},
		{Role: dialog.RoleUser, Content: "Q4", Completed: true},
		{Role: dialog.RoleAssistant, Content: "A4", Completed: true},
		{Role: dialog.RoleUser, Content: "Q5", Completed: true},
		{Role: dialog.RoleAssistant, Content: "A5", Completed: true},
	}}
	generator := newGenerator(completer, &fakeNoteRetriever{}, dialogs)

	note, err := generator.Generate(context.Background(), GenerateInput{
		UserID: "user-1",
		BookID: "book-1",
		Intent: policy.IntentSummarize,
		Scope:  ScopeRecentDialog,
	})
	require.NoError(t, err)

	assert.Equal(t, MethodDialogSummary, note.Meta.GenerationMethod)
	assert.GreaterOrEqual(t, note.Meta.Confidence, 0.6)

	// Summaries route to the economy tier.
	require.Len(t, completer.tiers, 1)
	assert.Equal(t, policy.TierEconomy, completer.tiers[0])
}

func TestGenerateSummaryWithoutHistoryFails(t *testing.T) {
	generator := newGenerator(&fakeNoteCompleter{replyLen: 100}, &fakeNoteRetriever{}, &fakeDialogReader{})

	_, err := generator.Generate(context.Background(), GenerateInput{
		UserID: "user-1",
		BookID: "book-1",
		Intent: policy.IntentSummarize,
		Scope:  ScopeRecentDialog,
	})
	require.Error(t, err)
}

// # Scoring

func TestScore(t *testing.T) {
	long := strings.Repeat("a", 400)

	tests := []struct {
		name     string
		content  string
		coverage float64
		atLeast  float64
		below    float64
	}{
		{name: "full signals", content: long, coverage: 1, atLeast: 0.99, below: 1.01},
		{name: "thin everything", content: "ok", coverage: 0, atLeast: 0.25, below: 0.30},
		{name: "long but ungrounded", content: long, coverage: 0, atLeast: 0.69, below: 0.71},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := score(tc.content, tc.coverage, llm.Usage{})
			assert.GreaterOrEqual(t, d.confidence, tc.atLeast)
			assert.Less(t, d.confidence, tc.below)
		})
	}
}
