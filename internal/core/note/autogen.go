// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package note

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/taibuivan/flowreader/internal/ai/llm"
	"github.com/taibuivan/flowreader/internal/ai/policy"
	"github.com/taibuivan/flowreader/internal/ai/retrieval"
	"github.com/taibuivan/flowreader/internal/core/dialog"
	"github.com/taibuivan/flowreader/internal/platform/apperr"
	"github.com/taibuivan/flowreader/internal/platform/constants"
	"github.com/taibuivan/flowreader/internal/platform/metrics"
)

// # Generator Dependencies

// DialogReader supplies recent conversation turns for summarization.
type DialogReader interface {
	RecentTurns(ctx context.Context, ownerID, bookID string, n int) ([]*dialog.Message, error)
}

// ChapterSource supplies chapter text for chapter-scoped analysis.
type ChapterSource interface {
	ChapterContent(ctx context.Context, ownerID, chapterID string) (string, error)
}

// Embedder embeds selection text for retrieval grounding.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Retriever selects grounding passages for the analyzed text.
type Retriever interface {
	Retrieve(ctx context.Context, bookID string, queryVector []float32) (retrieval.Result, error)
}

// Completer produces a non-streaming model reply.
type Completer interface {
	Complete(ctx context.Context, request llm.ChatRequest) (string, llm.Usage, error)
}

// # Auto Generation

// GenerateInput is one validated auto-note request.
type GenerateInput struct {
	UserID    string
	BookID    string
	ChapterID *string
	Intent    policy.Intent
	Scope     ContextScope
	Selection *Selection
}

// Generator produces auto notes by composing the AI pipeline. It routes a
// request to a generation method, scores the draft, and retries once on a
// simpler method when the score misses the confidence gate.
type Generator struct {
	dialogs   DialogReader
	chapters  ChapterSource
	embedder  Embedder
	retriever Retriever
	completer Completer
}

// NewGenerator constructs the auto-note [Generator].
func NewGenerator(dialogs DialogReader, chapters ChapterSource, embedder Embedder, retriever Retriever, completer Completer) *Generator {
	return &Generator{
		dialogs:   dialogs,
		chapters:  chapters,
		embedder:  embedder,
		retriever: retriever,
		completer: completer,
	}
}

/*
Generate builds one unpersisted auto note.

Description: Routing, in priority order: an enhance intent with a selection
becomes knowledge enhancement; a recent-dialog scope or a missing selection
becomes a dialog summary; anything else is context analysis of the
selection (or the chapter, when the scope says so). A draft scoring under
the confidence gate is retried once on the next simpler method; a second
miss is persisted anyway, flagged with a fallback tag and a meta warning.
*/
func (generator *Generator) Generate(ctx context.Context, input GenerateInput) (*Note, error) {
	started := time.Now()

	method := route(input)
	draft, err := generator.run(ctx, input, method)
	if err != nil {
		return nil, err
	}

	if draft.confidence < constants.ConfidenceGate {
		if next, ok := fallbackMethod(method); ok {
			retried, retryErr := generator.run(ctx, input, next)
			// The original draft survives a failed retry.
			if retryErr == nil {
				draft = retried
				method = next
			}
		}
	}

	note := &Note{
		BookID:    input.BookID,
		ChapterID: input.ChapterID,
		Selection: input.Selection,
		Content:   draft.content,
		Source:    SourceAuto,
		Tags: []string{
			"auto_generated",
			"intent:" + string(input.Intent),
			"method:" + string(method),
		},
		Meta: Meta{
			Intent:           input.Intent,
			GenerationMethod: method,
			Confidence:       draft.confidence,
			QualityScore:     qualityScore(draft, time.Since(started)),
			ProcessingInfo: map[string]string{
				"latencyMs":        strconv.FormatInt(time.Since(started).Milliseconds(), 10),
				"promptTokens":     strconv.FormatInt(draft.usage.PromptTokens, 10),
				"completionTokens": strconv.FormatInt(draft.usage.CompletionTokens, 10),
			},
		},
	}
	if input.ChapterID != nil {
		note.Tags = append(note.Tags, "chapter:"+*input.ChapterID)
	}

	if draft.confidence < constants.ConfidenceGate {
		note.Tags = append(note.Tags, "fallback")
		note.Meta.ProcessingInfo["warning"] = fmt.Sprintf(
			"confidence %.2f below gate %.2f after fallback", draft.confidence, constants.ConfidenceGate)
	}

	return note, nil
}

// route picks the generation method for one request.
func route(input GenerateInput) GenerationMethod {
	switch {
	case input.Intent == policy.IntentEnhance && input.Selection != nil:
		return MethodKnowledgeEnhancement
	case input.Scope == ScopeRecentDialog || input.Selection == nil && input.Scope != ScopeChapter:
		return MethodDialogSummary
	default:
		return MethodContextAnalysis
	}
}

// fallbackMethod returns the next simpler method, enhancement → analysis →
// summary. Summaries have nowhere simpler to go.
func fallbackMethod(method GenerationMethod) (GenerationMethod, bool) {
	switch method {
	case MethodKnowledgeEnhancement:
		return MethodContextAnalysis, true
	case MethodContextAnalysis:
		return MethodDialogSummary, true
	}
	return "", false
}

// draft is one scored generation attempt.
type draft struct {
	content    string
	confidence float64
	coverage   float64
	usage      llm.Usage
}

// run executes one generation method and scores its output.
func (generator *Generator) run(ctx context.Context, input GenerateInput, method GenerationMethod) (draft, error) {
	switch method {
	case MethodKnowledgeEnhancement:
		return generator.enhance(ctx, input)
	case MethodContextAnalysis:
		return generator.analyze(ctx, input)
	case MethodDialogSummary:
		return generator.summarize(ctx, input)
	}
	return draft{}, apperr.Internal(fmt.Errorf("note: unknown generation method %q", method))
}

// enhance enriches the reader's selection with retrieved book context.
func (generator *Generator) enhance(ctx context.Context, input GenerateInput) (draft, error) {
	return generator.grounded(ctx, input, policy.IntentEnhance, input.Selection.Text)
}

// analyze examines the selection, or the chapter when no selection exists.
func (generator *Generator) analyze(ctx context.Context, input GenerateInput) (draft, error) {
	subject := ""
	switch {
	case input.Selection != nil:
		subject = input.Selection.Text
	case input.ChapterID != nil:
		content, err := generator.chapters.ChapterContent(ctx, input.UserID, *input.ChapterID)
		if err != nil {
			return draft{}, err
		}
		subject = clip(content, constants.MaxSelectionChars)
	default:
		// Nothing to analyze; the summary path handles this request.
		return generator.summarize(ctx, input)
	}
	return generator.grounded(ctx, input, policy.IntentAnalyze, subject)
}

// grounded runs a retrieval-backed completion over the subject text.
func (generator *Generator) grounded(ctx context.Context, input GenerateInput, intent policy.Intent, subject string) (draft, error) {
	directive, _ := policy.For(intent)

	vector, err := generator.embedder.EmbedOne(ctx, subject)
	if err != nil {
		return draft{}, err
	}
	grounding, err := generator.retriever.Retrieve(ctx, input.BookID, vector)
	if err != nil {
		return draft{}, err
	}

	system := directive.SystemPrompt
	if len(grounding.Passages) > 0 {
		var builder strings.Builder
		builder.WriteString(system)
		builder.WriteString("\n\nBook passages:\n")
		for _, passage := range grounding.Passages {
			builder.WriteString("\n[")
			builder.WriteString(passage.ChapterTitle)
			builder.WriteString("]\n")
			builder.WriteString(passage.Content)
			builder.WriteString("\n")
		}
		system = builder.String()
	}

	content, usage, err := generator.complete(ctx, llm.ChatRequest{
		Tier:            directive.Tier,
		System:          system,
		Messages:        []llm.Message{{Role: llm.RoleUser, Content: subject}},
		MaxOutputTokens: directive.MaxOutputTokens,
	})
	if err != nil {
		return draft{}, err
	}

	coverage := float64(len(grounding.Passages)) / float64(constants.RetrievalTopKFinal)
	return score(content, coverage, usage), nil
}

// summarize condenses the recent conversation about the book.
func (generator *Generator) summarize(ctx context.Context, input GenerateInput) (draft, error) {
	directive, _ := policy.For(policy.IntentSummarize)

	turns, err := generator.dialogs.RecentTurns(ctx, input.UserID, input.BookID, constants.DialogSummaryWindow)
	if err != nil {
		return draft{}, err
	}
	if len(turns) == 0 {
		return draft{}, apperr.ValidationError("Validation failed", apperr.FieldError{
			Field:   "contextScope",
			Message: "No dialog history to summarize for this book",
		})
	}

	var transcript strings.Builder
	for _, turn := range turns {
		transcript.WriteString(string(turn.Role))
		transcript.WriteString(": ")
		transcript.WriteString(turn.Content)
		transcript.WriteString("\n")
	}

	content, usage, err := generator.complete(ctx, llm.ChatRequest{
		Tier:            directive.Tier,
		System:          directive.SystemPrompt,
		Messages:        []llm.Message{{Role: llm.RoleUser, Content: transcript.String()}},
		MaxOutputTokens: directive.MaxOutputTokens,
	})
	if err != nil {
		return draft{}, err
	}

	coverage := float64(len(turns)) / float64(constants.DialogSummaryWindow)
	return score(content, coverage, usage), nil
}

// complete invokes the model and records token accounting.
func (generator *Generator) complete(ctx context.Context, request llm.ChatRequest) (string, llm.Usage, error) {
	content, usage, err := generator.completer.Complete(ctx, request)
	if err != nil {
		return "", usage, err
	}

	metrics.LLMTokens.WithLabelValues("auto_note", string(request.Tier)).Add(float64(usage.PromptTokens + usage.CompletionTokens))
	metrics.LLMCostMicros.WithLabelValues("auto_note", string(request.Tier)).Add(float64(usage.CostMicros))
	return content, usage, nil
}

// # Scoring

// targetContentChars is where the length heuristic saturates. Replies this
// long or longer read as substantive.
const targetContentChars = 400

/*
score derives a confidence for one draft.

Description: Length and source coverage are the observable quality signals:
a short reply over thin grounding scores low, a substantial reply over full
grounding scores high. The floor keeps an empty-grounding summary from
zeroing out entirely.
*/
func score(content string, coverage float64, usage llm.Usage) draft {
	if coverage > 1 {
		coverage = 1
	}

	lengthScore := float64(len(content)) / targetContentChars
	if lengthScore > 1 {
		lengthScore = 1
	}

	confidence := 0.25 + 0.45*lengthScore + 0.30*coverage
	if confidence > 1 {
		confidence = 1
	}

	return draft{
		content:    content,
		confidence: confidence,
		coverage:   coverage,
		usage:      usage,
	}
}

// qualityScore folds processing time into the draft's signals. Slow
// generations are penalized gently; past ten seconds the time component is
// gone.
func qualityScore(d draft, elapsed time.Duration) float64 {
	speed := 1 - elapsed.Seconds()/10
	if speed < 0 {
		speed = 0
	}

	lengthScore := float64(len(d.content)) / targetContentChars
	if lengthScore > 1 {
		lengthScore = 1
	}

	quality := 0.5*lengthScore + 0.3*d.coverage + 0.2*speed
	if quality > 1 {
		quality = 1
	}
	return quality
}

// clip truncates text to at most limit runes.
func clip(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
