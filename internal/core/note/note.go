// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package note implements saved reading notes: manual creation, automatic
generation under a confidence gate, and filtered full-text discovery.

Auto notes compose the AI pipeline: the generator routes a request to one of
three methods (knowledge enhancement, context analysis, dialog summary),
scores the result, and falls back once to a simpler method when the score
misses the gate. Every persisted note is owner-scoped.
*/
package note

import (
	"time"

	"github.com/taibuivan/flowreader/internal/ai/policy"
)

// Source distinguishes reader-written notes from generated ones.
type Source string

const (
	SourceManual Source = "manual"
	SourceAuto   Source = "auto"
)

// Valid reports whether the source is a known value.
func (source Source) Valid() bool {
	return source == SourceManual || source == SourceAuto
}

// GenerationMethod names how an auto note was produced.
type GenerationMethod string

const (
	MethodKnowledgeEnhancement GenerationMethod = "knowledge_enhancement"
	MethodContextAnalysis      GenerationMethod = "context_analysis"
	MethodDialogSummary        GenerationMethod = "dialog_summary"
)

// Valid reports whether the method is a known value.
func (method GenerationMethod) Valid() bool {
	switch method {
	case MethodKnowledgeEnhancement, MethodContextAnalysis, MethodDialogSummary:
		return true
	}
	return false
}

// ContextScope hints the generator at which context to draw on.
type ContextScope string

const (
	ScopeRecentDialog ContextScope = "recent_dialog"
	ScopeChapter      ContextScope = "chapter"
	ScopeSelection    ContextScope = "selection"
)

// Valid reports whether the scope is a known value. The empty scope is
// allowed; routing then falls through on the selection.
func (scope ContextScope) Valid() bool {
	switch scope {
	case "", ScopeRecentDialog, ScopeChapter, ScopeSelection:
		return true
	}
	return false
}

// Selection is the text span a note is anchored to.
type Selection struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Meta carries the generation provenance of an auto note. Manual notes
// leave it zero.
type Meta struct {
	Intent           policy.Intent     `json:"intent,omitempty"`
	GenerationMethod GenerationMethod  `json:"generationMethod,omitempty"`
	Confidence       float64           `json:"confidence"`
	QualityScore     float64           `json:"qualityScore"`
	ProcessingInfo   map[string]string `json:"processingInfo,omitempty"`
}

// Note is one saved textual artifact, manual or generated.
type Note struct {
	ID          string     `json:"id"`
	OwnerUserID string     `json:"-"`
	BookID      string     `json:"bookId"`
	ChapterID   *string    `json:"chapterId,omitempty"`
	Selection   *Selection `json:"selection,omitempty"`
	Content     string     `json:"content"`
	Source      Source     `json:"source"`
	Tags        []string   `json:"tags"`
	Meta        Meta       `json:"meta"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// HasTag reports whether the note carries the given tag.
func (note *Note) HasTag(tag string) bool {
	for _, t := range note.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
