// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package schema

// NoteTable represents the 'notes' table.
type NoteTable struct {
	Table            string
	ID               string
	OwnerUserID      string
	BookID           string
	ChapterID        string
	SelectionText    string
	SelectionStart   string
	SelectionEnd     string
	Content          string
	Source           string
	Tags             string
	Intent           string
	GenerationMethod string
	Confidence       string
	QualityScore     string
	ProcessingInfo   string
	SearchVector     string
	CreatedAt        string
}

// Note is the schema definition for notes.
var Note = NoteTable{
	Table:            "notes",
	ID:               "id",
	OwnerUserID:      "owner_user_id",
	BookID:           "book_id",
	ChapterID:        "chapter_id",
	SelectionText:    "selection_text",
	SelectionStart:   "selection_start",
	SelectionEnd:     "selection_end",
	Content:          "content",
	Source:           "source",
	Tags:             "tags",
	Intent:           "intent",
	GenerationMethod: "generation_method",
	Confidence:       "confidence",
	QualityScore:     "quality_score",
	ProcessingInfo:   "processing_info",
	SearchVector:     "search_vector",
	CreatedAt:        "created_at",
}
