// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package book implements the reader's library: uploaded books, their parsed
chapters, and per-book reading positions.

Every operation is scoped to the owning user. A book's content becomes
readable only once the ingestion pipeline has marked it ready; before that,
chapter access answers with a NOT_READY conflict rather than partial data.
*/
package book

import "time"

// # Status

// Status is the lifecycle state of an uploaded book.
type Status string

const (
	// StatusProcessing: registered and queued, or parsing and embedding.
	StatusProcessing Status = "processing"
	// StatusReady: chapters and embeddings are fully available.
	StatusReady Status = "ready"
	// StatusFailed: the pipeline gave up; FailureKind says why.
	StatusFailed Status = "failed"
)

// Valid reports whether the status is a known lifecycle state.
func (status Status) Valid() bool {
	switch status {
	case StatusProcessing, StatusReady, StatusFailed:
		return true
	}
	return false
}

// # Entities

// Book is one uploaded title in a user's library.
type Book struct {
	ID           string    `json:"id"`
	OwnerUserID  string    `json:"-"`
	Title        string    `json:"title"`
	Author       string    `json:"author,omitempty"`
	UploadKey    string    `json:"-"`
	Status       Status    `json:"status"`
	FailureKind  *string   `json:"failureKind,omitempty"`
	ChapterCount int       `json:"chapterCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ChapterSummary is the listing view of a chapter, without its content.
type ChapterSummary struct {
	ID        string `json:"id"`
	Idx       int    `json:"idx"`
	Title     string `json:"title"`
	WordCount int    `json:"wordCount"`
}

// Chapter is one chapter with full text.
type Chapter struct {
	ID        string `json:"id"`
	BookID    string `json:"bookId"`
	Idx       int    `json:"idx"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	WordCount int    `json:"wordCount"`
}

// Position is the reader's saved location in a book.
type Position struct {
	BookID    string    `json:"bookId"`
	ChapterID string    `json:"chapterId"`
	Offset    int       `json:"offset"`
	UpdatedAt time.Time `json:"updatedAt"`
}
