// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ingest

import (
	"context"

	"github.com/taibuivan/flowreader/internal/core/book"
	"github.com/taibuivan/flowreader/internal/platform/epub"
)

// Registration is the outcome of registering an upload: the book and the
// pipeline task tracking it.
type Registration struct {
	Book *book.Book `json:"book"`
	Task *Task      `json:"task"`
}

// Store defines the persistence contract for the ingestion pipeline.
type Store interface {
	// FindByUploadKey returns an existing registration for (owner, key),
	// or NotFound. This is the idempotency lookup.
	FindByUploadKey(ctx context.Context, ownerID, uploadKey string) (*Registration, error)

	// CreateRegistration atomically inserts the new book and its queued
	// task. A concurrent duplicate surfaces as Conflict via the unique
	// (owner, upload_key) constraint.
	CreateRegistration(ctx context.Context, registration *Registration) error

	// FindTask returns one of the owner's tasks.
	FindTask(ctx context.Context, ownerID, taskID string) (*Task, error)

	// UpdateTask moves a task through its lifecycle.
	UpdateTask(ctx context.Context, taskID string, state TaskState, progress int, errorKind *string) error

	// UnfinishedJobs returns jobs whose tasks were queued or running, for
	// requeueing after a restart.
	UnfinishedJobs(ctx context.Context) ([]Job, error)

	// SetBookMeta records parsed metadata and chapter count on the book.
	SetBookMeta(ctx context.Context, bookID, title, author string, chapterCount int) error

	// SetBookStatus moves the book through its lifecycle. failureKind is
	// only set with StatusFailed.
	SetBookStatus(ctx context.Context, bookID string, status book.Status, failureKind *string) error

	// ReplaceChapters atomically swaps the book's chapters (and their
	// embeddings, via cascade) for freshly parsed ones.
	ReplaceChapters(ctx context.Context, bookID string, chapters []epub.Chapter) error

	// UnembeddedChapters returns the book's chapters that have no vectors
	// yet, in reading order. A resumed run embeds only these.
	UnembeddedChapters(ctx context.Context, bookID string) ([]ChapterBody, error)

	// HasChapters reports whether the parse stage already completed for the
	// book, enabling resume-at-embedding.
	HasChapters(ctx context.Context, bookID string) (bool, error)

	// InsertEmbeddings atomically inserts one chapter's embedded chunks.
	InsertEmbeddings(ctx context.Context, chunks []EmbeddedChunk) error
}
