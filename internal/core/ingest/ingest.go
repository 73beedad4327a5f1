// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package ingest runs the upload-to-ready pipeline for EPUB books.

Flow:

 1. The client requests a presigned upload URL and PUTs the file directly
    to object storage.
 2. POST /api/books registers the uploaded key. Registration is idempotent
    per (owner, uploadKey): repeating the call returns the same book and
    task instead of duplicating work.
 3. A background worker downloads, parses, chunks, and embeds the book,
    updating the task record as it goes. The book flips to ready only when
    every chapter is embedded.

A failed run records why (parse failure kinds come from the EPUB parser) and
re-registering the same upload key requeues the pipeline, resuming after the
chapter stage when chapters already persisted.
*/
package ingest

import "time"

// # Task Lifecycle

// TaskState is the lifecycle state of one pipeline run.
type TaskState string

const (
	TaskQueued    TaskState = "queued"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
)

// Valid reports whether the state is a known lifecycle state.
func (state TaskState) Valid() bool {
	switch state {
	case TaskQueued, TaskRunning, TaskCompleted, TaskFailed:
		return true
	}
	return false
}

// Terminal reports whether the state is an end state.
func (state TaskState) Terminal() bool {
	return state == TaskCompleted || state == TaskFailed
}

// Task tracks one pipeline run for status polling.
type Task struct {
	ID          string    `json:"id"`
	OwnerUserID string    `json:"-"`
	BookID      string    `json:"bookId"`
	State       TaskState `json:"state"`
	Progress    int       `json:"progress"`
	ErrorKind   *string   `json:"errorKind,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// # Pipeline Units

// Job is one queued pipeline run.
type Job struct {
	TaskID      string
	BookID      string
	OwnerUserID string
	UploadKey   string
}

// ChapterBody is a persisted chapter handed to the embedding stage.
type ChapterBody struct {
	ID      string
	Idx     int
	Content string
}

// EmbeddedChunk is one chunk ready for insertion into the vector index.
type EmbeddedChunk struct {
	ChapterID string
	Ordinal   int
	SpanStart int
	SpanEnd   int
	Vector    []float32
}
