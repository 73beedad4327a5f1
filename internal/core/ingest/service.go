// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ingest

import (
	"context"
	"log/slog"

	"github.com/taibuivan/flowreader/internal/core/book"
	"github.com/taibuivan/flowreader/internal/platform/apperr"
	"github.com/taibuivan/flowreader/internal/platform/objectstore"
	"github.com/taibuivan/flowreader/internal/platform/validate"
	"github.com/taibuivan/flowreader/pkg/uuid"
)

// Signer is the upload-side object-store dependency.
type Signer interface {
	SignUpload(ctx context.Context, userID, fileName string) (objectstore.SignedUpload, error)
	OwnsKey(userID, key string) bool
}

// # Service Layer

// Service implements upload registration and task tracking.
type Service struct {
	store  Store
	signer Signer
	pool   *Pool
	logger *slog.Logger
}

// NewService constructs the ingestion [Service].
func NewService(store Store, signer Signer, pool *Pool, logger *slog.Logger) *Service {
	return &Service{store: store, signer: signer, pool: pool, logger: logger}
}

/*
SignUpload issues a presigned upload URL for a validated file name.

Description: The name is Unicode-normalized before it becomes part of the
object key; the handler has already rejected traversal and separators.
*/
func (service *Service) SignUpload(ctx context.Context, userID, fileName string) (objectstore.SignedUpload, error) {
	return service.signer.SignUpload(ctx, userID, validate.NormalizeFileName(fileName))
}

/*
Register registers an uploaded key and queues the pipeline.

Description: Idempotent per (owner, uploadKey). An existing registration is
returned as-is, whatever state its run reached; a failed run is terminal
and a retry needs a fresh upload. A concurrent duplicate registration loses
the insert race and resolves to the winner's rows.

Parameters:
  - ctx: context.Context
  - userID: string
  - uploadKey: string (Must lie under the caller's key prefix)
  - fileName: string (Placeholder title until parsing extracts the real one)

Returns:
  - *Registration: The book and its polling task
  - bool: Whether a new registration was created
  - error: NotFound on keys outside the caller's prefix, ServiceUnavailable
    when the queue is full
*/
func (service *Service) Register(ctx context.Context, userID, uploadKey, fileName string) (*Registration, bool, error) {
	// A key outside the caller's prefix is indistinguishable from a key
	// that does not exist; never confirm another user's uploads.
	if !service.signer.OwnsKey(userID, uploadKey) {
		return nil, false, apperr.NotFound("upload key")
	}

	// ── 1. Idempotency lookup ─────────────────────────────────────────────
	existing, err := service.store.FindByUploadKey(ctx, userID, uploadKey)
	if err == nil {
		return existing, false, nil
	}
	if !apperr.IsNotFound(err) {
		return nil, false, err
	}

	// ── 2. Fresh registration ─────────────────────────────────────────────
	title := validate.NormalizeFileName(fileName)
	if title == "" {
		title = "Untitled"
	}

	registration := &Registration{
		Book: &book.Book{
			ID:          uuid.New(),
			OwnerUserID: userID,
			Title:       title,
			UploadKey:   uploadKey,
			Status:      book.StatusProcessing,
		},
		Task: &Task{
			ID:          uuid.New(),
			OwnerUserID: userID,
			State:       TaskQueued,
		},
	}
	registration.Task.BookID = registration.Book.ID

	if err := service.store.CreateRegistration(ctx, registration); err != nil {
		// Lost the race against a concurrent identical registration: the
		// winner's rows are the canonical ones.
		if apperr.IsConflict(err) {
			winner, findErr := service.store.FindByUploadKey(ctx, userID, uploadKey)
			if findErr != nil {
				return nil, false, findErr
			}
			return winner, false, nil
		}
		return nil, false, err
	}

	if err := service.enqueue(ctx, registration); err != nil {
		return nil, false, err
	}

	service.logger.InfoContext(ctx, "ingest_registered",
		slog.String("book_id", registration.Book.ID),
		slog.String("task_id", registration.Task.ID),
	)
	return registration, true, nil
}

func (service *Service) enqueue(ctx context.Context, registration *Registration) error {
	job := Job{
		TaskID:      registration.Task.ID,
		BookID:      registration.Book.ID,
		OwnerUserID: registration.Book.OwnerUserID,
		UploadKey:   registration.Book.UploadKey,
	}
	if !service.pool.Enqueue(job) {
		service.logger.WarnContext(ctx, "ingest_queue_full", slog.String("task_id", job.TaskID))
		return apperr.ServiceUnavailable("The ingestion queue is full, try again shortly")
	}
	return nil
}

// TaskStatus returns one of the caller's pipeline tasks.
func (service *Service) TaskStatus(ctx context.Context, userID, taskID string) (*Task, error) {
	return service.store.FindTask(ctx, userID, taskID)
}

/*
Resume requeues pipeline runs interrupted by a restart.

Description: Called once at startup, after the pool has started. Jobs that
do not fit the queue stay queued in the database and are retried on the
next boot.
*/
func (service *Service) Resume(ctx context.Context) error {
	jobs, err := service.store.UnfinishedJobs(ctx)
	if err != nil {
		return err
	}

	requeued := 0
	for _, job := range jobs {
		if service.pool.Enqueue(job) {
			requeued++
		}
	}

	if len(jobs) > 0 {
		service.logger.InfoContext(ctx, "ingest_resume",
			slog.Int("found", len(jobs)),
			slog.Int("requeued", requeued),
		)
	}
	return nil
}
