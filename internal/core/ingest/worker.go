// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/taibuivan/flowreader/internal/core/book"
	"github.com/taibuivan/flowreader/internal/platform/constants"
	"github.com/taibuivan/flowreader/internal/platform/epub"
	"github.com/taibuivan/flowreader/internal/platform/metrics"
)

// # Pipeline Failure Kinds
//
// Parse failures reuse the parser's kinds; these cover the other stages.

const (
	failureDownload  = "download_failed"
	failureOversized = string(epub.FailureOversized)
	failureEmbedding = "embedding_failed"
)

// Downloader is the object-store dependency of the pipeline.
type Downloader interface {
	Download(ctx context.Context, key string) (io.ReadCloser, int64, error)
}

// Embedder is the embedding dependency of the pipeline.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// # Worker Pool

// Pool runs the ingestion pipeline on a fixed set of workers fed by a
// bounded in-process queue.
type Pool struct {
	store          Store
	objects        Downloader
	embedder       Embedder
	logger         *slog.Logger
	queue          chan Job
	maxUploadBytes int64

	wg sync.WaitGroup
}

// NewPool constructs the worker pool. Start must be called before Enqueue.
func NewPool(store Store, objects Downloader, embedder Embedder, maxUploadBytes int64, logger *slog.Logger) *Pool {
	return &Pool{
		store:          store,
		objects:        objects,
		embedder:       embedder,
		logger:         logger,
		queue:          make(chan Job, constants.IngestQueueDepth),
		maxUploadBytes: maxUploadBytes,
	}
}

// Start launches the workers. They exit when ctx is cancelled; Wait blocks
// until they drain.
func (pool *Pool) Start(ctx context.Context) {
	for i := 0; i < constants.IngestWorkerCount; i++ {
		pool.wg.Add(1)
		go func(worker int) {
			defer pool.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-pool.queue:
					pool.run(ctx, job)
				}
			}
		}(i)
	}
}

// Wait blocks until every worker has exited.
func (pool *Pool) Wait() {
	pool.wg.Wait()
}

// Enqueue hands a job to the pool without blocking. A full queue reports
// false; the caller decides how to surface the backpressure.
func (pool *Pool) Enqueue(job Job) bool {
	select {
	case pool.queue <- job:
		return true
	default:
		return false
	}
}

// # Pipeline Stages

/*
run executes one full pipeline: download, parse, persist, embed, flip ready.

Description: A cancelled context (shutdown) leaves the task in its current
state; UnfinishedJobs picks it up on the next boot. Every other failure is
terminal for this run and recorded on both the task and the book.
*/
func (pool *Pool) run(ctx context.Context, job Job) {
	logger := pool.logger.With(
		slog.String("task_id", job.TaskID),
		slog.String("book_id", job.BookID),
	)

	if err := pool.store.UpdateTask(ctx, job.TaskID, TaskRunning, 5, nil); err != nil {
		logger.ErrorContext(ctx, "ingest_task_claim_failed", slog.Any("error", err))
		return
	}
	_ = pool.store.SetBookStatus(ctx, job.BookID, book.StatusProcessing, nil)

	// Resume-at-embedding: when a previous run persisted chapters, the
	// download and parse stages are skipped entirely.
	resumed, err := pool.store.HasChapters(ctx, job.BookID)
	if err != nil {
		pool.fail(ctx, logger, job, failureDownload, err)
		return
	}

	if !resumed {
		parsed, kind, err := pool.fetchAndParse(ctx, job)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			pool.fail(ctx, logger, job, kind, err)
			return
		}

		_ = pool.store.UpdateTask(ctx, job.TaskID, TaskRunning, 35, nil)

		if err := pool.store.ReplaceChapters(ctx, job.BookID, parsed.Chapters); err != nil {
			pool.fail(ctx, logger, job, failureDownload, err)
			return
		}
		if err := pool.store.SetBookMeta(ctx, job.BookID, parsed.Title, parsed.Author, len(parsed.Chapters)); err != nil {
			pool.fail(ctx, logger, job, failureDownload, err)
			return
		}
	} else {
		logger.InfoContext(ctx, "ingest_resumed_at_embedding")
	}

	_ = pool.store.UpdateTask(ctx, job.TaskID, TaskRunning, 50, nil)

	// ── Embedding Stage ───────────────────────────────────────────────────
	if err := pool.embedBook(ctx, job); err != nil {
		if ctx.Err() != nil {
			return
		}
		pool.fail(ctx, logger, job, failureEmbedding, err)
		return
	}

	// ── Completion ────────────────────────────────────────────────────────
	if err := pool.store.SetBookStatus(ctx, job.BookID, book.StatusReady, nil); err != nil {
		pool.fail(ctx, logger, job, failureEmbedding, err)
		return
	}
	_ = pool.store.UpdateTask(ctx, job.TaskID, TaskCompleted, 100, nil)

	metrics.IngestOutcomes.WithLabelValues(string(book.StatusReady)).Inc()
	logger.InfoContext(ctx, "ingest_completed")
}

// fetchAndParse downloads the archive and parses it under the parse timeout.
// The returned kind classifies the failure for the book record.
func (pool *Pool) fetchAndParse(ctx context.Context, job Job) (*epub.Book, string, error) {
	body, declaredSize, err := pool.objects.Download(ctx, job.UploadKey)
	if err != nil {
		return nil, failureDownload, err
	}
	defer body.Close()

	if declaredSize > pool.maxUploadBytes {
		return nil, failureOversized, fmt.Errorf("ingest: declared size %d exceeds the upload limit", declaredSize)
	}

	// The ZIP reader needs random access, so the archive is buffered in
	// full, bounded by the upload ceiling.
	data, err := io.ReadAll(io.LimitReader(body, pool.maxUploadBytes+1))
	if err != nil {
		return nil, failureDownload, err
	}
	if int64(len(data)) > pool.maxUploadBytes {
		return nil, failureOversized, fmt.Errorf("ingest: archive exceeds the upload limit")
	}

	parseCtx, cancel := context.WithTimeout(ctx, constants.ParseTimeout)
	defer cancel()

	type parseOutcome struct {
		book *epub.Book
		err  error
	}
	done := make(chan parseOutcome, 1)
	go func() {
		parsed, parseErr := epub.Parse(bytes.NewReader(data), int64(len(data)))
		done <- parseOutcome{parsed, parseErr}
	}()

	select {
	case outcome := <-done:
		if outcome.err != nil {
			kind := failureDownload
			if parseErr, ok := epub.AsParseError(outcome.err); ok {
				kind = string(parseErr.Kind)
			}
			return nil, kind, outcome.err
		}
		return outcome.book, "", nil

	case <-parseCtx.Done():
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, string(epub.FailureInvalidArchive), errors.New("ingest: parse exceeded its time budget")
	}
}

// embedBook chunks and embeds the chapters that still lack vectors,
// updating progress as chapters finish. A resumed run pays only for the
// chapters the interrupted one never reached.
func (pool *Pool) embedBook(ctx context.Context, job Job) error {
	bodies, err := pool.store.UnembeddedChapters(ctx, job.BookID)
	if err != nil {
		return err
	}

	for i, body := range bodies {
		chunks := ChunkChapter(body.Content)
		if len(chunks) == 0 {
			continue
		}

		texts := make([]string, len(chunks))
		for j, chunk := range chunks {
			texts[j] = chunk.Text
		}

		vectors, err := pool.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}

		embedded := make([]EmbeddedChunk, len(chunks))
		for j, chunk := range chunks {
			embedded[j] = EmbeddedChunk{
				ChapterID: body.ID,
				Ordinal:   chunk.Ordinal,
				SpanStart: chunk.SpanStart,
				SpanEnd:   chunk.SpanEnd,
				Vector:    vectors[j],
			}
		}

		if err := pool.store.InsertEmbeddings(ctx, embedded); err != nil {
			return err
		}

		// Scale embedding progress across the 50..95 band.
		progress := 50 + (45*(i+1))/len(bodies)
		_ = pool.store.UpdateTask(ctx, job.TaskID, TaskRunning, progress, nil)
	}

	return nil
}

// fail records a terminal failure on both the task and the book.
func (pool *Pool) fail(ctx context.Context, logger *slog.Logger, job Job, kind string, cause error) {
	logger.ErrorContext(ctx, "ingest_failed",
		slog.String("kind", kind),
		slog.Any("error", cause),
	)

	_ = pool.store.UpdateTask(ctx, job.TaskID, TaskFailed, 0, &kind)
	_ = pool.store.SetBookStatus(ctx, job.BookID, book.StatusFailed, &kind)
	metrics.IngestOutcomes.WithLabelValues(string(book.StatusFailed)).Inc()
}
