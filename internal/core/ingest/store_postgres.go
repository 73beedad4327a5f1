// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ingest

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/taibuivan/flowreader/internal/core/book"
	"github.com/taibuivan/flowreader/internal/platform/apperr"
	"github.com/taibuivan/flowreader/internal/platform/database/schema"
	"github.com/taibuivan/flowreader/internal/platform/dberr"
	"github.com/taibuivan/flowreader/internal/platform/epub"
	"github.com/taibuivan/flowreader/internal/platform/postgres"
	"github.com/taibuivan/flowreader/pkg/uuid"
)

// # PostgreSQL Repository

// pgStore implements [Store] using pgx.
type pgStore struct {
	pool *pgxpool.Pool
}

// NewStore constructs a PostgreSQL backed ingestion store.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

const taskColumns = "%s, %s, %s, %s, %s, %s, %s"

func (store *pgStore) taskSelect() string {
	return fmt.Sprintf(taskColumns,
		schema.Task.ID, schema.Task.BookID, schema.Task.State, schema.Task.Progress,
		schema.Task.ErrorKind, schema.Task.CreatedAt, schema.Task.UpdatedAt,
	)
}

func scanTask(row pgx.Row, ownerID string) (*Task, error) {
	task := Task{OwnerUserID: ownerID}
	err := row.Scan(
		&task.ID,
		&task.BookID,
		&task.State,
		&task.Progress,
		&task.ErrorKind,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

/*
FindByUploadKey performs the idempotency lookup for registration.

Description: Joins the latest task for the book so repeated registrations
return the same polling handle.

Returns:
  - *Registration: Existing book and its most recent task
  - error: apperr.NotFound when the key was never registered
*/
func (store *pgStore) FindByUploadKey(ctx context.Context, ownerID, uploadKey string) (*Registration, error) {

	query := fmt.Sprintf(`
		SELECT
			b.%s, b.%s, b.%s, b.%s, b.%s, b.%s, b.%s, b.%s,
			t.%s, t.%s, t.%s, t.%s, t.%s, t.%s
		FROM %s b
		JOIN %s t ON t.%s = b.%s
		WHERE b.%s = $1 AND b.%s = $2
		ORDER BY t.%s DESC
		LIMIT 1
	`,
		schema.Book.ID, schema.Book.Title, schema.Book.Author, schema.Book.Status,
		schema.Book.FailureKind, schema.Book.ChapterCount, schema.Book.CreatedAt, schema.Book.UpdatedAt,
		schema.Task.ID, schema.Task.State, schema.Task.Progress, schema.Task.ErrorKind,
		schema.Task.CreatedAt, schema.Task.UpdatedAt,
		schema.Book.Table,
		schema.Task.Table, schema.Task.BookID, schema.Book.ID,
		schema.Book.OwnerUserID, schema.Book.UploadKey,
		schema.Task.CreatedAt,
	)

	bookRecord := book.Book{OwnerUserID: ownerID, UploadKey: uploadKey}
	task := Task{OwnerUserID: ownerID}

	err := postgres.AsUser(ctx, store.pool, ownerID, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, query, ownerID, uploadKey).Scan(
			&bookRecord.ID,
			&bookRecord.Title,
			&bookRecord.Author,
			&bookRecord.Status,
			&bookRecord.FailureKind,
			&bookRecord.ChapterCount,
			&bookRecord.CreatedAt,
			&bookRecord.UpdatedAt,
			&task.ID,
			&task.State,
			&task.Progress,
			&task.ErrorKind,
			&task.CreatedAt,
			&task.UpdatedAt,
		)
		if err != nil {
			return dberr.Wrap(err, "registration")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	task.BookID = bookRecord.ID
	return &Registration{Book: &bookRecord, Task: &task}, nil
}

/*
CreateRegistration inserts the new book and queued task atomically.

Description: Runs under the owner's row-security identity. The unique index
on (owner_user_id, upload_key) turns a concurrent duplicate registration
into apperr.Conflict, which the service resolves by re-reading the winner.
*/
func (store *pgStore) CreateRegistration(ctx context.Context, registration *Registration) error {
	return postgres.AsUser(ctx, store.pool, registration.Book.OwnerUserID, func(tx pgx.Tx) error {
		return store.insertRegistration(ctx, tx, registration)
	})
}

func (store *pgStore) insertRegistration(ctx context.Context, tx pgx.Tx, registration *Registration) error {
	bookInsert := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		schema.Book.Table,
		schema.Book.ID, schema.Book.OwnerUserID, schema.Book.Title, schema.Book.Author,
		schema.Book.UploadKey, schema.Book.Status, schema.Book.ChapterCount,
	)

	bookRecord := registration.Book
	_, err := tx.Exec(ctx, bookInsert,
		bookRecord.ID,
		bookRecord.OwnerUserID,
		bookRecord.Title,
		bookRecord.Author,
		bookRecord.UploadKey,
		bookRecord.Status,
		bookRecord.ChapterCount,
	)
	if err != nil {
		return dberr.Wrap(err, "book")
	}

	taskInsert := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5)
	`,
		schema.Task.Table,
		schema.Task.ID, schema.Task.OwnerUserID, schema.Task.BookID,
		schema.Task.State, schema.Task.Progress,
	)

	task := registration.Task
	_, err = tx.Exec(ctx, taskInsert, task.ID, task.OwnerUserID, task.BookID, task.State, task.Progress)
	if err != nil {
		return dberr.Wrap(err, "task")
	}
	return nil
}

// FindTask returns one of the owner's tasks.
func (store *pgStore) FindTask(ctx context.Context, ownerID, taskID string) (*Task, error) {
	query := fmt.Sprintf(`
		SELECT `+store.taskSelect()+`
		FROM %s
		WHERE %s = $1 AND %s = $2
	`,
		schema.Task.Table,
		schema.Task.ID, schema.Task.OwnerUserID,
	)

	var task *Task
	err := postgres.AsUser(ctx, store.pool, ownerID, func(tx pgx.Tx) error {
		found, err := scanTask(tx.QueryRow(ctx, query, taskID, ownerID), ownerID)
		if err != nil {
			return dberr.Wrap(err, "task")
		}
		task = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTask moves a task through its lifecycle.
func (store *pgStore) UpdateTask(ctx context.Context, taskID string, state TaskState, progress int, errorKind *string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET %s = $1, %s = $2, %s = $3, %s = NOW()
		WHERE %s = $4
	`,
		schema.Task.Table,
		schema.Task.State, schema.Task.Progress, schema.Task.ErrorKind, schema.Task.UpdatedAt,
		schema.Task.ID,
	)

	result, err := store.pool.Exec(ctx, query, state, progress, errorKind, taskID)
	if err != nil {
		return fmt.Errorf("postgres: failed to update task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("task")
	}
	return nil
}

// UnfinishedJobs returns jobs interrupted by a restart.
func (store *pgStore) UnfinishedJobs(ctx context.Context) ([]Job, error) {
	query := fmt.Sprintf(`
		SELECT t.%s, t.%s, t.%s, b.%s
		FROM %s t
		JOIN %s b ON t.%s = b.%s
		WHERE t.%s IN ($1, $2)
		ORDER BY t.%s ASC
	`,
		schema.Task.ID, schema.Task.BookID, schema.Task.OwnerUserID, schema.Book.UploadKey,
		schema.Task.Table,
		schema.Book.Table, schema.Task.BookID, schema.Book.ID,
		schema.Task.State,
		schema.Task.CreatedAt,
	)

	rows, err := store.pool.Query(ctx, query, TaskQueued, TaskRunning)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list unfinished tasks: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var job Job
		if err := rows.Scan(&job.TaskID, &job.BookID, &job.OwnerUserID, &job.UploadKey); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan unfinished task: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// SetBookMeta records parsed metadata on the book.
func (store *pgStore) SetBookMeta(ctx context.Context, bookID, title, author string, chapterCount int) error {
	query := fmt.Sprintf(`
		UPDATE %s SET %s = $1, %s = $2, %s = $3, %s = NOW()
		WHERE %s = $4
	`,
		schema.Book.Table,
		schema.Book.Title, schema.Book.Author, schema.Book.ChapterCount, schema.Book.UpdatedAt,
		schema.Book.ID,
	)

	_, err := store.pool.Exec(ctx, query, title, author, chapterCount, bookID)
	if err != nil {
		return fmt.Errorf("postgres: failed to set book metadata: %w", err)
	}
	return nil
}

// SetBookStatus moves the book through its lifecycle.
func (store *pgStore) SetBookStatus(ctx context.Context, bookID string, status book.Status, failureKind *string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET %s = $1, %s = $2, %s = NOW()
		WHERE %s = $3
	`,
		schema.Book.Table,
		schema.Book.Status, schema.Book.FailureKind, schema.Book.UpdatedAt,
		schema.Book.ID,
	)

	_, err := store.pool.Exec(ctx, query, status, failureKind, bookID)
	if err != nil {
		return fmt.Errorf("postgres: failed to set book status: %w", err)
	}
	return nil
}

/*
ReplaceChapters swaps the book's chapters for freshly parsed ones.

Description: Deleting first makes a re-run idempotent; chapter embeddings
cascade with their chapters. Inserts are pipelined in one batch.
*/
func (store *pgStore) ReplaceChapters(ctx context.Context, bookID string, chapters []epub.Chapter) error {
	tx, err := store.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin chapter tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`,
		schema.Chapter.Table, schema.Chapter.BookID)
	if _, err := tx.Exec(ctx, deleteQuery, bookID); err != nil {
		return fmt.Errorf("postgres: failed to clear chapters: %w", err)
	}

	insertQuery := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		schema.Chapter.Table,
		schema.Chapter.ID, schema.Chapter.BookID, schema.Chapter.Idx,
		schema.Chapter.Title, schema.Chapter.Content, schema.Chapter.WordCount,
	)

	batch := &pgx.Batch{}
	for idx, chapter := range chapters {
		batch.Queue(insertQuery, uuid.New(), bookID, idx, chapter.Title, chapter.Content, chapter.WordCount)
	}

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < len(chapters); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("postgres: failed to batch insert chapter %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("postgres: failed to close chapter batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: failed to commit chapters: %w", err)
	}
	return nil
}

// UnembeddedChapters returns the chapters still awaiting vectors, so a
// resumed run never re-embeds (and re-pays for) finished ones.
func (store *pgStore) UnembeddedChapters(ctx context.Context, bookID string) ([]ChapterBody, error) {
	query := fmt.Sprintf(`
		SELECT c.%s, c.%s, c.%s
		FROM %s c
		WHERE c.%s = $1
		  AND NOT EXISTS (
			SELECT 1 FROM %s e WHERE e.%s = c.%s
		  )
		ORDER BY c.%s ASC
	`,
		schema.Chapter.ID, schema.Chapter.Idx, schema.Chapter.Content,
		schema.Chapter.Table,
		schema.Chapter.BookID,
		schema.ChapterEmbedding.Table, schema.ChapterEmbedding.ChapterID, schema.Chapter.ID,
		schema.Chapter.Idx,
	)

	rows, err := store.pool.Query(ctx, query, bookID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list chapter bodies: %w", err)
	}
	defer rows.Close()

	var bodies []ChapterBody
	for rows.Next() {
		var body ChapterBody
		if err := rows.Scan(&body.ID, &body.Idx, &body.Content); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan chapter body: %w", err)
		}
		bodies = append(bodies, body)
	}

	return bodies, rows.Err()
}

// HasChapters reports whether the parse stage already completed.
func (store *pgStore) HasChapters(ctx context.Context, bookID string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1)`,
		schema.Chapter.Table, schema.Chapter.BookID)

	var exists bool
	if err := store.pool.QueryRow(ctx, query, bookID).Scan(&exists); err != nil {
		return false, fmt.Errorf("postgres: failed to check chapters: %w", err)
	}
	return exists, nil
}

/*
InsertEmbeddings inserts one chapter's embedded chunks.

Description: Runs in a transaction so a chapter's vectors land all or not at
all; UnembeddedChapters can then treat any existing row as a fully embedded
chapter.
*/
func (store *pgStore) InsertEmbeddings(ctx context.Context, chunks []EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := store.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin embedding tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		schema.ChapterEmbedding.Table,
		schema.ChapterEmbedding.ID, schema.ChapterEmbedding.ChapterID,
		schema.ChapterEmbedding.ChunkOrdinal, schema.ChapterEmbedding.Embedding,
		schema.ChapterEmbedding.SpanStart, schema.ChapterEmbedding.SpanEnd,
	)

	batch := &pgx.Batch{}
	for _, chunk := range chunks {
		batch.Queue(query,
			uuid.New(),
			chunk.ChapterID,
			chunk.Ordinal,
			pgvector.NewVector(chunk.Vector),
			chunk.SpanStart,
			chunk.SpanEnd,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < len(chunks); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("postgres: failed to batch insert embedding %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("postgres: failed to close embedding batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: failed to commit embeddings: %w", err)
	}
	return nil
}
