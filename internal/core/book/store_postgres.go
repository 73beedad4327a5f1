// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package book

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/flowreader/internal/platform/apperr"
	"github.com/taibuivan/flowreader/internal/platform/database/schema"
	"github.com/taibuivan/flowreader/internal/platform/postgres"
)

// # PostgreSQL Repository

// pgStore implements [Store] using pgx.
type pgStore struct {
	pool *pgxpool.Pool
}

// NewStore constructs a PostgreSQL backed library store.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

/*
ListByOwner retrieves a page of the owner's books.

Description: Newest first. The window function supplies the total count in
the same round-trip. Runs under the caller's row-security identity, like
every owner-scoped query in this store.

Parameters:
  - ctx: context.Context
  - ownerID: string
  - limit, offset: int

Returns:
  - []*Book: The page
  - int: Total books owned
*/
func (store *pgStore) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*Book, int, error) {

	query := fmt.Sprintf(`
		SELECT
			%s, %s, %s, %s, %s, %s, %s, %s, %s,
			COUNT(*) OVER() AS total_count
		FROM %s
		WHERE %s = $1
		ORDER BY %s DESC
		LIMIT $2 OFFSET $3
	`,
		schema.Book.ID, schema.Book.Title, schema.Book.Author, schema.Book.Status,
		schema.Book.FailureKind, schema.Book.ChapterCount, schema.Book.UploadKey,
		schema.Book.CreatedAt, schema.Book.UpdatedAt,
		schema.Book.Table,
		schema.Book.OwnerUserID,
		schema.Book.CreatedAt,
	)

	// Book entity hydration
	var books []*Book
	var totalCount int

	err := postgres.AsUser(ctx, store.pool, ownerID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, ownerID, limit, offset)
		if err != nil {
			return fmt.Errorf("postgres: failed to list books: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			book := Book{OwnerUserID: ownerID}
			err := rows.Scan(
				&book.ID,
				&book.Title,
				&book.Author,
				&book.Status,
				&book.FailureKind,
				&book.ChapterCount,
				&book.UploadKey,
				&book.CreatedAt,
				&book.UpdatedAt,
				&totalCount,
			)
			if err != nil {
				return fmt.Errorf("postgres: failed to scan book: %w", err)
			}
			books = append(books, &book)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}

	return books, totalCount, nil
}

/*
FindByID returns one of the owner's books.

Returns:
  - *Book: The book
  - error: apperr.NotFound when absent or owned by someone else
*/
func (store *pgStore) FindByID(ctx context.Context, ownerID, bookID string) (*Book, error) {

	query := fmt.Sprintf(`
		SELECT %s, %s, %s, %s, %s, %s, %s, %s, %s
		FROM %s
		WHERE %s = $1 AND %s = $2
	`,
		schema.Book.ID, schema.Book.Title, schema.Book.Author, schema.Book.Status,
		schema.Book.FailureKind, schema.Book.ChapterCount, schema.Book.UploadKey,
		schema.Book.CreatedAt, schema.Book.UpdatedAt,
		schema.Book.Table,
		schema.Book.ID, schema.Book.OwnerUserID,
	)

	book := Book{OwnerUserID: ownerID}
	err := postgres.AsUser(ctx, store.pool, ownerID, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, query, bookID, ownerID).Scan(
			&book.ID,
			&book.Title,
			&book.Author,
			&book.Status,
			&book.FailureKind,
			&book.ChapterCount,
			&book.UploadKey,
			&book.CreatedAt,
			&book.UpdatedAt,
		)
		if err != nil {
			if err == pgx.ErrNoRows {
				return apperr.NotFound("book")
			}
			return fmt.Errorf("postgres: failed to find book: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &book, nil
}

/*
Delete removes a book and, via schema cascades, everything derived from it.

Description: Runs under the caller's row-security identity so the policy
layer enforces ownership alongside the explicit predicate.
*/
func (store *pgStore) Delete(ctx context.Context, ownerID, bookID string) error {
	return postgres.AsUser(ctx, store.pool, ownerID, func(tx pgx.Tx) error {
		query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND %s = $2`,
			schema.Book.Table, schema.Book.ID, schema.Book.OwnerUserID)

		result, err := tx.Exec(ctx, query, bookID, ownerID)
		if err != nil {
			return fmt.Errorf("postgres: failed to delete book: %w", err)
		}
		if result.RowsAffected() == 0 {
			return apperr.NotFound("book")
		}
		return nil
	})
}

/*
ListChapters retrieves a page of chapter summaries in reading order.
*/
func (store *pgStore) ListChapters(ctx context.Context, ownerID, bookID string, limit, offset int) ([]*ChapterSummary, int, error) {

	query := fmt.Sprintf(`
		SELECT
			c.%s, c.%s, c.%s, c.%s,
			COUNT(*) OVER() AS total_count
		FROM %s c
		JOIN %s b ON c.%s = b.%s
		WHERE b.%s = $1 AND b.%s = $2
		ORDER BY c.%s ASC
		LIMIT $3 OFFSET $4
	`,
		schema.Chapter.ID, schema.Chapter.Idx, schema.Chapter.Title, schema.Chapter.WordCount,
		schema.Chapter.Table,
		schema.Book.Table, schema.Chapter.BookID, schema.Book.ID,
		schema.Book.ID, schema.Book.OwnerUserID,
		schema.Chapter.Idx,
	)

	var chapters []*ChapterSummary
	var totalCount int

	err := postgres.AsUser(ctx, store.pool, ownerID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, bookID, ownerID, limit, offset)
		if err != nil {
			return fmt.Errorf("postgres: failed to list chapters: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var chapter ChapterSummary
			err := rows.Scan(&chapter.ID, &chapter.Idx, &chapter.Title, &chapter.WordCount, &totalCount)
			if err != nil {
				return fmt.Errorf("postgres: failed to scan chapter summary: %w", err)
			}
			chapters = append(chapters, &chapter)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}

	return chapters, totalCount, nil
}

/*
FindChapter returns one chapter with full content.
*/
func (store *pgStore) FindChapter(ctx context.Context, ownerID, bookID, chapterID string) (*Chapter, error) {

	query := fmt.Sprintf(`
		SELECT c.%s, c.%s, c.%s, c.%s, c.%s, c.%s
		FROM %s c
		JOIN %s b ON c.%s = b.%s
		WHERE c.%s = $1 AND b.%s = $2 AND b.%s = $3
	`,
		schema.Chapter.ID, schema.Chapter.BookID, schema.Chapter.Idx,
		schema.Chapter.Title, schema.Chapter.Content, schema.Chapter.WordCount,
		schema.Chapter.Table,
		schema.Book.Table, schema.Chapter.BookID, schema.Book.ID,
		schema.Chapter.ID, schema.Book.ID, schema.Book.OwnerUserID,
	)

	var chapter Chapter
	err := postgres.AsUser(ctx, store.pool, ownerID, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, query, chapterID, bookID, ownerID).Scan(
			&chapter.ID,
			&chapter.BookID,
			&chapter.Idx,
			&chapter.Title,
			&chapter.Content,
			&chapter.WordCount,
		)
		if err != nil {
			if err == pgx.ErrNoRows {
				return apperr.NotFound("chapter")
			}
			return fmt.Errorf("postgres: failed to find chapter: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &chapter, nil
}

/*
FindChapterByID returns one chapter located by its ID alone.
*/
func (store *pgStore) FindChapterByID(ctx context.Context, ownerID, chapterID string) (*Chapter, error) {

	query := fmt.Sprintf(`
		SELECT c.%s, c.%s, c.%s, c.%s, c.%s, c.%s
		FROM %s c
		JOIN %s b ON c.%s = b.%s
		WHERE c.%s = $1 AND b.%s = $2
	`,
		schema.Chapter.ID, schema.Chapter.BookID, schema.Chapter.Idx,
		schema.Chapter.Title, schema.Chapter.Content, schema.Chapter.WordCount,
		schema.Chapter.Table,
		schema.Book.Table, schema.Chapter.BookID, schema.Book.ID,
		schema.Chapter.ID, schema.Book.OwnerUserID,
	)

	var chapter Chapter
	err := postgres.AsUser(ctx, store.pool, ownerID, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, query, chapterID, ownerID).Scan(
			&chapter.ID,
			&chapter.BookID,
			&chapter.Idx,
			&chapter.Title,
			&chapter.Content,
			&chapter.WordCount,
		)
		if err != nil {
			if err == pgx.ErrNoRows {
				return apperr.NotFound("chapter")
			}
			return fmt.Errorf("postgres: failed to find chapter: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &chapter, nil
}

/*
FindPosition returns the saved reading position for one book.
*/
func (store *pgStore) FindPosition(ctx context.Context, ownerID, bookID string) (*Position, error) {

	query := fmt.Sprintf(`
		SELECT %s, %s, %s, %s
		FROM %s
		WHERE %s = $1 AND %s = $2
	`,
		schema.ReadingPosition.BookID, schema.ReadingPosition.ChapterID,
		schema.ReadingPosition.Offset, schema.ReadingPosition.UpdatedAt,
		schema.ReadingPosition.Table,
		schema.ReadingPosition.OwnerUserID, schema.ReadingPosition.BookID,
	)

	var position Position
	err := postgres.AsUser(ctx, store.pool, ownerID, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, query, ownerID, bookID).Scan(
			&position.BookID,
			&position.ChapterID,
			&position.Offset,
			&position.UpdatedAt,
		)
		if err != nil {
			if err == pgx.ErrNoRows {
				return apperr.NotFound("reading position")
			}
			return fmt.Errorf("postgres: failed to find reading position: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &position, nil
}

/*
UpsertPosition saves the reading position for one book.

Description: ON CONFLICT keyed on (owner, book) means saving from two devices
resolves to last-writer-wins, which is the expected sync behavior.
*/
func (store *pgStore) UpsertPosition(ctx context.Context, ownerID string, position *Position) error {

	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (%s, %s) DO UPDATE
		SET %s = EXCLUDED.%s, %s = EXCLUDED.%s, %s = NOW()
	`,
		schema.ReadingPosition.Table,
		schema.ReadingPosition.OwnerUserID, schema.ReadingPosition.BookID,
		schema.ReadingPosition.ChapterID, schema.ReadingPosition.Offset, schema.ReadingPosition.UpdatedAt,
		schema.ReadingPosition.OwnerUserID, schema.ReadingPosition.BookID,
		schema.ReadingPosition.ChapterID, schema.ReadingPosition.ChapterID,
		schema.ReadingPosition.Offset, schema.ReadingPosition.Offset,
		schema.ReadingPosition.UpdatedAt,
	)

	return postgres.AsUser(ctx, store.pool, ownerID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query, ownerID, position.BookID, position.ChapterID, position.Offset)
		if err != nil {
			return fmt.Errorf("postgres: failed to upsert reading position: %w", err)
		}
		return nil
	})
}
