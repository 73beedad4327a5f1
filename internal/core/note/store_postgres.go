// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package note

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/flowreader/internal/ai/policy"
	"github.com/taibuivan/flowreader/internal/platform/apperr"
	"github.com/taibuivan/flowreader/internal/platform/database/schema"
	"github.com/taibuivan/flowreader/internal/platform/postgres"
)

// # PostgreSQL Repository

// pgStore implements [Store] using pgx.
type pgStore struct {
	pool *pgxpool.Pool
}

// NewStore constructs a PostgreSQL backed note store.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

// noteColumns is the scan list shared by every note-returning query.
func noteColumns(prefix string) string {
	columns := []string{
		schema.Note.ID, schema.Note.BookID, schema.Note.ChapterID,
		schema.Note.SelectionText, schema.Note.SelectionStart, schema.Note.SelectionEnd,
		schema.Note.Content, schema.Note.Source, schema.Note.Tags,
		schema.Note.Intent, schema.Note.GenerationMethod,
		schema.Note.Confidence, schema.Note.QualityScore, schema.Note.ProcessingInfo,
		schema.Note.CreatedAt,
	}
	for i, column := range columns {
		columns[i] = prefix + column
	}
	return strings.Join(columns, ", ")
}

// scanNote hydrates one note row, reassembling the nullable selection.
func scanNote(row pgx.Row, ownerID string, extra ...any) (*Note, error) {
	note := Note{OwnerUserID: ownerID}

	var (
		selectionText  *string
		selectionStart *int
		selectionEnd   *int
		intent         *string
		method         *string
		targets        = []any{
			&note.ID, &note.BookID, &note.ChapterID,
			&selectionText, &selectionStart, &selectionEnd,
			&note.Content, &note.Source, &note.Tags,
			&intent, &method,
			&note.Meta.Confidence, &note.Meta.QualityScore, &note.Meta.ProcessingInfo,
			&note.CreatedAt,
		}
	)
	targets = append(targets, extra...)

	if err := row.Scan(targets...); err != nil {
		return nil, err
	}

	if selectionText != nil {
		note.Selection = &Selection{Text: *selectionText}
		if selectionStart != nil {
			note.Selection.Start = *selectionStart
		}
		if selectionEnd != nil {
			note.Selection.End = *selectionEnd
		}
	}
	if intent != nil {
		note.Meta.Intent = policy.Intent(*intent)
	}
	if method != nil {
		note.Meta.GenerationMethod = GenerationMethod(*method)
	}
	if note.Tags == nil {
		note.Tags = []string{}
	}
	return &note, nil
}

/*
Create persists one note.

Description: Runs under the owner's row-security identity. The search vector
is a generated column; it never appears in the insert list.
*/
func (store *pgStore) Create(ctx context.Context, note *Note) error {
	return postgres.AsUser(ctx, store.pool, note.OwnerUserID, func(tx pgx.Tx) error {
		query := fmt.Sprintf(`
			INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		`,
			schema.Note.Table,
			schema.Note.ID, schema.Note.OwnerUserID, schema.Note.BookID, schema.Note.ChapterID,
			schema.Note.SelectionText, schema.Note.SelectionStart, schema.Note.SelectionEnd,
			schema.Note.Content, schema.Note.Source, schema.Note.Tags,
			schema.Note.Intent, schema.Note.GenerationMethod,
			schema.Note.Confidence, schema.Note.QualityScore, schema.Note.ProcessingInfo,
		)

		var selectionText *string
		var selectionStart, selectionEnd *int
		if note.Selection != nil {
			selectionText = &note.Selection.Text
			selectionStart = &note.Selection.Start
			selectionEnd = &note.Selection.End
		}

		_, err := tx.Exec(ctx, query,
			note.ID,
			note.OwnerUserID,
			note.BookID,
			note.ChapterID,
			selectionText,
			selectionStart,
			selectionEnd,
			note.Content,
			note.Source,
			note.Tags,
			nullIfEmpty(string(note.Meta.Intent)),
			nullIfEmpty(string(note.Meta.GenerationMethod)),
			note.Meta.Confidence,
			note.Meta.QualityScore,
			note.Meta.ProcessingInfo,
		)
		if err != nil {
			return fmt.Errorf("postgres: failed to create note: %w", err)
		}
		return nil
	})
}

/*
FindByID returns one of the owner's notes.
*/
func (store *pgStore) FindByID(ctx context.Context, ownerID, noteID string) (*Note, error) {

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE %s = $1 AND %s = $2
	`,
		noteColumns(""),
		schema.Note.Table,
		schema.Note.ID, schema.Note.OwnerUserID,
	)

	var note *Note
	err := postgres.AsUser(ctx, store.pool, ownerID, func(tx pgx.Tx) error {
		found, err := scanNote(tx.QueryRow(ctx, query, noteID, ownerID), ownerID)
		if err != nil {
			if err == pgx.ErrNoRows {
				return apperr.NotFound("note")
			}
			return fmt.Errorf("postgres: failed to find note: %w", err)
		}
		note = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}

/*
Delete removes one of the owner's notes.
*/
func (store *pgStore) Delete(ctx context.Context, ownerID, noteID string) error {
	return postgres.AsUser(ctx, store.pool, ownerID, func(tx pgx.Tx) error {
		query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND %s = $2`,
			schema.Note.Table, schema.Note.ID, schema.Note.OwnerUserID)

		result, err := tx.Exec(ctx, query, noteID, ownerID)
		if err != nil {
			return fmt.Errorf("postgres: failed to delete note: %w", err)
		}
		if result.RowsAffected() == 0 {
			return apperr.NotFound("note")
		}
		return nil
	})
}

/*
Search runs the discovery query.

Description: Filters combine with AND; the full-text predicate runs against
the generated search vector. The window function supplies the total count in
the same round-trip.
*/
func (store *pgStore) Search(ctx context.Context, ownerID string, q SearchQuery) ([]*Note, int, error) {
	query, args := buildSearch(ownerID, q)

	var notes []*Note
	var totalCount int

	err := postgres.AsUser(ctx, store.pool, ownerID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("postgres: failed to search notes: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			note, err := scanNote(rows, ownerID, &totalCount)
			if err != nil {
				return fmt.Errorf("postgres: failed to scan note: %w", err)
			}
			notes = append(notes, note)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}

	return notes, totalCount, nil
}

// # Search SQL Assembly

/*
buildSearch assembles the discovery SQL and its arguments.

Description: Single bare terms get prefix matching via to_tsquery with a
':*' suffix; anything longer goes through websearch_to_tsquery, which
understands quoted phrases and negation. Relevance ordering reuses the same
tsquery argument for ts_rank.
*/
func buildSearch(ownerID string, q SearchQuery) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	arg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions = append(conditions, fmt.Sprintf("%s = %s", schema.Note.OwnerUserID, arg(ownerID)))

	if q.BookID != "" {
		conditions = append(conditions, fmt.Sprintf("%s = %s", schema.Note.BookID, arg(q.BookID)))
	}
	if q.ChapterID != "" {
		conditions = append(conditions, fmt.Sprintf("%s = %s", schema.Note.ChapterID, arg(q.ChapterID)))
	}
	if q.Source != "" && q.Source.Valid() {
		conditions = append(conditions, fmt.Sprintf("%s = %s", schema.Note.Source, arg(string(q.Source))))
	}
	if q.Intent != "" {
		conditions = append(conditions, fmt.Sprintf("%s = %s", schema.Note.Intent, arg(q.Intent)))
	}
	if len(q.Tags) > 0 {
		conditions = append(conditions, fmt.Sprintf("%s @> %s", schema.Note.Tags, arg(q.Tags)))
	}
	if q.MinConfidence != nil {
		conditions = append(conditions, fmt.Sprintf("%s >= %s", schema.Note.Confidence, arg(*q.MinConfidence)))
	}
	if q.CreatedAfter != nil {
		conditions = append(conditions, fmt.Sprintf("%s >= %s", schema.Note.CreatedAt, arg(*q.CreatedAfter)))
	}
	if q.CreatedBefore != nil {
		conditions = append(conditions, fmt.Sprintf("%s <= %s", schema.Note.CreatedAt, arg(*q.CreatedBefore)))
	}

	tsquery := ""
	if q.Query != "" {
		term := q.Query
		builder := "websearch_to_tsquery"
		if !strings.ContainsAny(term, " \t\"-") {
			builder = "to_tsquery"
			term += ":*"
		}
		tsquery = fmt.Sprintf("%s('english', %s)", builder, arg(term))
		conditions = append(conditions, fmt.Sprintf("%s @@ %s", schema.Note.SearchVector, tsquery))
	}

	direction := "ASC"
	if q.Descending {
		direction = "DESC"
	}

	var orderBy string
	switch q.Sort {
	case SortConfidence:
		orderBy = schema.Note.Confidence + " " + direction
	case SortContentLength:
		orderBy = fmt.Sprintf("char_length(%s) %s", schema.Note.Content, direction)
	case SortRelevance:
		if tsquery != "" {
			orderBy = fmt.Sprintf("ts_rank(%s, %s) %s", schema.Note.SearchVector, tsquery, direction)
			break
		}
		// Relevance without a query degrades to recency.
		orderBy = schema.Note.CreatedAt + " DESC"
	default:
		orderBy = schema.Note.CreatedAt + " " + direction
	}

	query := fmt.Sprintf(`
		SELECT
			%s,
			COUNT(*) OVER() AS total_count
		FROM %s
		WHERE %s
		ORDER BY %s
		LIMIT %s OFFSET %s
	`,
		noteColumns(""),
		schema.Note.Table,
		strings.Join(conditions, " AND "),
		orderBy,
		arg(q.Limit), arg(q.Offset),
	)

	return query, args
}

// nullIfEmpty maps the empty string to SQL NULL.
func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
