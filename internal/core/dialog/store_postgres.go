// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package dialog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/flowreader/internal/platform/database/schema"
	"github.com/taibuivan/flowreader/internal/platform/postgres"
)

// # PostgreSQL Repository

// pgStore implements [Store] using pgx.
type pgStore struct {
	pool *pgxpool.Pool
}

// NewStore constructs a PostgreSQL backed dialog store.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

/*
AppendMessage persists one dialog turn.

Description: Runs under the caller's row-security identity; the policy on
dialog_messages rejects writes for any other owner.
*/
func (store *pgStore) AppendMessage(ctx context.Context, message *Message) error {
	return postgres.AsUser(ctx, store.pool, message.OwnerUserID, func(tx pgx.Tx) error {
		query := fmt.Sprintf(`
			INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			schema.DialogMessage.Table,
			schema.DialogMessage.ID, schema.DialogMessage.BookID, schema.DialogMessage.OwnerUserID,
			schema.DialogMessage.Role, schema.DialogMessage.Content, schema.DialogMessage.Intent,
			schema.DialogMessage.Completed, schema.DialogMessage.Tokens,
			schema.DialogMessage.CostMicros, schema.DialogMessage.LatencyMs,
		)

		_, err := tx.Exec(ctx, query,
			message.ID,
			message.BookID,
			message.OwnerUserID,
			message.Role,
			message.Content,
			message.Intent,
			message.Completed,
			message.Tokens,
			message.CostMicros,
			message.LatencyMs,
		)
		if err != nil {
			return fmt.Errorf("postgres: failed to append dialog message: %w", err)
		}
		return nil
	})
}

/*
History returns a page of a book's dialog, oldest first.

Description: Incomplete assistant turns are included; the completed flag
lets clients render them as interrupted.
*/
func (store *pgStore) History(ctx context.Context, ownerID, bookID string, limit, offset int) ([]*Message, int, error) {

	query := fmt.Sprintf(`
		SELECT
			%s, %s, %s, %s, %s, %s, %s, %s, %s,
			COUNT(*) OVER() AS total_count
		FROM %s
		WHERE %s = $1 AND %s = $2
		ORDER BY %s ASC
		LIMIT $3 OFFSET $4
	`,
		schema.DialogMessage.ID, schema.DialogMessage.BookID, schema.DialogMessage.Role,
		schema.DialogMessage.Content, schema.DialogMessage.Intent, schema.DialogMessage.Completed,
		schema.DialogMessage.Tokens, schema.DialogMessage.CostMicros, schema.DialogMessage.CreatedAt,
		schema.DialogMessage.Table,
		schema.DialogMessage.OwnerUserID, schema.DialogMessage.BookID,
		schema.DialogMessage.CreatedAt,
	)

	var messages []*Message
	var totalCount int

	err := postgres.AsUser(ctx, store.pool, ownerID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, ownerID, bookID, limit, offset)
		if err != nil {
			return fmt.Errorf("postgres: failed to list dialog history: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			message := Message{OwnerUserID: ownerID}
			err := rows.Scan(
				&message.ID,
				&message.BookID,
				&message.Role,
				&message.Content,
				&message.Intent,
				&message.Completed,
				&message.Tokens,
				&message.CostMicros,
				&message.CreatedAt,
				&totalCount,
			)
			if err != nil {
				return fmt.Errorf("postgres: failed to scan dialog message: %w", err)
			}
			messages = append(messages, &message)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}

	return messages, totalCount, nil
}

/*
RecentTurns returns the last n completed turns, oldest first.
*/
func (store *pgStore) RecentTurns(ctx context.Context, ownerID, bookID string, n int) ([]*Message, error) {

	// Fetch newest-first, then reverse for prompt assembly order.
	query := fmt.Sprintf(`
		SELECT %s, %s, %s, %s
		FROM %s
		WHERE %s = $1 AND %s = $2 AND %s = TRUE
		ORDER BY %s DESC
		LIMIT $3
	`,
		schema.DialogMessage.ID, schema.DialogMessage.Role,
		schema.DialogMessage.Content, schema.DialogMessage.CreatedAt,
		schema.DialogMessage.Table,
		schema.DialogMessage.OwnerUserID, schema.DialogMessage.BookID, schema.DialogMessage.Completed,
		schema.DialogMessage.CreatedAt,
	)

	var messages []*Message
	err := postgres.AsUser(ctx, store.pool, ownerID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, ownerID, bookID, n)
		if err != nil {
			return fmt.Errorf("postgres: failed to list recent turns: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			message := Message{OwnerUserID: ownerID, BookID: bookID, Completed: true}
			if err := rows.Scan(&message.ID, &message.Role, &message.Content, &message.CreatedAt); err != nil {
				return fmt.Errorf("postgres: failed to scan recent turn: %w", err)
			}
			messages = append(messages, &message)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
