// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package dialog

import "context"

// Store defines the persistence contract for dialog history.
type Store interface {
	// AppendMessage persists one turn under the owner's row-security
	// identity.
	AppendMessage(ctx context.Context, message *Message) error

	// History returns a page of a book's dialog, oldest first, including
	// incomplete assistant turns.
	History(ctx context.Context, ownerID, bookID string, limit, offset int) ([]*Message, int, error)

	// RecentTurns returns the last n completed turns, oldest first, for
	// conversation context assembly.
	RecentTurns(ctx context.Context, ownerID, bookID string, n int) ([]*Message, error)
}
