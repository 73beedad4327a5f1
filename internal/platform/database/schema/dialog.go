// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package schema

// DialogMessageTable represents the 'dialog_messages' table.
type DialogMessageTable struct {
	Table       string
	ID          string
	BookID      string
	OwnerUserID string
	Role        string
	Content     string
	Intent      string
	Completed   string
	Tokens      string
	CostMicros  string
	LatencyMs   string
	CreatedAt   string
}

// DialogMessage is the schema definition for dialog_messages.
var DialogMessage = DialogMessageTable{
	Table:       "dialog_messages",
	ID:          "id",
	BookID:      "book_id",
	OwnerUserID: "owner_user_id",
	Role:        "role",
	Content:     "content",
	Intent:      "intent",
	Completed:   "completed",
	Tokens:      "tokens",
	CostMicros:  "cost_micros",
	LatencyMs:   "latency_ms",
	CreatedAt:   "created_at",
}
