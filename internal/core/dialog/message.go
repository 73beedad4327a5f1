// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package dialog implements the streaming reading companion.

A dialog turn embeds the reader's question, retrieves grounding passages
from the book, and streams a model reply over Server-Sent Events. Completed
replies land in the response cache so an identical question (from the same
reader, against the same grounding) is answered without touching the model;
concurrent identical questions collapse into one upstream build.

Every turn, including ones cut short by disconnects, persists to the
per-book history. Truncated turns are marked incomplete rather than hidden.
*/
package dialog

import (
	"time"

	"github.com/taibuivan/flowreader/internal/ai/policy"
)

// Role identifies the author of a history message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a book's dialog history.
type Message struct {
	ID          string        `json:"id"`
	BookID      string        `json:"bookId"`
	OwnerUserID string        `json:"-"`
	Role        Role          `json:"role"`
	Content     string        `json:"content"`
	Intent      policy.Intent `json:"intent"`

	// Completed is false for assistant turns cut off by an error or a
	// client disconnect; their partial content is retained.
	Completed bool `json:"completed"`

	Tokens     int64     `json:"tokens,omitempty"`
	CostMicros int64     `json:"costMicros,omitempty"`
	LatencyMs  int64     `json:"latencyMs,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
