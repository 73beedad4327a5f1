// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package schema

// TaskTable represents the 'tasks' table backing ingest status queries.
type TaskTable struct {
	Table       string
	ID          string
	OwnerUserID string
	BookID      string
	State       string
	Progress    string
	ErrorKind   string
	CreatedAt   string
	UpdatedAt   string
}

// Task is the schema definition for tasks.
var Task = TaskTable{
	Table:       "tasks",
	ID:          "id",
	OwnerUserID: "owner_user_id",
	BookID:      "book_id",
	State:       "state",
	Progress:    "progress",
	ErrorKind:   "error_kind",
	CreatedAt:   "created_at",
	UpdatedAt:   "updated_at",
}

// SecurityEventTable represents the append-only 'security_events' table.
type SecurityEventTable struct {
	Table     string
	ID        string
	Kind      string
	UserID    string
	SourceIP  string
	Endpoint  string
	Detail    string
	CreatedAt string
}

// SecurityEvent is the schema definition for security_events.
var SecurityEvent = SecurityEventTable{
	Table:     "security_events",
	ID:        "id",
	Kind:      "kind",
	UserID:    "user_id",
	SourceIP:  "source_ip",
	Endpoint:  "endpoint",
	Detail:    "detail",
	CreatedAt: "created_at",
}

// ReadingPositionTable represents the 'reading_positions' table.
type ReadingPositionTable struct {
	Table       string
	OwnerUserID string
	BookID      string
	ChapterID   string
	Offset      string
	UpdatedAt   string
}

// ReadingPosition is the schema definition for reading_positions.
var ReadingPosition = ReadingPositionTable{
	Table:       "reading_positions",
	OwnerUserID: "owner_user_id",
	BookID:      "book_id",
	ChapterID:   "chapter_id",
	Offset:      "chapter_offset",
	UpdatedAt:   "updated_at",
}
