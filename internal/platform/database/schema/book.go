// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package schema is the central registry of table and column names.
//
// Queries reference these definitions instead of string literals so a rename
// is a one-file change and a typo is a compile error.
package schema

// BookTable represents the 'books' table.
type BookTable struct {
	Table        string
	ID           string
	OwnerUserID  string
	Title        string
	Author       string
	UploadKey    string
	Status       string
	FailureKind  string
	ChapterCount string
	CreatedAt    string
	UpdatedAt    string
}

// Book is the schema definition for books.
var Book = BookTable{
	Table:        "books",
	ID:           "id",
	OwnerUserID:  "owner_user_id",
	Title:        "title",
	Author:       "author",
	UploadKey:    "upload_key",
	Status:       "status",
	FailureKind:  "failure_kind",
	ChapterCount: "chapter_count",
	CreatedAt:    "created_at",
	UpdatedAt:    "updated_at",
}

func (t BookTable) Columns() []string {
	return []string{
		t.ID, t.OwnerUserID, t.Title, t.Author, t.UploadKey, t.Status,
		t.FailureKind, t.ChapterCount, t.CreatedAt, t.UpdatedAt,
	}
}
