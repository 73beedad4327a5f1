// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package validate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/flowreader/internal/platform/validate"
)

/*
TestSanitize exercises the HTML stripping rules on user text.
*/
func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain_text_untouched", "Call me Ishmael.", "Call me Ishmael."},
		{"trims_whitespace", "  note text  ", "note text"},
		{"drops_tags_keeps_text", "<b>bold</b> claim", "bold claim"},
		{"script_content_removed", `before<script>alert("x")</script>after`, "beforeafter"},
		{"style_content_removed", "<style>body{}</style>text", "text"},
		{"nested_script", "<script><script>x</script></script>ok", "ok"},
		{"event_handler_gone", `<img onerror="steal()">caption`, "caption"},
		{"iframe_dropped", `<iframe src="javascript:x">framed</iframe>rest`, "rest"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, validate.Sanitize(tt.input))
		})
	}
}

/*
TestNormalizeFileName checks the storage-safe name derivation.
*/
func TestNormalizeFileName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "moby-dick.epub", "moby-dick.epub"},
		{"separators_replaced", `books/2026\q1:moby.epub`, "books_2026_q1_moby.epub"},
		{"control_chars_replaced", "moby\x00dick.epub", "moby_dick.epub"},
		{"fullwidth_normalized", "ｍｏｂｙ.epub", "moby.epub"},
		{"outer_space_trimmed", " moby.epub ", "moby.epub"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, validate.NormalizeFileName(tt.input))
		})
	}
}
