// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package validate

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// Sanitize strips active HTML from user text destined for storage or display.
//
// # Behavior
//
// Script and style elements are removed together with their contents; all
// other tags are dropped but their text is preserved. Event-handler
// attributes and javascript: URLs disappear with the tags that carried them.
// Plain text passes through unchanged apart from whitespace at the ends.
func Sanitize(input string) string {
	if !strings.ContainsRune(input, '<') {
		return strings.TrimSpace(input)
	}

	var builder strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(input))

	// Depth of nested <script>/<style> elements currently being skipped.
	skipDepth := 0

	for {
		tokenType := tokenizer.Next()
		switch tokenType {
		case html.ErrorToken:
			return strings.TrimSpace(builder.String())

		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if isActiveElement(string(name)) {
				skipDepth++
			}

		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if isActiveElement(string(name)) && skipDepth > 0 {
				skipDepth--
			}

		case html.TextToken:
			if skipDepth == 0 {
				builder.Write(tokenizer.Text())
			}
		}
	}
}

// isActiveElement reports whether the element's content must be dropped, not
// just its tags.
func isActiveElement(name string) bool {
	switch strings.ToLower(name) {
	case "script", "style", "iframe", "object", "embed":
		return true
	}
	return false
}

// NormalizeFileName produces a storage-safe file name from user input.
//
// The name is NFKC-normalized, control characters and separators are replaced
// with underscores, and the result is length-capped. The extension survives
// untouched so the upload validator can still check it.
func NormalizeFileName(input string) string {
	normalized := norm.NFKC.String(input)

	var builder strings.Builder
	for _, r := range normalized {
		switch {
		case r < 0x20 || r == 0x7f:
			builder.WriteRune('_')
		case r == '/' || r == '\\' || r == ':':
			builder.WriteRune('_')
		default:
			builder.WriteRune(r)
		}
	}

	cleaned := strings.TrimSpace(builder.String())
	if len(cleaned) > 255 {
		cleaned = cleaned[len(cleaned)-255:]
	}
	return cleaned
}
