// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ingest

import "github.com/taibuivan/flowreader/internal/platform/constants"

// Chunk is one embedding window over a chapter, with character spans back
// into the chapter content.
type Chunk struct {
	Ordinal   int
	SpanStart int
	SpanEnd   int
	Text      string
}

// chunkWindowChars approximates the token window in characters.
const chunkWindowChars = constants.ChunkTokenWindow * 4

/*
ChunkChapter splits chapter text into overlapping embedding windows.

Description: Windows are chunkWindowChars wide with ChunkOverlapChars of
overlap so a sentence straddling a boundary appears whole in at least one
chunk. Spans are character (rune) offsets: the retrieval store reconstructs
chunk text with SQL substr, which also counts characters.

Parameters:
  - content: string (Plain chapter text)

Returns:
  - []Chunk: At least one chunk for non-empty content, in span order
*/
func ChunkChapter(content string) []Chunk {
	runes := []rune(content)
	if len(runes) == 0 {
		return nil
	}

	step := chunkWindowChars - constants.ChunkOverlapChars

	var chunks []Chunk
	for start := 0; start < len(runes); start += step {
		end := start + chunkWindowChars
		if end > len(runes) {
			end = len(runes)
		}

		chunks = append(chunks, Chunk{
			Ordinal:   len(chunks),
			SpanStart: start,
			SpanEnd:   end,
			Text:      string(runes[start:end]),
		})

		if end == len(runes) {
			break
		}
	}

	return chunks
}
