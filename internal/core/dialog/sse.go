// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package dialog

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// # Server-Sent Events
//
// A dialog stream emits events in a fixed order:
//
//	session → sources → token* → usage → (done | error)
//
// The error event replaces done when the reply was cut short; any tokens
// already sent remain valid partial content.

const (
	EventSession = "session"
	EventSources = "sources"
	EventToken   = "token"
	EventUsage   = "usage"
	EventDone    = "done"
	EventError   = "error"
)

// SessionEvent opens a stream and names the assistant message being built.
type SessionEvent struct {
	MessageID string `json:"messageId"`
}

// SourceRef points at one grounding passage.
type SourceRef struct {
	ChapterIdx   int     `json:"chapterIdx"`
	ChapterTitle string  `json:"chapterTitle"`
	Similarity   float64 `json:"similarity"`
}

// TokenEvent carries one streamed content delta.
type TokenEvent struct {
	Text string `json:"text"`
}

// UsageEvent reports the turn's accounting before the stream closes.
type UsageEvent struct {
	PromptTokens     int64  `json:"promptTokens"`
	CompletionTokens int64  `json:"completionTokens"`
	CostMicros       int64  `json:"costMicros"`
	Cached           bool   `json:"cached"`
	CacheSource      string `json:"cacheSource,omitempty"`
}

// ErrorEvent terminates a stream that cannot complete.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StreamWriter serializes SSE frames onto an HTTP response.
//
// Writes after the client disconnects fail silently; the caller watches the
// request context instead.
type StreamWriter struct {
	writer  io.Writer
	flusher http.Flusher
}

// NewStreamWriter prepares the response for streaming and returns the
// writer. Responds with an error when the transport cannot flush.
func NewStreamWriter(writer http.ResponseWriter) (*StreamWriter, error) {
	flusher, ok := writer.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("dialog: response writer does not support streaming")
	}

	header := writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-store")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &StreamWriter{writer: writer, flusher: flusher}, nil
}

// Send writes one named event with a JSON payload and flushes it.
func (stream *StreamWriter) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("dialog: failed to marshal %s event: %w", event, err)
	}

	if _, err := fmt.Fprintf(stream.writer, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	stream.flusher.Flush()
	return nil
}
