// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package constants provides centralized, immutable values for the entire platform.

It defines default timeouts, rate limits, and cross-cutting keys that are shared
between different layers of the system.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the HTTP server.
  - Rate Limiting: Per-endpoint-class windows and caps.
  - Ingestion: Upload size ceilings and parser safety limits.
  - Inference: Retrieval, cache, and token budget defaults.

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the business logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "flowreader-api"
	AppVersion = "0.3.0"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the
	// response. It must exceed StreamRequestTimeout or SSE responses get cut off.
	DefaultWriteTimeout = 35 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for simple (non-streaming) endpoints.
	GlobalRequestTimeout = 10 * time.Second

	// StreamRequestTimeout is the wall-clock ceiling for a streaming dialog response.
	StreamRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Rate Limiting
//
// Each authenticated endpoint belongs to exactly one class. Counters persist
// in Redis; the IP-level bucket in middleware is a coarse outer guard only.

const (
	// RateClassAuth tracks failed authentications per source.
	RateClassAuth = "auth"
	// RateClassUpload covers signed-URL issuance and ingest triggering.
	RateClassUpload = "upload"
	// RateClassChat covers streaming dialog.
	RateClassChat = "chat"
	// RateClassAutoNote covers automatic note generation.
	RateClassAutoNote = "auto-note"
	// RateClassAPI is the default class for all other endpoints.
	RateClassAPI = "api"
)

const (
	// RateLimitStoreTimeout bounds every counter-store round trip. On expiry
	// the limiter fails open and records a security event.
	RateLimitStoreTimeout = 100 * time.Millisecond

	// DefaultRateLimitRPS is the requests per second allowed per IP.
	DefaultRateLimitRPS = 100.0

	// DefaultRateLimitBurst is the maximum burst allowed for the IP limiter.
	DefaultRateLimitBurst = 150

	// RateLimitCleanupInterval is how often old IP entries are removed from memory.
	RateLimitCleanupInterval = 1 * time.Minute

	// RateLimitClientTTL is how long a client must be idle before its entry is deleted.
	RateLimitClientTTL = 3 * time.Minute
)

// # Ingestion & Parsing

const (
	// DefaultMaxUploadBytes is the ceiling for a single EPUB upload (100 MB).
	DefaultMaxUploadBytes = 100 << 20

	// SignedURLTTL is the validity window of a presigned upload URL.
	SignedURLTTL = 15 * time.Minute

	// ParseTimeout bounds the CPU-heavy EPUB parse step of the pipeline.
	ParseTimeout = 120 * time.Second

	// MaxEPUBEntries caps the number of archive entries, guarding against
	// pathological zips.
	MaxEPUBEntries = 2048

	// MaxChapterBytes caps a single decompressed chapter document.
	MaxChapterBytes = 4 << 20

	// MaxDecompressedBytes caps total decompressed output (zip-bomb guard).
	MaxDecompressedBytes = 512 << 20

	// IngestWorkerCount is the number of concurrent pipeline workers.
	IngestWorkerCount = 2

	// IngestQueueDepth is the capacity of the in-process task channel.
	IngestQueueDepth = 64
)

// # Inference Defaults

const (
	// RetrievalTopKInitial is the over-retrieval breadth.
	RetrievalTopKInitial = 8
	// RetrievalTopKFinal is the number of passages assembled into the prompt.
	RetrievalTopKFinal = 3
	// RetrievalSimilarityFloor drops weakly related chunks.
	RetrievalSimilarityFloor = 0.75
	// RetrievalDedupThreshold drops near-duplicate chunks.
	RetrievalDedupThreshold = 0.90
	// RetrievalRelativeDelta is subtracted from the top score to form the
	// relative relevance floor.
	RetrievalRelativeDelta = 0.15
	// RetrievalTokenBudget caps the context portion of the prompt.
	RetrievalTokenBudget = 1500

	// ResponseCacheTTL is how long a cached completion stays servable.
	ResponseCacheTTL = 15 * time.Minute
	// ResponseCacheSize bounds the LRU.
	ResponseCacheSize = 512
	// SemanticHitThreshold is the cosine floor for a semantic cache hit.
	SemanticHitThreshold = 0.95

	// EmbeddingCacheTTL deduplicates repeated embedding inputs.
	EmbeddingCacheTTL = 1 * time.Hour
	// EmbeddingBatchSize is the max texts per provider call.
	EmbeddingBatchSize = 16
	// EmbeddingMaxAttempts caps retries for transient provider failures.
	EmbeddingMaxAttempts = 3

	// LLMMaxRetries is the retry budget for transient chat-completion failures.
	LLMMaxRetries = 2
	// LLMRetryBaseDelay is the starting backoff delay.
	LLMRetryBaseDelay = 500 * time.Millisecond

	// ChunkTokenWindow is the approximate token size of an embedding chunk.
	ChunkTokenWindow = 1000
	// ChunkOverlapChars is the character overlap between adjacent chunks.
	ChunkOverlapChars = 200

	// DialogSummaryWindow is how many recent messages feed a dialog summary.
	DialogSummaryWindow = 10

	// ConfidenceGate is the minimum confidence for an auto note to be
	// persisted without a fallback marker.
	ConfidenceGate = 0.6
)

// # Input Limits

const (
	// MaxSelectionChars bounds a text selection sent with a chat or note request.
	MaxSelectionChars = 1000
	// MaxNoteContentChars bounds manual note bodies.
	MaxNoteContentChars = 4000
	// MaxQueryChars bounds a dialog query.
	MaxQueryChars = 1000
	// MaxFileNameChars bounds an uploaded file name.
	MaxFileNameChars = 255
)

// # HTTP Headers

const (
	HeaderXRequestID    = "X-Request-ID"
	HeaderXRealIP       = "X-Real-IP"
	HeaderXForwardedFor = "X-Forwarded-For"
	HeaderOrigin        = "Origin"
	HeaderRetryAfter    = "Retry-After"
	HeaderRateLimit     = "X-RateLimit-Limit"
	HeaderRateRemaining = "X-RateLimit-Remaining"
	HeaderRateReset     = "X-RateLimit-Reset"
)

// # Authentication

const (
	// AuthIssuer is the expected 'iss' claim in bearer tokens.
	AuthIssuer = "flowreader.app"
)

// # JSON Field Identifiers

const (
	FieldData       = "data"
	FieldMeta       = "meta"
	FieldError      = "error"
	FieldCode       = "code"
	FieldDetails    = "details"
	FieldItems      = "items"
	FieldTotal      = "total"
	FieldMessage    = "message"
	FieldMessages   = "messages"
	FieldPagination = "pagination"
	FieldStatus     = "status"
)
