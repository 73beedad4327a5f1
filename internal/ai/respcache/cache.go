// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package respcache caches completed dialog replies per user and book.

Two lookup paths serve a request:

  - Exact: a fingerprint over (user, book, intent, normalized query, tier,
    context signature).
  - Semantic: among entries for the same user, book, intent, and context
    signature, a query whose embedding is nearly identical to a cached one
    reuses that reply.

The cache is a process-wide TTL'd LRU. Entries are only written for fully
completed replies, and a singleflight group collapses concurrent identical
builds so one upstream call serves every simultaneous asker.
*/
package respcache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/taibuivan/flowreader/internal/ai/policy"
	"github.com/taibuivan/flowreader/internal/ai/retrieval"
	"github.com/taibuivan/flowreader/internal/platform/constants"
	"github.com/taibuivan/flowreader/internal/platform/metrics"
)

// # Keys

// Key identifies one cacheable dialog request.
type Key struct {
	UserID           string
	BookID           string
	Intent           policy.Intent
	Query            string
	Tier             policy.Tier
	ContextSignature string
}

// NormalizeQuery canonicalizes a query for fingerprinting: lower-cased with
// whitespace runs collapsed. Punctuation is kept; "what's this?" and
// "whats this" are different questions.
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// Fingerprint derives the exact-match cache key.
func (key Key) Fingerprint() string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		key.UserID,
		key.BookID,
		string(key.Intent),
		NormalizeQuery(key.Query),
		string(key.Tier),
		key.ContextSignature,
	}, "|")))
	return hex.EncodeToString(sum[:])
}

// scopeKey groups entries eligible for semantic matching.
func (key Key) scopeKey() string {
	return strings.Join([]string{key.UserID, key.BookID, string(key.Intent), string(key.Tier), key.ContextSignature}, "|")
}

// # Entries

// Entry is one cached completed reply.
type Entry struct {
	Reply       string
	Passages    []retrieval.Passage
	QueryVector []float32
}

type cacheItem struct {
	fingerprint string
	scope       string
	entry       Entry
	expiresAt   time.Time
}

// Source describes how a lookup was satisfied.
type Source string

const (
	SourceExact    Source = "exact"
	SourceSemantic Source = "semantic"
)

// # Cache

// Cache is the process-wide response cache. Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	order    *list.List               // front = most recent
	byKey    map[string]*list.Element // fingerprint → element
	byScope  map[string][]*list.Element
	capacity int
	ttl      time.Duration
	disabled bool
	now      func() time.Time

	flight singleflight.Group
}

// New builds a cache with the platform defaults. A disabled cache accepts
// every call and caches nothing, so callers never branch.
func New(disabled bool) *Cache {
	return &Cache{
		order:    list.New(),
		byKey:    make(map[string]*list.Element),
		byScope:  make(map[string][]*list.Element),
		capacity: constants.ResponseCacheSize,
		ttl:      constants.ResponseCacheTTL,
		disabled: disabled,
		now:      time.Now,
	}
}

/*
Get looks up a reply, trying the exact fingerprint first and then a semantic
match within the same scope.

Parameters:
  - key: Key
  - queryVector: []float32 (nil skips the semantic path)

Returns:
  - Entry: The cached reply on a hit
  - Source: exact or semantic
  - bool: Whether anything was found
*/
func (cache *Cache) Get(key Key, queryVector []float32) (Entry, Source, bool) {
	if cache.disabled {
		return Entry{}, "", false
	}

	cache.mu.Lock()
	defer cache.mu.Unlock()

	now := cache.now()

	// ── 1. Exact ──────────────────────────────────────────────────────────
	if element, ok := cache.byKey[key.Fingerprint()]; ok {
		item := element.Value.(*cacheItem)
		if now.Before(item.expiresAt) {
			cache.order.MoveToFront(element)
			metrics.CacheHits.WithLabelValues(string(SourceExact)).Inc()
			return item.entry, SourceExact, true
		}
		cache.remove(element)
	}

	// ── 2. Semantic ───────────────────────────────────────────────────────
	if queryVector != nil {
		// Snapshot the scope: expired entries are evicted mid-scan, which
		// mutates the live index.
		scoped := append([]*list.Element(nil), cache.byScope[key.scopeKey()]...)
		for _, element := range scoped {
			item := element.Value.(*cacheItem)
			if now.After(item.expiresAt) {
				cache.remove(element)
				continue
			}
			if cosine(queryVector, item.entry.QueryVector) >= constants.SemanticHitThreshold {
				cache.order.MoveToFront(element)
				metrics.CacheHits.WithLabelValues(string(SourceSemantic)).Inc()
				return item.entry, SourceSemantic, true
			}
		}
	}

	metrics.CacheMisses.Inc()
	return Entry{}, "", false
}

// Put stores a completed reply. Empty replies are never cached; a truncated
// or failed turn must not be replayed to the next asker.
func (cache *Cache) Put(key Key, entry Entry) {
	if cache.disabled || strings.TrimSpace(entry.Reply) == "" {
		return
	}

	cache.mu.Lock()
	defer cache.mu.Unlock()

	fingerprint := key.Fingerprint()
	if element, ok := cache.byKey[fingerprint]; ok {
		cache.remove(element)
	}

	item := &cacheItem{
		fingerprint: fingerprint,
		scope:       key.scopeKey(),
		entry:       entry,
		expiresAt:   cache.now().Add(cache.ttl),
	}
	element := cache.order.PushFront(item)
	cache.byKey[fingerprint] = element
	cache.byScope[item.scope] = append(cache.byScope[item.scope], element)

	for cache.order.Len() > cache.capacity {
		cache.remove(cache.order.Back())
	}
}

// Do collapses concurrent builds of the same fingerprint: one caller runs fn,
// the rest wait and share its result.
func (cache *Cache) Do(fingerprint string, fn func() (Entry, error)) (Entry, bool, error) {
	result, err, shared := cache.flight.Do(fingerprint, func() (any, error) {
		return fn()
	})
	if err != nil {
		return Entry{}, shared, err
	}
	return result.(Entry), shared, nil
}

// remove unlinks an element from every index. Caller holds the lock.
func (cache *Cache) remove(element *list.Element) {
	item := element.Value.(*cacheItem)
	cache.order.Remove(element)
	delete(cache.byKey, item.fingerprint)

	scoped := cache.byScope[item.scope]
	for i, candidate := range scoped {
		if candidate == element {
			scoped = append(scoped[:i], scoped[i+1:]...)
			break
		}
	}
	if len(scoped) == 0 {
		delete(cache.byScope, item.scope)
	} else {
		cache.byScope[item.scope] = scoped
	}
}

// cosine computes cosine similarity between two vectors.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
