// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package respcache

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/flowreader/internal/ai/policy"
)

func testKey(query string) Key {
	return Key{
		UserID:           "user-1",
		BookID:           "book-1",
		Intent:           policy.IntentAsk,
		Query:            query,
		Tier:             policy.TierPrimary,
		ContextSignature: "ctx-aaa",
	}
}

func newTestCache() *Cache {
	cache := New(false)
	return cache
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "who is the narrator?", NormalizeQuery("  Who   IS the\tnarrator?  "))
	assert.NotEqual(t, NormalizeQuery("what's this?"), NormalizeQuery("whats this"))
}

func TestExactHit(t *testing.T) {
	cache := newTestCache()
	cache.Put(testKey("who dies?"), Entry{Reply: "nobody", QueryVector: []float32{1, 0}})

	// Same question with different casing and spacing fingerprints identically.
	entry, source, ok := cache.Get(testKey("WHO   dies?"), nil)
	require.True(t, ok)
	assert.Equal(t, SourceExact, source)
	assert.Equal(t, "nobody", entry.Reply)
}

func TestMissOnDifferentScope(t *testing.T) {
	cache := newTestCache()
	cache.Put(testKey("who dies?"), Entry{Reply: "nobody", QueryVector: []float32{1, 0}})

	other := testKey("who dies?")
	other.UserID = "user-2"
	_, _, ok := cache.Get(other, []float32{1, 0})
	assert.False(t, ok, "another user's cache must never be visible")

	staleCtx := testKey("who dies?")
	staleCtx.ContextSignature = "ctx-bbb"
	_, _, ok = cache.Get(staleCtx, []float32{1, 0})
	assert.False(t, ok, "a different grounding context must not match")
}

func TestSemanticHit(t *testing.T) {
	cache := newTestCache()
	cache.Put(testKey("who is the killer?"), Entry{Reply: "the butler", QueryVector: []float32{1, 0, 0}})

	// A differently worded but near-identical query hits semantically.
	entry, source, ok := cache.Get(testKey("who was the killer"), []float32{0.999, 0.02, 0})
	require.True(t, ok)
	assert.Equal(t, SourceSemantic, source)
	assert.Equal(t, "the butler", entry.Reply)

	// An orthogonal query misses.
	_, _, ok = cache.Get(testKey("describe the setting"), []float32{0, 1, 0})
	assert.False(t, ok)
}

func TestTTLExpiry(t *testing.T) {
	cache := newTestCache()
	current := time.Unix(1_700_000_000, 0)
	cache.now = func() time.Time { return current }

	cache.Put(testKey("q"), Entry{Reply: "a", QueryVector: []float32{1}})

	_, _, ok := cache.Get(testKey("q"), nil)
	require.True(t, ok)

	current = current.Add(16 * time.Minute)
	_, _, ok = cache.Get(testKey("q"), []float32{1})
	assert.False(t, ok)
}

func TestExpiredEntriesAreEvictedOnScan(t *testing.T) {
	cache := newTestCache()
	current := time.Unix(1_700_000_000, 0)
	cache.now = func() time.Time { return current }

	cache.Put(testKey("first question"), Entry{Reply: "a", QueryVector: []float32{1, 0}})
	cache.Put(testKey("second question"), Entry{Reply: "b", QueryVector: []float32{0, 1}})

	current = current.Add(16 * time.Minute)

	// The semantic scan walks the whole scope; expired entries must leave
	// the indexes rather than linger until capacity pressure.
	_, _, ok := cache.Get(testKey("third question"), []float32{1, 0})
	require.False(t, ok)

	cache.mu.Lock()
	defer cache.mu.Unlock()
	assert.Zero(t, cache.order.Len())
	assert.Empty(t, cache.byKey)
	assert.Empty(t, cache.byScope)
}

func TestLRUEviction(t *testing.T) {
	cache := newTestCache()
	cache.capacity = 2

	cache.Put(testKey("first"), Entry{Reply: "1"})
	cache.Put(testKey("second"), Entry{Reply: "2"})

	// Touch "first" so "second" becomes the eviction victim.
	_, _, ok := cache.Get(testKey("first"), nil)
	require.True(t, ok)

	cache.Put(testKey("third"), Entry{Reply: "3"})

	_, _, ok = cache.Get(testKey("first"), nil)
	assert.True(t, ok)
	_, _, ok = cache.Get(testKey("second"), nil)
	assert.False(t, ok)
	_, _, ok = cache.Get(testKey("third"), nil)
	assert.True(t, ok)
}

func TestEmptyRepliesAreNotCached(t *testing.T) {
	cache := newTestCache()
	cache.Put(testKey("q"), Entry{Reply: "   "})

	_, _, ok := cache.Get(testKey("q"), nil)
	assert.False(t, ok)
}

func TestDisabledCache(t *testing.T) {
	cache := New(true)
	cache.Put(testKey("q"), Entry{Reply: "a"})

	_, _, ok := cache.Get(testKey("q"), []float32{1})
	assert.False(t, ok)
}

func TestDoCollapsesConcurrentBuilds(t *testing.T) {
	cache := newTestCache()

	var calls atomic.Int32
	gate := make(chan struct{})

	build := func() (Entry, error) {
		calls.Add(1)
		<-gate
		return Entry{Reply: "built once"}, nil
	}

	var wg sync.WaitGroup
	results := make([]Entry, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			entry, _, err := cache.Do("same-fingerprint", build)
			require.NoError(t, err)
			results[slot] = entry
		}(i)
	}

	// Let the single in-flight build finish.
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, entry := range results {
		assert.Equal(t, "built once", entry.Reply)
	}
}

func TestDoPropagatesErrors(t *testing.T) {
	cache := newTestCache()
	_, _, err := cache.Do("fp", func() (Entry, error) {
		return Entry{}, errors.New("upstream exploded")
	})
	require.Error(t, err)
}

func TestByScopeIndexStaysConsistent(t *testing.T) {
	cache := newTestCache()
	cache.capacity = 4

	for i := 0; i < 10; i++ {
		cache.Put(testKey(fmt.Sprintf("query %d", i)), Entry{Reply: "r", QueryVector: []float32{1, 0}})
	}

	cache.mu.Lock()
	defer cache.mu.Unlock()
	assert.Equal(t, cache.order.Len(), len(cache.byKey))

	indexed := 0
	for _, elements := range cache.byScope {
		indexed += len(elements)
	}
	assert.Equal(t, cache.order.Len(), indexed)
}
