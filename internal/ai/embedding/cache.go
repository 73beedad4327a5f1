// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// cacheEntry holds one vector with its expiry.
type cacheEntry struct {
	vector    []float32
	expiresAt time.Time
}

// vectorCache deduplicates repeated embedding inputs in-process.
//
// Keys are content hashes, so identical selections and re-asked queries skip
// the provider entirely. Expired entries are evicted lazily on read and
// swept opportunistically on write.
type vectorCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

func newVectorCache(ttl time.Duration) *vectorCache {
	return &vectorCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// cacheKey hashes the input text so the map never retains user content.
func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (cache *vectorCache) get(key string) ([]float32, bool) {
	cache.mu.RLock()
	entry, ok := cache.entries[key]
	cache.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if cache.now().After(entry.expiresAt) {
		cache.mu.Lock()
		delete(cache.entries, key)
		cache.mu.Unlock()
		return nil, false
	}
	return entry.vector, true
}

func (cache *vectorCache) put(key string, vector []float32) {
	now := cache.now()

	cache.mu.Lock()
	defer cache.mu.Unlock()

	// Piggyback a sweep so the map cannot grow without bound.
	if len(cache.entries) >= sweepThreshold {
		for existing, entry := range cache.entries {
			if now.After(entry.expiresAt) {
				delete(cache.entries, existing)
			}
		}
	}

	cache.entries[key] = cacheEntry{vector: vector, expiresAt: now.Add(cache.ttl)}
}

const sweepThreshold = 4096
