// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounterStore implements [CounterStore] on Redis.
type RedisCounterStore struct {
	client *redis.Client
}

// NewRedisCounterStore creates a Redis-backed counter store.
func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

/*
Incr atomically increments the windowed counter.

Description: INCR and EXPIRE NX run in one pipeline round-trip. EXPIRE NX
only arms the TTL on the first increment, so the window never slides.

Parameters:
  - ctx: context.Context (already deadline-bounded by the limiter)
  - key: string
  - ttl: time.Duration

Returns:
  - int64: The counter value after incrementing
  - error: Connectivity or execution errors
*/
func (store *RedisCounterStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := store.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("ratelimit: counter incr failed: %w", err)
	}

	return incr.Val(), nil
}

// Reset deletes the counter for key.
func (store *RedisCounterStore) Reset(ctx context.Context, key string) error {
	if err := store.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("ratelimit: counter reset failed: %w", err)
	}
	return nil
}
