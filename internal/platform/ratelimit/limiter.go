// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package ratelimit enforces per-(identity, endpoint-class) request quotas.

Counters live in Redis as fixed windows so limits survive restarts and are
shared across replicas. The limiter is deliberately fail-open: when the
counter store is unreachable, serving the request is preferred over a false
429, and the degradation is recorded as a security event.
*/
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/taibuivan/flowreader/internal/platform/constants"
	"github.com/taibuivan/flowreader/internal/platform/metrics"
)

// Policy defines the window and cap for one endpoint class.
type Policy struct {
	Window time.Duration
	Cap    int
}

// DefaultPolicies maps each endpoint class to its per-user quota.
var DefaultPolicies = map[string]Policy{
	constants.RateClassAuth:     {Window: 15 * time.Minute, Cap: 5},
	constants.RateClassUpload:   {Window: time.Hour, Cap: 10},
	constants.RateClassChat:     {Window: time.Hour, Cap: 50},
	constants.RateClassAutoNote: {Window: time.Hour, Cap: 20},
	constants.RateClassAPI:      {Window: 15 * time.Minute, Cap: 100},
}

// Decision is the outcome of a limiter check.
type Decision struct {
	Allowed           bool
	Limit             int
	Remaining         int
	RetryAfterSeconds int
	ResetAt           time.Time
	// Degraded marks a fail-open decision taken because the counter store
	// was unreachable.
	Degraded bool
}

// CounterStore persists windowed counters.
type CounterStore interface {
	// Incr atomically increments the counter for key, creating it with the
	// given TTL on first use, and returns the new value.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Reset deletes the counter for key.
	Reset(ctx context.Context, key string) error
}

// EventSink records security-relevant incidents (limiter degradation,
// exhausted auth attempts). Implementations must not block the request path.
type EventSink interface {
	Record(ctx context.Context, kind, userID, endpoint, detail string)
}

// Limiter checks per-identity quotas against a [CounterStore].
type Limiter struct {
	store    CounterStore
	sink     EventSink
	policies map[string]Policy
	logger   *slog.Logger
	now      func() time.Time
}

// NewLimiter constructs a Limiter with the default class policies.
func NewLimiter(store CounterStore, sink EventSink, logger *slog.Logger) *Limiter {
	return &Limiter{
		store:    store,
		sink:     sink,
		policies: DefaultPolicies,
		logger:   logger,
		now:      time.Now,
	}
}

/*
Check consumes one unit of the identity's quota for the given class.

Description: The counter key embeds the window start, so expiry and reset
align exactly with window boundaries. Store errors and timeouts produce a
fail-open decision.

Parameters:
  - ctx: context.Context
  - identity: string (User ID, or source IP for the auth class)
  - class: string (One of the constants.RateClass* values)

Returns:
  - Decision: Allowed flag plus header material (limit, remaining, reset).
*/
func (limiter *Limiter) Check(ctx context.Context, identity, class string) Decision {
	policy, ok := limiter.policies[class]
	if !ok {
		policy = limiter.policies[constants.RateClassAPI]
	}

	windowStart := limiter.now().Truncate(policy.Window)
	resetAt := windowStart.Add(policy.Window)
	key := counterKey(class, identity, windowStart)

	// The counter store is never allowed to stall a request.
	storeCtx, cancel := context.WithTimeout(ctx, constants.RateLimitStoreTimeout)
	defer cancel()

	count, err := limiter.store.Incr(storeCtx, key, policy.Window)
	if err != nil {
		limiter.degrade(ctx, identity, class, err)
		return Decision{
			Allowed:   true,
			Limit:     policy.Cap,
			Remaining: policy.Cap,
			ResetAt:   resetAt,
			Degraded:  true,
		}
	}

	remaining := policy.Cap - int(count)
	if remaining < 0 {
		remaining = 0
	}

	if int(count) > policy.Cap {
		retryAfter := int(resetAt.Sub(limiter.now()).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		metrics.RateLimitDecisions.WithLabelValues(class, "denied").Inc()
		return Decision{
			Allowed:           false,
			Limit:             policy.Cap,
			Remaining:         0,
			RetryAfterSeconds: retryAfter,
			ResetAt:           resetAt,
		}
	}

	metrics.RateLimitDecisions.WithLabelValues(class, "allowed").Inc()
	return Decision{
		Allowed:   true,
		Limit:     policy.Cap,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

/*
NoteAuthFailure consumes one unit of the auth-failure budget for a source.

The auth class counts failures only: it is charged here, on rejected tokens,
never inside Check.
*/
func (limiter *Limiter) NoteAuthFailure(ctx context.Context, source string) Decision {
	return limiter.Check(ctx, source, constants.RateClassAuth)
}

// ResetAuth clears the auth-failure counter after a successful authentication.
func (limiter *Limiter) ResetAuth(ctx context.Context, source string) {
	policy := limiter.policies[constants.RateClassAuth]
	windowStart := limiter.now().Truncate(policy.Window)

	storeCtx, cancel := context.WithTimeout(ctx, constants.RateLimitStoreTimeout)
	defer cancel()

	if err := limiter.store.Reset(storeCtx, counterKey(constants.RateClassAuth, source, windowStart)); err != nil {
		limiter.logger.Debug("auth_counter_reset_failed", slog.Any("error", err))
	}
}

// degrade logs and records the fail-open incident without blocking the caller.
func (limiter *Limiter) degrade(ctx context.Context, identity, class string, err error) {
	metrics.RateLimitDecisions.WithLabelValues(class, "degraded").Inc()
	limiter.logger.Warn("rate_limiter_degraded",
		slog.String("class", class),
		slog.Any("error", err),
	)
	if limiter.sink != nil {
		limiter.sink.Record(ctx, "limiter_degraded", identity, class, err.Error())
	}
}

// counterKey builds the Redis key for one (class, identity, window) counter.
func counterKey(class, identity string, windowStart time.Time) string {
	return "rl:" + class + ":" + identity + ":" + windowStart.UTC().Format("20060102T150405")
}
