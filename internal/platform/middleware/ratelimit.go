// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"net/http"
	"strconv"

	"github.com/taibuivan/flowreader/internal/platform/apperr"
	"github.com/taibuivan/flowreader/internal/platform/constants"
	"github.com/taibuivan/flowreader/internal/platform/ctxutil"
	"github.com/taibuivan/flowreader/internal/platform/ratelimit"
	"github.com/taibuivan/flowreader/internal/platform/respond"
)

// ClassLimit enforces the per-user quota of one endpoint class.
//
// # Usage
//
// Must be registered AFTER [Authenticate]: anonymous requests are keyed by
// source IP so unauthenticated probing still consumes a budget.
//
// Every response carries the X-RateLimit-* headers; denials add Retry-After.
func ClassLimit(limiter *ratelimit.Limiter, class string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			identity := RealIP(request)
			if claims := ctxutil.GetAuthUser(request.Context()); claims != nil {
				identity = claims.UserID
			}

			decision := limiter.Check(request.Context(), identity, class)
			applyRateHeaders(writer, decision)

			if !decision.Allowed {
				respond.Error(writer, request, apperr.RateLimited(decision.RetryAfterSeconds))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}

// applyRateHeaders writes the standard quota headers from a limiter decision.
func applyRateHeaders(writer http.ResponseWriter, decision ratelimit.Decision) {
	header := writer.Header()
	header.Set(constants.HeaderRateLimit, strconv.Itoa(decision.Limit))
	header.Set(constants.HeaderRateRemaining, strconv.Itoa(decision.Remaining))
	header.Set(constants.HeaderRateReset, strconv.FormatInt(decision.ResetAt.Unix(), 10))
}
