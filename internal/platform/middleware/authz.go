// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"net/http"
	"strings"

	"github.com/taibuivan/flowreader/internal/platform/apperr"
	"github.com/taibuivan/flowreader/internal/platform/ctxutil"
	"github.com/taibuivan/flowreader/internal/platform/ratelimit"
	"github.com/taibuivan/flowreader/internal/platform/respond"
	"github.com/taibuivan/flowreader/internal/platform/sec"
)

// TokenVerifier defines the interface needed to verify tokens in middleware.
//
// # Why an interface?
//
// Defining TokenVerifier here decouples the middleware from the `sec`
// implementation, allowing us to easily inject mocks during unit testing.
type TokenVerifier interface {
	VerifyToken(tokenStr string) (*sec.AuthClaims, error)
}

// Authenticate extracts and verifies the JWT from the Authorization header.
//
// # Flow
//  1. Check for 'Authorization: Bearer <token>' header.
//  2. If absent, request proceeds as anonymous (RequireAuth gates later).
//  3. If present, parse and verify the JWT via [TokenVerifier].
//  4. Failures charge the source's auth-failure budget; too many failures
//     surface as 429 before 401.
//  5. Inject [*sec.AuthClaims] into the request context for downstream use.
func Authenticate(verifier TokenVerifier, limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			authHeader := request.Header.Get("Authorization")

			// ── 1. Anonymous Access ───────────────────────────────────────────
			if authHeader == "" {
				next.ServeHTTP(writer, request)
				return
			}

			source := RealIP(request)

			// ── 2. Format Validation ──────────────────────────────────────────
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				rejectAuth(writer, request, limiter, source, "Invalid authorization format")
				return
			}

			// ── 3. Token Verification ─────────────────────────────────────────
			tokenStr := parts[1]
			claims, err := verifier.VerifyToken(tokenStr)
			if err != nil {
				rejectAuth(writer, request, limiter, source, "Invalid or expired token")
				return
			}

			// Successful authentication clears the source's failure counter.
			if limiter != nil {
				limiter.ResetAuth(request.Context(), source)
			}

			// ── 4. Context Injection ──────────────────────────────────────────
			ctx := ctxutil.WithAuthUser(request.Context(), claims)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// rejectAuth charges the auth-failure budget and answers 401 (or 429 when
// the budget is exhausted).
func rejectAuth(writer http.ResponseWriter, request *http.Request, limiter *ratelimit.Limiter, source, message string) {
	if limiter != nil {
		decision := limiter.NoteAuthFailure(request.Context(), source)
		if !decision.Allowed {
			applyRateHeaders(writer, decision)
			respond.Error(writer, request, apperr.RateLimited(decision.RetryAfterSeconds))
			return
		}
	}
	respond.Error(writer, request, apperr.Unauthorized(message))
}

// RequireAuth blocks requests that are not authenticated.
//
// # Usage
//
// Must be registered in the router AFTER [Authenticate].
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		claims := ctxutil.GetAuthUser(request.Context())
		if claims == nil {
			respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
			return
		}
		next.ServeHTTP(writer, request)
	})
}
