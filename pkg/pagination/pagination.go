// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package pagination provides shared types and helpers for API list endpoints.
//
// # Overview
//
// It standardizes how limit/offset navigation is requested via query
// parameters and how the resulting metadata is delivered in the API response.
package pagination

import (
	"net/http"
	"strconv"

	"github.com/taibuivan/flowreader/internal/platform/apperr"
)

const (
	// DefaultLimit is the number of items per page if not specified.
	DefaultLimit = 20
	// MaxLimit is the upper bound for items per page to prevent system abuse.
	MaxLimit = 100
)

// Params holds the parsed limit and offset from a request's query string.
type Params struct {
	Limit  int
	Offset int
}

// Meta is the pagination metadata included in API list responses.
type Meta struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	Total   int  `json:"total"`
	HasMore bool `json:"hasMore"`
}

// NewMeta constructs pagination metadata for a response.
//
// HasMore is derived from (offset + returned) < total.
func NewMeta(params Params, returned, total int) Meta {
	return Meta{
		Limit:   params.Limit,
		Offset:  params.Offset,
		Total:   total,
		HasMore: params.Offset+returned < total,
	}
}

// FromRequest parses "limit" and "offset" query parameters from an HTTP
// request, rejecting out-of-range values.
//
// # Strictness
//
// Unlike lenient clamping, a limit of 0 or above [MaxLimit] and a negative
// offset are validation errors: silently adjusting them would make rate and
// cost accounting unpredictable for API clients.
func FromRequest(r *http.Request) (Params, error) {
	params := Params{Limit: DefaultLimit, Offset: 0}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxLimit {
			return Params{}, apperr.ValidationError("Validation failed", apperr.FieldError{
				Field:   "limit",
				Message: "Must be an integer between 1 and 100",
			})
		}
		params.Limit = n
	}

	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Params{}, apperr.ValidationError("Validation failed", apperr.FieldError{
				Field:   "offset",
				Message: "Must be a non-negative integer",
			})
		}
		params.Offset = n
	}

	return params, nil
}
