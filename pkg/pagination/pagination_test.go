// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package pagination_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/flowreader/internal/platform/apperr"
	"github.com/taibuivan/flowreader/pkg/pagination"
)

/*
TestFromRequest checks strict limit/offset parsing.
*/
func TestFromRequest(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
		wantErr    bool
	}{
		{"defaults", "", pagination.DefaultLimit, 0, false},
		{"explicit", "?limit=50&offset=10", 50, 10, false},
		{"limit_at_max", "?limit=100", 100, 0, false},
		{"limit_zero_rejected", "?limit=0", 0, 0, true},
		{"limit_over_max_rejected", "?limit=101", 0, 0, true},
		{"limit_not_a_number", "?limit=ten", 0, 0, true},
		{"negative_offset_rejected", "?offset=-1", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := httptest.NewRequest("GET", "/api/books"+tt.query, nil)

			params, err := pagination.FromRequest(request)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, "VALIDATION_ERROR", apperr.As(err).Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLimit, params.Limit)
			assert.Equal(t, tt.wantOffset, params.Offset)
		})
	}
}

/*
TestNewMeta checks hasMore accounting at page boundaries.
*/
func TestNewMeta(t *testing.T) {
	tests := []struct {
		name        string
		offset      int
		returned    int
		total       int
		wantHasMore bool
	}{
		{"first_of_many", 0, 20, 45, true},
		{"middle_page", 20, 20, 45, true},
		{"last_partial_page", 40, 5, 45, false},
		{"exact_fit", 0, 45, 45, false},
		{"empty_result", 0, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := pagination.NewMeta(pagination.Params{Limit: 20, Offset: tt.offset}, tt.returned, tt.total)
			assert.Equal(t, tt.wantHasMore, meta.HasMore)
			assert.Equal(t, tt.total, meta.Total)
		})
	}
}
