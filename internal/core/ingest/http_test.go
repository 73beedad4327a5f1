// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ingest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/flowreader/internal/platform/ctxutil"
	"github.com/taibuivan/flowreader/internal/platform/sec"
)

func authedRequest(method, target, body string) *http.Request {
	request := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := ctxutil.WithAuthUser(request.Context(), &sec.AuthClaims{UserID: "user-1"})
	return request.WithContext(ctx)
}

func TestSignUploadHandler(t *testing.T) {
	service, _ := newTestService(newMemStore())
	handler := NewHandler(service, 1<<20)

	recorder := httptest.NewRecorder()
	handler.SignUpload(recorder, authedRequest(http.MethodPost, "/api/upload/signed-url",
		`{"fileName":"moby-dick.epub","fileSize":1024}`))

	require.Equal(t, http.StatusOK, recorder.Code)

	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	assert.Contains(t, payload, "signedUrl")
	assert.Contains(t, payload, "uploadKey")
	assert.Contains(t, payload, "expiresAt")

	var signedURL string
	require.NoError(t, json.Unmarshal(payload["signedUrl"], &signedURL))
	assert.Equal(t, "https://bucket.example/moby-dick.epub", signedURL)
}

func TestSignUploadHandlerRejectsOversizedFile(t *testing.T) {
	service, _ := newTestService(newMemStore())
	handler := NewHandler(service, 1024)

	recorder := httptest.NewRecorder()
	handler.SignUpload(recorder, authedRequest(http.MethodPost, "/api/upload/signed-url",
		`{"fileName":"moby-dick.epub","fileSize":2048}`))

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}
