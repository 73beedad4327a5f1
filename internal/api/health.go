// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package api

import (
	"net/http"
	"time"

	"github.com/taibuivan/flowreader/internal/platform/constants"
	"github.com/taibuivan/flowreader/internal/platform/respond"
)

// healthResponse is the liveness payload.
type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
}

/*
GET /api/health.

Description: Unauthenticated liveness probe. Reports the build version and
process uptime; it does not touch downstream dependencies, so a healthy
answer means only that the process is serving.

Response:
  - 200: healthResponse
*/
func (server *Server) Health(writer http.ResponseWriter, request *http.Request) {
	respond.OK(writer, healthResponse{
		Status:        "ok",
		Version:       constants.AppVersion,
		UptimeSeconds: int64(time.Since(server.startedAt).Seconds()),
	})
}
