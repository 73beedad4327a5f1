// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ingest

import (
	"net/http"
	"time"

	"github.com/taibuivan/flowreader/internal/platform/constants"
	requestutil "github.com/taibuivan/flowreader/internal/platform/request"
	"github.com/taibuivan/flowreader/internal/platform/respond"
	"github.com/taibuivan/flowreader/internal/platform/validate"
)

// # Handler Implementation

// Handler implements the HTTP layer for uploads and pipeline tracking.
type Handler struct {
	service        *Service
	maxUploadBytes int64
}

// NewHandler constructs a new ingestion [Handler].
func NewHandler(service *Service, maxUploadBytes int64) *Handler {
	return &Handler{service: service, maxUploadBytes: maxUploadBytes}
}

// # Signed Uploads

// signUploadRequest defines the inbound JSON schema for URL issuance.
type signUploadRequest struct {
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
}

// signUploadResponse is the material for a direct upload.
type signUploadResponse struct {
	SignedURL string    `json:"signedUrl"`
	UploadKey string    `json:"uploadKey"`
	ExpiresAt time.Time `json:"expiresAt"`
}

/*
POST /api/upload/signed-url.

Description: Issues a presigned PUT URL for a direct EPUB upload. The file
never passes through the API.

Request:
  - body: signUploadRequest (fileName must end in .epub; fileSize in bytes)

Response:
  - 200: signUploadResponse
  - 400: Validation: Bad name, extension, or size
*/
func (handler *Handler) SignUpload(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input signUploadRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	v := &validate.Validator{}
	v.Required("fileName", input.FileName)
	v.MaxLen("fileName", input.FileName, constants.MaxFileNameChars)
	v.FileName("fileName", input.FileName)
	v.FileExt("fileName", input.FileName, ".epub")
	v.Custom("fileSize", input.FileSize <= 0, "File size is required")
	v.Custom("fileSize", input.FileSize > handler.maxUploadBytes, "File exceeds the upload limit")
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	signed, err := handler.service.SignUpload(request.Context(), userID, input.FileName)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, signUploadResponse{
		SignedURL: signed.URL,
		UploadKey: signed.UploadKey,
		ExpiresAt: signed.ExpiresAt,
	})
}

// # Registration

// registerRequest defines the inbound JSON schema for pipeline kickoff.
// fileName is display-only: it titles the book until parsing extracts the
// real one.
type registerRequest struct {
	UploadKey string `json:"uploadKey"`
	FileName  string `json:"fileName"`
}

/*
POST /api/upload/process.

Description: Registers an uploaded key and queues the processing pipeline.
Idempotent per upload key: repeating the call returns the existing book and
task in whatever state the run reached, failed included.

Request:
  - body: registerRequest

Response:
  - 202: Registration: Newly queued
  - 200: Registration: Already registered
  - 404: ErrNotFound: Key never issued to this user
  - 503: SERVICE_UNAVAILABLE: Queue full
*/
func (handler *Handler) Register(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input registerRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	v := &validate.Validator{}
	v.Required("uploadKey", input.UploadKey)
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	registration, created, err := handler.service.Register(request.Context(), userID, input.UploadKey, input.FileName)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if created {
		respond.Accepted(writer, registration)
		return
	}
	respond.OK(writer, registration)
}

// # Task Polling

/*
GET /api/tasks/{taskID}.

Response:
  - 200: Task: State, progress, and error kind when failed
  - 404: ErrNotFound
*/
func (handler *Handler) TaskStatus(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	task, err := handler.service.TaskStatus(request.Context(), userID, requestutil.ID(request, "taskID"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, task)
}
