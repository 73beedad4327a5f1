// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package api assembles the HTTP surface: the middleware chain, the route
table with its per-class rate limits, and the server lifecycle.

Every request flows through the same outer chain (tracing, logging,
security headers, IP guard, panic recovery, authentication, CORS); the
authenticated /api subtree then applies per-route quotas and timeouts. The
streaming chat route runs outside the global request deadline with its own
longer one.
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taibuivan/flowreader/internal/core/book"
	"github.com/taibuivan/flowreader/internal/core/dialog"
	"github.com/taibuivan/flowreader/internal/core/ingest"
	"github.com/taibuivan/flowreader/internal/core/note"
	"github.com/taibuivan/flowreader/internal/platform/config"
	"github.com/taibuivan/flowreader/internal/platform/constants"
	"github.com/taibuivan/flowreader/internal/platform/middleware"
	"github.com/taibuivan/flowreader/internal/platform/ratelimit"
)

// Handlers groups the domain HTTP layers mounted by the server.
type Handlers struct {
	Books  *book.Handler
	Ingest *ingest.Handler
	Dialog *dialog.Handler
	Notes  *note.Handler
}

// Server owns the HTTP listener and its route table.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	startedAt  time.Time
}

/*
New builds the server and its full route table.

Parameters:
  - appCtx: context.Context (Application lifetime, stops background guards)
  - cfg: *config.Config
  - logger: *slog.Logger
  - verifier: middleware.TokenVerifier
  - limiter: *ratelimit.Limiter
  - handlers: Handlers

Returns:
  - *Server: Ready to Start
*/
func New(appCtx context.Context, cfg *config.Config, logger *slog.Logger, verifier middleware.TokenVerifier, limiter *ratelimit.Limiter, handlers Handlers) *Server {
	server := &Server{
		logger:    logger,
		startedAt: time.Now(),
	}

	router := chi.NewRouter()

	// ── 1. Outer chain, applied to every route ────────────────────────────
	router.Use(chimiddleware.CleanPath)
	router.Use(middleware.RequestID())
	router.Use(middleware.StructuredLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.IPRateLimit(appCtx))
	router.Use(middleware.PanicRecovery(logger))
	router.Use(middleware.Authenticate(verifier, limiter))
	router.Use(middleware.CORS(cfg))

	// ── 2. Open endpoints ─────────────────────────────────────────────────
	router.Get("/api/health", server.Health)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// ── 3. Authenticated API ──────────────────────────────────────────────
	router.Route("/api", func(api chi.Router) {
		api.Use(middleware.RequireAuth)

		// The streaming route carries its own deadline; a 10 s global
		// timeout would sever every dialog mid-reply.
		api.Group(func(stream chi.Router) {
			stream.Use(chimiddleware.Timeout(constants.StreamRequestTimeout))
			stream.Use(middleware.ClassLimit(limiter, constants.RateClassChat))
			stream.Post("/chat/stream", handlers.Dialog.StreamChat)
		})

		api.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(constants.GlobalRequestTimeout))

			r.Group(func(upload chi.Router) {
				upload.Use(middleware.ClassLimit(limiter, constants.RateClassUpload))
				upload.Post("/upload/signed-url", handlers.Ingest.SignUpload)
				upload.Post("/upload/process", handlers.Ingest.Register)
			})

			r.Group(func(auto chi.Router) {
				auto.Use(middleware.ClassLimit(limiter, constants.RateClassAutoNote))
				auto.Post("/notes/auto", handlers.Notes.AutoGenerate)
			})

			r.Group(func(rest chi.Router) {
				rest.Use(middleware.ClassLimit(limiter, constants.RateClassAPI))

				rest.Get("/tasks/{taskID}/status", handlers.Ingest.TaskStatus)

				rest.Get("/books", handlers.Books.ListBooks)
				rest.Get("/books/{bookID}", handlers.Books.GetBook)
				rest.Delete("/books/{bookID}", handlers.Books.DeleteBook)
				rest.Get("/books/{bookID}/chapters", handlers.Books.ListChapters)
				rest.Get("/chapters/{chapterID}", handlers.Books.GetChapter)
				rest.Get("/books/{bookID}/position", handlers.Books.GetPosition)
				rest.Post("/position", handlers.Books.SavePosition)

				rest.Get("/dialog/history", handlers.Dialog.History)

				rest.Post("/notes", handlers.Notes.CreateManual)
				rest.Get("/notes/search", handlers.Notes.Search)
				rest.Get("/notes/{noteID}", handlers.Notes.GetNote)
				rest.Delete("/notes/{noteID}", handlers.Notes.DeleteNote)
			})
		})
	})

	server.httpServer = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadTimeout:       constants.DefaultReadTimeout,
		WriteTimeout:      constants.DefaultWriteTimeout,
		IdleTimeout:       constants.DefaultIdleTimeout,
		ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
	}

	return server
}

// Start blocks serving requests until the listener closes.
func (server *Server) Start() error {
	server.logger.Info("http_server_started", slog.String("addr", server.httpServer.Addr))
	return server.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests within the context's deadline.
func (server *Server) Shutdown(ctx context.Context) error {
	server.logger.Info("http_server_stopping")
	return server.httpServer.Shutdown(ctx)
}
