// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the FlowReader HTTP API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool) and Redis.
//  4. Run database migrations (idempotent).
//  5. Build the AI stack: inference client, embeddings, retrieval, cache.
//  6. Wire domain services and start the ingestion worker pool.
//  7. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/taibuivan/flowreader/internal/ai/embedding"
	"github.com/taibuivan/flowreader/internal/ai/llm"
	"github.com/taibuivan/flowreader/internal/ai/respcache"
	"github.com/taibuivan/flowreader/internal/ai/retrieval"
	"github.com/taibuivan/flowreader/internal/api"
	"github.com/taibuivan/flowreader/internal/core/book"
	"github.com/taibuivan/flowreader/internal/core/dialog"
	"github.com/taibuivan/flowreader/internal/core/ingest"
	"github.com/taibuivan/flowreader/internal/core/note"
	"github.com/taibuivan/flowreader/internal/core/security"
	"github.com/taibuivan/flowreader/internal/platform/config"
	"github.com/taibuivan/flowreader/internal/platform/constants"
	"github.com/taibuivan/flowreader/internal/platform/migration"
	"github.com/taibuivan/flowreader/internal/platform/objectstore"
	pgstore "github.com/taibuivan/flowreader/internal/platform/postgres"
	"github.com/taibuivan/flowreader/internal/platform/ratelimit"
	redisstore "github.com/taibuivan/flowreader/internal/platform/redis"
	"github.com/taibuivan/flowreader/internal/platform/sec"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", "flowreader"))
	slog.SetDefault(log)

	log.Info("[FlowReader] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	// A .env file is a local-development convenience; its absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", "flowreader"))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// Application lifetime: cancelled on the first termination signal.
	appCtx, appCancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer appCancel()

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(appCtx, 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Object Storage ─────────────────────────────────────────────────
	objects, err := objectstore.New(startupCtx, objectstore.Options{
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
	})
	must(log, err, "initialize object storage")

	// ── 7. AI Stack ───────────────────────────────────────────────────────
	// Cost rates arrive as dollars per million tokens; the client meters in
	// micro-dollars.
	llmClient := llm.New(llm.Options{
		APIKey:             cfg.LLMAPIKey,
		BaseURL:            cfg.LLMBaseURL,
		PrimaryModel:       cfg.LLMPrimaryModel,
		EconomyModel:       cfg.LLMEconomyModel,
		EmbeddingModel:     cfg.EmbeddingModel,
		Dimensions:         cfg.EmbeddingDimensions,
		Concurrency:        cfg.LLMConcurrency,
		PrimaryInputCost:   int64(cfg.CostPerMTokenPrimary * 1e6),
		PrimaryOutputCost:  int64(cfg.CostPerMTokenPrimary * 1e6),
		EconomyInputCost:   int64(cfg.CostPerMTokenEconomy * 1e6),
		EconomyOutputCost:  int64(cfg.CostPerMTokenEconomy * 1e6),
		EmbeddingTokenCost: int64(cfg.CostPerMTokenEmbedding * 1e6),
	})
	embedder := embedding.NewService(llmClient)
	retriever := retrieval.NewEngine(retrieval.NewStore(pool))
	cache := respcache.New(cfg.DisableResponseCache)

	// ── 8. Auth & Rate Limiting ───────────────────────────────────────────
	tokenService, err := sec.NewTokenService(cfg.JWTSecret, constants.AuthIssuer)
	must(log, err, "initialize jwt service")

	eventLog := security.NewEventLog(pool, log)
	limiter := ratelimit.NewLimiter(ratelimit.NewRedisCounterStore(rdb), eventLog, log)

	// ── 9. Domain Wiring ──────────────────────────────────────────────────
	bookService := book.NewService(book.NewStore(pool))
	bookHandler := book.NewHandler(bookService)

	ingestStore := ingest.NewStore(pool)
	ingestPool := ingest.NewPool(ingestStore, objects, embedder, cfg.MaxUploadBytes, log)
	ingestPool.Start(appCtx)
	ingestService := ingest.NewService(ingestStore, objects, ingestPool, log)
	must(log, ingestService.Resume(startupCtx), "requeue interrupted ingestions")
	ingestHandler := ingest.NewHandler(ingestService, cfg.MaxUploadBytes)

	dialogStore := dialog.NewStore(pool)
	dialogService := dialog.NewService(dialogStore, bookService, embedder, retriever, llmClient, cache)
	dialogHandler := dialog.NewHandler(dialogService)

	generator := note.NewGenerator(dialogStore, chapterSource{books: bookService}, embedder, retriever, llmClient)
	noteService := note.NewService(note.NewStore(pool), bookService, generator)
	noteHandler := note.NewHandler(noteService)

	// ── 10. HTTP Server ───────────────────────────────────────────────────
	server := api.New(appCtx, cfg, log, tokenService, limiter, api.Handlers{
		Books:  bookHandler,
		Ingest: ingestHandler,
		Dialog: dialogHandler,
		Notes:  noteHandler,
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case <-appCtx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Give in-flight requests enough time to complete, then let the worker
	// pool finish the jobs it already claimed.
	log.Info("shutting down server", slog.Duration("timeout", constants.ShutdownTimeout))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
	}

	ingestPool.Wait()
	log.Info("server stopped cleanly")
}

// chapterSource adapts the book service to the note generator's need for raw
// chapter text.
type chapterSource struct {
	books *book.Service
}

func (source chapterSource) ChapterContent(ctx context.Context, ownerID, chapterID string) (string, error) {
	chapter, err := source.books.GetChapter(ctx, ownerID, chapterID)
	if err != nil {
		return "", err
	}
	return chapter.Content, nil
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
