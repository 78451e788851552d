package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/upl-platform/exam-portal/internal/backend"
	"github.com/upl-platform/exam-portal/internal/config"
	"github.com/upl-platform/exam-portal/internal/database"
	"github.com/upl-platform/exam-portal/internal/engine"
	"github.com/upl-platform/exam-portal/internal/handler"
	"github.com/upl-platform/exam-portal/internal/logger"
	"github.com/upl-platform/exam-portal/internal/middleware"
	"github.com/upl-platform/exam-portal/internal/repository"
	"github.com/upl-platform/exam-portal/internal/router"
	"github.com/upl-platform/exam-portal/internal/service"
	"github.com/upl-platform/exam-portal/internal/validator"
	"github.com/upl-platform/exam-portal/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("backend", cfg.BackendURL).
		Bool("outbox", cfg.OutboxEnabled).
		Msg("Starting exam portal")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Exam Backend ──────────────────────────────────────────────────
	client, err := backend.NewClient(backend.Options{
		BaseURL:    cfg.BackendURL,
		SubmitPath: cfg.SubmitPath,
		Timeout:    cfg.BackendTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid exam backend configuration")
	}

	// ─── Initialize Repositories & Services ────────────────────────────
	resultRepo := repository.NewResultRepository(pool)

	authService := service.NewAuthService(cfg, rdb)
	portal := service.NewPortalService(ctx, service.PortalOptions{
		Backend:       func(token string) service.ExamBackend { return client.ForToken(token) },
		Ledger:        resultRepo,
		RDB:           rdb,
		TickInterval:  cfg.TickInterval,
		LockGrace:     cfg.ActiveLockGrace,
		OutboxEnabled: cfg.OutboxEnabled,
		PassMark:      cfg.PassMark,
		Logger:        log,
	})
	reportService := service.NewReportService(resultRepo, cfg.PassMark)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		StudentPortal: handler.NewStudentPortalHandler(portal, authService, log),
		WS:            handler.NewWSHandler(portal, log, cfg.AllowedOrigins),
		Report:        handler.NewReportHandler(reportService, log),
		Monitor:       handler.NewMonitorHandler(portal, rdb, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workersDone := make(chan struct{})
	if cfg.OutboxEnabled {
		outbox := worker.NewOutboxWorker(rdb,
			func(token string) engine.ResultSender { return client.ForToken(token) },
			resultRepo, log)
		go func() {
			defer close(workersDone)
			outbox.Start(workerCtx)
		}()
	} else {
		close(workersDone)
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	limiter := middleware.NewRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, log)
	r := router.SetupRouter(authService, handlers, limiter, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests. Hijacked streams end with their
	// sessions below.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop every countdown. Running sessions are discarded, not submitted.
	portal.Shutdown(shutdownCtx)

	// 3. Stop the outbox worker after its current delivery.
	workerCancel()
	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("Outbox worker did not stop in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
