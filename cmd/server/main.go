package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/campustest/testgate/internal/config"
	"github.com/campustest/testgate/internal/database"
	"github.com/campustest/testgate/internal/handler"
	"github.com/campustest/testgate/internal/logger"
	"github.com/campustest/testgate/internal/model"
	"github.com/campustest/testgate/internal/repository"
	"github.com/campustest/testgate/internal/router"
	"github.com/campustest/testgate/internal/service"
	"github.com/campustest/testgate/internal/session"
	"github.com/campustest/testgate/internal/snapshot"
	"github.com/campustest/testgate/internal/testsvc"
	"github.com/campustest/testgate/internal/validator"
	"github.com/campustest/testgate/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting Testgate")

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

	// ─── Initialize Repositories ───────────────────────────────────────
	eventRepo := repository.NewSessionEventRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	beaconService := service.NewBeaconService(rdb, log)
	eventService := service.NewEventService(rdb, log)

	// ─── Test Service Client + Session Manager ────────────────────────
	tsClient := testsvc.New(cfg.TestServiceURL, cfg.TestServiceTimeout, log)
	store := snapshot.NewRedisStore(rdb)

	factory := func(token string) session.TestService {
		return tsClient.WithToken(token)
	}
	manager := session.NewManager(factory, store, eventService, log)
	manager.SyncInterval = cfg.SyncInterval
	manager.Detach = func(studentID, testID, upstreamToken string, up model.AnswerUpsert) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := beaconService.Enqueue(ctx, studentID, testID, upstreamToken, up); err != nil {
			log.Warn().Err(err).Str("test_id", testID).Msg("Detach beacon enqueue failed")
		}
	}

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService),
		Session: handler.NewSessionHandler(manager, log),
		Beacon:  handler.NewBeaconHandler(authService, beaconService, log),
		Events:  handler.NewEventsHandler(eventService, eventRepo, log),
		WS:      handler.NewWSHandler(manager, eventService, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	beaconWorker := worker.NewBeaconWorker(tsClient, rdb, log)
	eventWorker := worker.NewEventWorker(eventRepo, rdb, log)

	go beaconWorker.Start(workerCtx)
	go eventWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Close live sessions so their final snapshots are persisted.
	manager.CloseAll()

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
