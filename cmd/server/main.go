package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examcore/internal/cache"
	"github.com/stemsi/exstem-examcore/internal/config"
	"github.com/stemsi/exstem-examcore/internal/database"
	"github.com/stemsi/exstem-examcore/internal/handler"
	"github.com/stemsi/exstem-examcore/internal/logger"
	"github.com/stemsi/exstem-examcore/internal/repository"
	"github.com/stemsi/exstem-examcore/internal/router"
	"github.com/stemsi/exstem-examcore/internal/service"
	"github.com/stemsi/exstem-examcore/internal/validator"
	"github.com/stemsi/exstem-examcore/internal/worker"
)

// stores is the persistence wiring chosen by STORAGE_DRIVER.
type stores struct {
	exams     service.ExamReader
	writer    service.ExamWriter
	questions service.QuestionReader
	attempts  interface {
		service.AttemptStore
		worker.Expirer
	}
	results service.ResultStore
	close   func()
}

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("storage", cfg.StorageDriver).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExStem exam core")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Storage ───────────────────────────────────────────────────────
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer st.close()

	// ─── Connect to Redis (optional) ───────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	var questionCache *cache.QuestionCache
	if rdb != nil {
		defer rdb.Close()
		questionCache = cache.NewQuestionCache(rdb, st.questions, cfg.QuestionCacheTTL, log)
		st.questions = questionCache
	}

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg.JWTSecret)
	attemptService := service.NewAttemptService(st.exams, st.questions, st.attempts, st.results, log)
	var invalidator service.QuestionInvalidator
	if questionCache != nil {
		invalidator = questionCache
	}
	examService := service.NewExamService(st.exams, st.writer, st.questions, invalidator, st.attempts, st.results, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		StudentPortal: handler.NewStudentPortalHandler(attemptService, examService),
		Exam:          handler.NewExamHandler(examService),
		WS:            handler.NewWSHandler(attemptService, log, cfg.AllowedOrigins),
	}

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load every active exam's questions before accepting traffic.
	if questionCache != nil {
		exams, err := st.exams.ListActiveExams(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Cache prewarm failed")
		} else {
			questionCache.Prewarm(ctx, exams)
		}
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	expiryWorker, err := worker.NewExpiryWorker(st.attempts, cfg.ExpirySweepSpec, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid EXPIRY_SWEEP_SPEC")
	}
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		expiryWorker.Start(workerCtx)
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg, rdb, log)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

	// 2. Stop the sweeper and wait for a running pass to finish.
	workerCancel()
	<-workerDone

	log.Info().Msg("Shutdown complete")
}

// openStores returns the in-memory store or the PostgreSQL repositories.
func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*stores, error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		m := repository.NewMemoryStore()
		log.Warn().Msg("Using in-memory storage; data is lost on restart")
		return &stores{exams: m, writer: m, questions: m, attempts: m, results: m, close: func() {}}, nil
	case config.StoragePostgres:
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		catalog := repository.NewExamCatalog(pool)
		attempts := repository.NewAttemptRepository(pool)
		return &stores{
			exams:     catalog,
			writer:    catalog,
			questions: catalog,
			attempts:  attempts,
			results:   attempts,
			close:     pool.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
