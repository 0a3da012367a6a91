package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/cache"
	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/database"
	"github.com/stemsi/exstem-portal/internal/handler"
	"github.com/stemsi/exstem-portal/internal/logger"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/ratelimit"
	"github.com/stemsi/exstem-portal/internal/repository"
	"github.com/stemsi/exstem-portal/internal/router"
	"github.com/stemsi/exstem-portal/internal/service"
	"github.com/stemsi/exstem-portal/internal/sms"
	"github.com/stemsi/exstem-portal/internal/validator"
	"github.com/stemsi/exstem-portal/internal/worker"
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
		Msg("Starting ExStem Portal")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	// The manager reconnects on demand, so a cold database only degrades
	// requests to 503 until it comes back.
	db := database.NewManager(cfg, log)
	defer db.Close()
	if err := db.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("PostgreSQL not reachable at startup")
	}

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb := connectRedis(ctx, cfg, log)
	if rdb != nil {
		defer rdb.Close()
	}

	// ─── Initialize Repositories ───────────────────────────────────────
	studentRepo := repository.NewStudentRepository(db)
	formRepo := repository.NewFormRepository(db)
	otpRepo := repository.NewOTPRepository(db)

	// ─── Shared Infrastructure ─────────────────────────────────────────
	questionCache := newQuestionCache(cfg, rdb)
	otpLimiter := newLimiter(cfg.RateLimitBackend, rdb, "ratelimit:",
		ratelimit.Config{Window: cfg.OTPRateWindow, MaxAttempts: cfg.OTPRateLimit})
	authLimiter := newLimiter(cfg.RateLimitBackend, rdb, "ratelimit:",
		ratelimit.Config{Window: time.Minute, MaxAttempts: cfg.AuthRequestsPerMinute})

	provider := newSMSProvider(cfg, log)
	var queue worker.Queue
	if rdb != nil {
		queue = worker.NewRedisQueue(rdb, config.WorkerKey.DispatchOTPQueue)
	}
	dispatcher := worker.NewQueueDispatcher(queue, provider, cfg.SMSTimeout, log)

	// ─── Initialize Services ──────────────────────────────────────────
	tokenService := service.NewTokenService(cfg)
	otpService := service.NewOTPService(otpRepo, otpLimiter, dispatcher, tokenService, service.OTPPolicyFrom(cfg), log)
	identityService := service.NewIdentityService(studentRepo, tokenService, log)
	questionService := service.NewQuestionService(formRepo, questionCache, log)
	submissionService := service.NewSubmissionService(studentRepo, formRepo, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	deps := map[string]handler.Pinger{"postgres": db}
	if rdb != nil {
		deps["redis"] = handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}
	handlers := &router.Handlers{
		Auth:   handler.NewAuthHandler(otpService, identityService, handler.CookieConfigFrom(cfg)),
		Exam:   handler.NewExamHandler(questionService, submissionService),
		Health: handler.NewHealthHandler(deps, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	janitor := worker.NewJanitorWorker(otpRepo, studentRepo, cfg.OTPTTL, cfg.SubmitGrace, cfg.JanitorInterval, log)
	go janitor.Start(workerCtx)

	if queue != nil {
		dispatchWorker := worker.NewDispatchWorker(queue, provider, cfg.SMSMaxAttempts, log)
		go dispatchWorker.Start(workerCtx)
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(handlers, router.Deps{
		Tokens:      tokenService,
		Slots:       identityService,
		AuthLimiter: authLimiter,
		Log:         log,
	}, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
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

	// 2. Stop background workers.
	workerCancel()
	for _, l := range []ratelimit.Limiter{otpLimiter, authLimiter} {
		if m, ok := l.(*ratelimit.MemoryLimiter); ok {
			m.Close()
		}
	}

	log.Info().Msg("Shutdown complete")
}

// connectRedis returns nil when Redis is unreachable and no backend requires
// it. OTP dispatch then falls back to direct sends.
func connectRedis(ctx context.Context, cfg *config.Config, log zerolog.Logger) *redis.Client {
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err == nil {
		return rdb
	}
	if cfg.CacheBackend == config.BackendRedis || cfg.RateLimitBackend == config.BackendRedis {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	log.Warn().Err(err).Msg("Redis unavailable, running with in-process backends")
	return nil
}

func newQuestionCache(cfg *config.Config, rdb *redis.Client) cache.Cache[model.QuestionSet] {
	opts := cache.Options{TTL: cfg.QuestionCacheTTL, Capacity: cfg.QuestionCacheSize}
	if cfg.CacheBackend == config.BackendRedis && rdb != nil {
		return cache.NewRedisCache[model.QuestionSet](rdb, "cache:", opts)
	}
	return cache.NewMemoryCache[model.QuestionSet](opts)
}

func newLimiter(backend config.Backend, rdb *redis.Client, prefix string, cfg ratelimit.Config) ratelimit.Limiter {
	if backend == config.BackendRedis && rdb != nil {
		return ratelimit.NewRedisLimiter(rdb, prefix, cfg)
	}
	return ratelimit.NewMemoryLimiter(cfg)
}

func newSMSProvider(cfg *config.Config, log zerolog.Logger) sms.Provider {
	smsCfg := sms.ConfigFrom(cfg)
	if smsCfg.APIURL == "" {
		if cfg.GinMode == "release" {
			log.Fatal().Msg("SMS_API_URL is required in release mode")
		}
		smsLog := log.With().Str("component", "sms").Logger()
		return sms.LogProvider{Logf: func(format string, args ...any) {
			smsLog.Warn().Msgf(format, args...)
		}}
	}
	if err := smsCfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid SMS configuration")
	}
	return sms.NewHTTPProvider(smsCfg)
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
