package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/handler"
	"github.com/stemsi/exstem-portal/internal/middleware"
	"github.com/stemsi/exstem-portal/internal/ratelimit"
	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth   *handler.AuthHandler
	Exam   *handler.ExamHandler
	Health *handler.HealthHandler
}

// Deps carries the non-handler collaborators the routes need.
type Deps struct {
	Tokens      *service.TokenService
	Slots       middleware.SlotVerifier
	AuthLimiter ratelimit.Limiter
	Log         zerolog.Logger
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(handlers *Handlers, deps Deps, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()

	// ─── CORS ──────────────────────────────────────────────────────────
	// Restrict to AllowedOrigins when configured. Credentials require an
	// explicit origin, so the wildcard form only reflects the caller.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowOriginFunc = func(string) bool { return true }
	}
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", handler.HeaderDeviceID}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After", "X-RateLimit-Remaining"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(
		response.RequestIDMiddleware(deps.Log),
		middleware.RequestLogger(),
		gin.CustomRecovery(func(c *gin.Context, recovered any) {
			zerolog.Ctx(c.Request.Context()).Error().Interface("panic", recovered).Msg("Recovered from panic")
			response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
		}),
	)

	router.GET("/health", handlers.Health.Health)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/auth")
	auth.Use(middleware.RateLimit(deps.AuthLimiter, func(c *gin.Context) string {
		return config.CacheKey.AuthRateKey(c.ClientIP())
	}))
	{
		auth.POST("/send-otp", handlers.Auth.SendOTP)
		auth.POST("/verify-otp", handlers.Auth.VerifyOTP)
		auth.POST("/verify-roll", handlers.Auth.VerifyRoll)

		requireSession := middleware.RequireSession(deps.Tokens, cfg.SessionCookieName)
		auth.GET("/session", requireSession, middleware.NoStore(), handlers.Auth.Session)
		auth.POST("/logout", requireSession, handlers.Auth.Logout)
	}

	// ─── 2. Exam Group (Session + Single Device) ───────────────────────
	// Submit keeps working for SubmitGrace past expiry so a countdown that
	// ends with the session still gets recorded.
	exam := router.Group("/api/exam")
	exam.Use(middleware.NoStore())
	{
		exam.GET("/questions",
			middleware.RequireSession(deps.Tokens, cfg.SessionCookieName),
			middleware.CheckSingleDeviceSession(deps.Slots, 0),
			middleware.Compress(),
			handlers.Exam.GetQuestions,
		)
		exam.POST("/submit",
			middleware.RequireSessionWithGrace(deps.Tokens, cfg.SessionCookieName, cfg.SubmitGrace),
			middleware.CheckSingleDeviceSession(deps.Slots, cfg.SubmitGrace),
			handlers.Exam.Submit,
		)
	}

	router.NoRoute(func(c *gin.Context) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	})

	return router
}
