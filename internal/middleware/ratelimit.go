package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/ratelimit"
)

// RateLimit bounds requests per key, where key is derived from the request
// (usually the client IP). Limiter failures let the request through.
func RateLimit(limiter ratelimit.Limiter, key func(c *gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		info, err := limiter.Allow(c.Request.Context(), key(c))
		if err != nil {
			zerolog.Ctx(c.Request.Context()).Warn().Err(err).Msg("Rate limiter unavailable")
			c.Next()
			return
		}

		if !info.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(info.RetryAfter.Seconds())+1))
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		c.Next()
	}
}
