package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/service"
)

const (
	// ContextKeyClaims is the Gin context key for session claims.
	ContextKeyClaims = "claims"
)

// RequireSession validates the session credential from the cookie, or from
// an Authorization bearer header for non-browser clients.
func RequireSession(tokens *service.TokenService, cookieName string) gin.HandlerFunc {
	return RequireSessionWithGrace(tokens, cookieName, 0)
}

// RequireSessionWithGrace is RequireSession accepting a credential up to
// grace past its expiry.
func RequireSessionWithGrace(tokens *service.TokenService, cookieName string, grace time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := tokens.ParseWithLeeway(extractToken(c, cookieName), service.TokenTypeSession, grace)
		if err != nil {
			response.AbortError(c, err)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims retrieves the session claims from the Gin context.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.Claims)
	if !ok {
		return nil
	}
	return claims
}

func extractToken(c *gin.Context, cookieName string) string {
	if cookie, err := c.Cookie(cookieName); err == nil && cookie != "" {
		return cookie
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}
	return ""
}
