package middleware

import (
	"github.com/gin-gonic/gin"
)

// NoStore forbids any cache from keeping the response. Exam payloads are per
// session and must never be served from a shared cache.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store, no-cache, must-revalidate, private")
		c.Header("Pragma", "no-cache")
		c.Next()
	}
}
