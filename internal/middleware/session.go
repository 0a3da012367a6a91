package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-portal/internal/apperror"
	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/service"
)

// SlotVerifier confirms that a credential's device still holds the exam slot.
type SlotVerifier interface {
	VerifySlot(ctx context.Context, claims *service.Claims, grace time.Duration) error
}

// CheckSingleDeviceSession rejects credentials whose device no longer holds
// the student's slot, e.g. after logout and a claim from another device.
// A slot is still held for grace past its expiry. Must run after
// RequireSession.
func CheckSingleDeviceSession(slots SlotVerifier, grace time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortError(c, apperror.ErrTokenRequired)
			return
		}

		if err := slots.VerifySlot(c.Request.Context(), claims, grace); err != nil {
			response.AbortError(c, err)
			return
		}

		c.Next()
	}
}
