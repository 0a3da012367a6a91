package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-portal/internal/apperror"
	"github.com/stemsi/exstem-portal/internal/middleware"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/service"
)

// AuthHandler handles the phone verification and session claim endpoints.
type AuthHandler struct {
	otp      OTPService
	identity IdentityService
	cookie   CookieConfig
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(otp OTPService, identity IdentityService, cookie CookieConfig) *AuthHandler {
	return &AuthHandler{otp: otp, identity: identity, cookie: cookie}
}

// SendOTP godoc
// POST /api/auth/send-otp
// Generates and dispatches a passcode for the phone.
func (h *AuthHandler) SendOTP(c *gin.Context) {
	var req model.SendOTPRequest
	if !bind(c, &req) {
		return
	}

	err := h.otp.RequestCode(c.Request.Context(), service.SendOTPInput{
		Phone:       req.Phone,
		CountryCode: req.CountryCode,
		ClientIP:    c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Verification code sent. If it does not arrive, request a new one in a minute.",
	})
}

// VerifyOTP godoc
// POST /api/auth/verify-otp
// Consumes the passcode and returns a short-lived verification token.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req model.VerifyOTPRequest
	if !bind(c, &req) {
		return
	}

	token, err := h.otp.VerifyCode(c.Request.Context(), req.Phone, req.OTP)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"token": token})
}

// VerifyRoll godoc
// POST /api/auth/verify-roll
// Claims the exam slot for the roll number and sets the session cookie.
func (h *AuthHandler) VerifyRoll(c *gin.Context) {
	var req model.VerifyRollRequest
	if !bind(c, &req) {
		return
	}

	res, err := h.identity.ClaimSession(c.Request.Context(), service.ClaimInput{
		VerificationToken: req.Token,
		RollNumber:        req.RollNumber,
		DeviceID:          deviceID(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	h.cookie.set(c, res.Token)
	response.Success(c, http.StatusOK, gin.H{
		"studentName": res.Student.Name,
		"expiresAt":   res.ExpiresAt.UTC().Format(time.RFC3339),
		"studentInfo": res.Student,
	})
}

// Session godoc
// GET /api/auth/session
// Returns the student snapshot and expiry behind the session cookie.
func (h *AuthHandler) Session(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Error(c, apperror.ErrTokenRequired)
		return
	}

	res, err := h.identity.SessionInfo(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"studentInfo": res.Student,
		"startedAt":   res.StartedAt.UTC().Format(time.RFC3339),
		"expiresAt":   res.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Logout godoc
// POST /api/auth/logout
// Releases the exam slot held by this device and clears the cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Error(c, apperror.ErrTokenRequired)
		return
	}

	if err := h.identity.Release(c.Request.Context(), claims); err != nil {
		response.Error(c, err)
		return
	}

	h.cookie.clear(c)
	response.Success(c, http.StatusOK, nil)
}
