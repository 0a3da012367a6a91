package apperror

import "net/http"

// Domain errors shared by services and handlers.
var (
	ErrInvalidPhone      = Validation("INVALID_PHONE", "phone number must be exactly 10 digits")
	ErrInvalidOTPFormat  = Validation("INVALID_OTP_FORMAT", "verification code must be exactly 6 digits")
	ErrInvalidOTP        = Validation("INVALID_OTP", "invalid verification code")
	ErrOTPExpired        = Validation("OTP_EXPIRED", "verification code has expired, request a new one")
	ErrResendTooSoon     = RateLimit("OTP_RESEND_TOO_SOON", "please wait before requesting another code")
	ErrRateLimited       = RateLimit("RATE_LIMIT_EXCEEDED", "too many requests, try again later")
	ErrFormIDRequired    = Validation("FORM_ID_REQUIRED", "form id is required")
	ErrInvalidAnswer     = Validation("INVALID_ANSWER", "answer is out of range for this question")
	ErrTokenRequired     = Auth("TOKEN_REQUIRED", "authentication is required")
	ErrTokenInvalid      = Auth("TOKEN_INVALID", "credential is invalid or has expired")
	ErrSessionReplaced   = Auth("SESSION_INVALIDATED", "this exam session is no longer active on this device")
	ErrStudentNotFound   = NotFound("STUDENT_NOT_FOUND", "no student found for this roll number")
	ErrFormNotFound      = NotFound("FORM_NOT_FOUND", "no question set found for this form")
	ErrAlreadyAttempted  = New(KindConflict, "ALREADY_ATTEMPTED", "this exam has already been attempted")
	ErrSessionConflict   = &Error{Kind: KindConflict, Code: "SESSION_CONFLICT", Message: "an exam session is already active on another device", Status: http.StatusConflict}
	ErrStoreUnavailable  = New(KindTransientStore, "SERVICE_UNAVAILABLE", "service temporarily unavailable, please retry")
	ErrIntegrityViolated = NotFound("STUDENT_NOT_FOUND", "student record not found for this session")
)
