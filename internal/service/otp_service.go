package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/apperror"
	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/ratelimit"
	"github.com/stemsi/exstem-portal/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

var otpUpperBound = big.NewInt(1_000_000)

// OTPPolicy holds the passcode timing rules.
type OTPPolicy struct {
	TTL            time.Duration
	ResendInterval time.Duration
	BcryptCost     int
}

// OTPPolicyFrom extracts the passcode rules from the application config.
func OTPPolicyFrom(cfg *config.Config) OTPPolicy {
	return OTPPolicy{
		TTL:            cfg.OTPTTL,
		ResendInterval: cfg.OTPResendInterval,
		BcryptCost:     cfg.BcryptCost,
	}
}

// SendOTPInput is one passcode request.
type SendOTPInput struct {
	Phone       string
	CountryCode string
	ClientIP    string
}

// OTPService issues and verifies one-time passcodes.
type OTPService struct {
	otps       OTPStore
	limiter    ratelimit.Limiter
	dispatcher Dispatcher
	tokens     *TokenService
	policy     OTPPolicy
	log        zerolog.Logger
	now        func() time.Time
}

// NewOTPService creates a new OTPService.
func NewOTPService(
	otps OTPStore,
	limiter ratelimit.Limiter,
	dispatcher Dispatcher,
	tokens *TokenService,
	policy OTPPolicy,
	log zerolog.Logger,
) *OTPService {
	return &OTPService{
		otps:       otps,
		limiter:    limiter,
		dispatcher: dispatcher,
		tokens:     tokens,
		policy:     policy,
		log:        log.With().Str("component", "otp_service").Logger(),
		now:        time.Now,
	}
}

// RequestCode generates, stores and dispatches a new passcode for the phone.
// Delivery failures are logged only: the code is already stored and the user
// can ask again once the resend interval passes.
func (s *OTPService) RequestCode(ctx context.Context, in SendOTPInput) error {
	if !model.IsPhone(in.Phone) {
		return apperror.ErrInvalidPhone
	}
	if in.CountryCode == "" {
		in.CountryCode = model.DefaultCountryCode
	}

	now := s.now()

	existing, err := s.otps.FindByPhone(ctx, in.Phone)
	switch {
	case err == nil:
		if existing.Age(now) < s.policy.ResendInterval {
			return apperror.ErrResendTooSoon
		}
	case errors.Is(err, repository.ErrNotFound):
	default:
		return apperror.FromStore(err)
	}

	info, err := s.limiter.Allow(ctx, config.CacheKey.OTPRateKey(in.ClientIP, in.Phone))
	if err != nil {
		// Fail open: counters are best effort.
		s.log.Warn().Err(err).Msg("OTP rate limiter unavailable")
	} else if !info.Allowed {
		return apperror.ErrRateLimited.WithMessage(
			"too many verification requests, try again in %d minutes", int(info.RetryAfter.Minutes())+1)
	}

	code, err := generateCode()
	if err != nil {
		return apperror.Unexpected(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.policy.BcryptCost)
	if err != nil {
		return apperror.Unexpected(fmt.Errorf("hash otp: %w", err))
	}

	if err := s.otps.Upsert(ctx, &model.OTPRecord{
		Phone:       in.Phone,
		CountryCode: in.CountryCode,
		CodeHash:    string(hash),
		CreatedAt:   now.Truncate(time.Microsecond),
	}); err != nil {
		return apperror.FromStore(err)
	}

	if err := s.dispatcher.Dispatch(ctx, model.OTPDispatch{
		Phone:       in.Phone,
		CountryCode: in.CountryCode,
		Code:        code,
	}); err != nil {
		s.log.Error().Err(err).Str("phone", maskPhone(in.Phone)).Msg("OTP dispatch failed")
	}

	return nil
}

// VerifyCode checks the passcode and, on success, consumes it and returns a
// verification credential.
func (s *OTPService) VerifyCode(ctx context.Context, phone, code string) (string, error) {
	if !model.IsPhone(phone) {
		return "", apperror.ErrInvalidPhone
	}
	if !model.IsOTPCode(code) {
		return "", apperror.ErrInvalidOTPFormat
	}

	rec, err := s.otps.FindByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", apperror.ErrInvalidOTP
		}
		return "", apperror.FromStore(err)
	}

	if bcrypt.CompareHashAndPassword([]byte(rec.CodeHash), []byte(code)) != nil {
		return "", apperror.ErrInvalidOTP
	}

	if rec.Age(s.now()) > s.policy.TTL {
		if err := s.otps.Delete(ctx, phone); err != nil {
			s.log.Warn().Err(err).Str("phone", maskPhone(phone)).Msg("Failed to delete expired OTP")
		}
		return "", apperror.ErrOTPExpired
	}

	consumed, err := s.otps.Consume(ctx, phone, rec.CreatedAt)
	switch {
	case err != nil:
		// Issuance proceeds; the record stays until expiry.
		s.log.Error().Err(err).Str("phone", maskPhone(phone)).Msg("Failed to consume OTP")
	case !consumed:
		return "", apperror.ErrInvalidOTP
	}

	token, err := s.tokens.IssueVerification(phone)
	if err != nil {
		return "", apperror.Unexpected(err)
	}
	return token, nil
}

// generateCode returns a uniformly random 6-digit string.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, otpUpperBound)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func maskPhone(phone string) string {
	if len(phone) < 4 {
		return "****"
	}
	return "******" + phone[len(phone)-4:]
}
