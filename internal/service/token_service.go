package service

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-portal/internal/apperror"
	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/model"
)

// TokenType distinguishes the short-lived phone proof from the exam session.
type TokenType string

const (
	TokenTypeVerification TokenType = "verification"
	TokenTypeSession      TokenType = "session"
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"token_type"`
	Phone     string    `json:"phone"`
	Verified  bool      `json:"verified,omitempty"` // Verification only

	// Session only.
	StudentID      int    `json:"student_id,omitempty"`
	RollNumber     string `json:"roll_number,omitempty"`
	Name           string `json:"name,omitempty"`
	CourseID       string `json:"course_id,omitempty"`
	DeviceID       string `json:"device_id,omitempty"`
	SessionStart   int64  `json:"session_start,omitempty"`
	SessionExpires int64  `json:"session_expires,omitempty"`
}

// ExpiresTime returns the session expiry carried in the claims.
func (c *Claims) ExpiresTime() time.Time {
	return time.Unix(c.SessionExpires, 0)
}

// TokenService signs and verifies both credential kinds with one HMAC secret.
type TokenService struct {
	secret          []byte
	verificationTTL time.Duration
	sessionTTL      time.Duration
	now             func() time.Time
}

// NewTokenService creates a new TokenService.
func NewTokenService(cfg *config.Config) *TokenService {
	return &TokenService{
		secret:          []byte(cfg.JWTSecret),
		verificationTTL: cfg.VerificationTTL,
		sessionTTL:      cfg.SessionDuration,
		now:             time.Now,
	}
}

// SessionTTL is the lifetime of a session credential and of the exam itself.
func (s *TokenService) SessionTTL() time.Duration { return s.sessionTTL }

// IssueVerification creates the credential proving control of phone.
func (s *TokenService) IssueVerification(phone string) (string, error) {
	now := s.now()
	return s.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   phone,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.verificationTTL)),
		},
		TokenType: TokenTypeVerification,
		Phone:     phone,
		Verified:  true,
	})
}

// IssueSession creates the exam session credential for a claimed slot.
func (s *TokenService) IssueSession(st *model.Student, phone, deviceID string, start, expires time.Time) (string, error) {
	return s.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   strconv.Itoa(st.ID),
			IssuedAt:  jwt.NewNumericDate(start),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		TokenType:      TokenTypeSession,
		Phone:          phone,
		StudentID:      st.ID,
		RollNumber:     st.RollNumber,
		Name:           st.Name,
		CourseID:       st.CourseID,
		DeviceID:       deviceID,
		SessionStart:   start.Unix(),
		SessionExpires: expires.Unix(),
	})
}

func (s *TokenService) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse validates signature, expiry and kind. Any failure is reported as
// TOKEN_INVALID.
func (s *TokenService) Parse(tokenStr string, want TokenType) (*Claims, error) {
	return s.ParseWithLeeway(tokenStr, want, 0)
}

// ParseWithLeeway is Parse accepting a credential up to leeway past its
// expiry.
func (s *TokenService) ParseWithLeeway(tokenStr string, want TokenType, leeway time.Duration) (*Claims, error) {
	if tokenStr == "" {
		return nil, apperror.ErrTokenRequired
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired(), jwt.WithLeeway(leeway))
	if err != nil {
		return nil, apperror.ErrTokenInvalid.WithCause(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, apperror.ErrTokenInvalid.WithCause(errors.New("invalid token claims"))
	}
	if claims.TokenType != want {
		return nil, apperror.ErrTokenInvalid.WithCause(fmt.Errorf("token type %q, want %q", claims.TokenType, want))
	}
	if want == TokenTypeVerification && !claims.Verified {
		return nil, apperror.ErrTokenInvalid.WithCause(errors.New("phone not verified"))
	}
	if want == TokenTypeSession && claims.StudentID == 0 {
		return nil, apperror.ErrTokenInvalid.WithCause(errors.New("missing student id"))
	}
	return claims, nil
}
