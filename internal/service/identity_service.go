package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/apperror"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/repository"
)

// ClaimInput is a request to bind a verified phone to a roll number.
type ClaimInput struct {
	VerificationToken string
	RollNumber        string
	DeviceID          string
}

// ClaimResult carries the issued session credential.
type ClaimResult struct {
	Token     string
	Student   model.StudentInfo
	StartedAt time.Time
	ExpiresAt time.Time
}

// IdentityService moves a student from PhoneVerified to SessionActive.
type IdentityService struct {
	students StudentStore
	tokens   *TokenService
	log      zerolog.Logger
	now      func() time.Time
}

// NewIdentityService creates a new IdentityService.
func NewIdentityService(students StudentStore, tokens *TokenService, log zerolog.Logger) *IdentityService {
	return &IdentityService{
		students: students,
		tokens:   tokens,
		log:      log.With().Str("component", "identity_service").Logger(),
		now:      time.Now,
	}
}

// ClaimSession verifies the phone credential, then takes the student's exam
// slot for this device. A flagged session whose expiry has passed does not
// block the claim.
func (s *IdentityService) ClaimSession(ctx context.Context, in ClaimInput) (*ClaimResult, error) {
	claims, err := s.tokens.Parse(in.VerificationToken, TokenTypeVerification)
	if err != nil {
		return nil, err
	}

	st, err := s.students.GetByRoll(ctx, in.RollNumber)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.ErrStudentNotFound
		}
		return nil, apperror.FromStore(err)
	}

	now := s.now()
	if err := checkClaimable(st, now); err != nil {
		return nil, err
	}

	start := now.Truncate(time.Second)
	expires := start.Add(s.tokens.SessionTTL())

	won, err := s.students.ClaimSession(ctx, st.ID, in.DeviceID, claims.Phone, start, expires)
	if err != nil {
		return nil, apperror.FromStore(err)
	}
	if !won {
		// Another request changed the record between the read and the
		// conditional update. Re-read to report why.
		current, err := s.students.GetByID(ctx, st.ID)
		if err != nil {
			return nil, apperror.FromStore(err)
		}
		if err := checkClaimable(current, s.now()); err != nil {
			return nil, err
		}
		return nil, apperror.ErrSessionConflict
	}

	token, err := s.tokens.IssueSession(st, claims.Phone, in.DeviceID, start, expires)
	if err != nil {
		return nil, apperror.Unexpected(err)
	}

	s.log.Info().
		Int("student_id", st.ID).
		Str("roll_number", st.RollNumber).
		Str("device_id", in.DeviceID).
		Time("expires_at", expires).
		Msg("Exam session claimed")

	return &ClaimResult{
		Token:     token,
		Student:   st.Info(),
		StartedAt: start,
		ExpiresAt: expires,
	}, nil
}

func checkClaimable(st *model.Student, now time.Time) error {
	if st.Attempted {
		return apperror.ErrAlreadyAttempted
	}
	if st.Session.OccupiedAt(now) {
		return apperror.ErrSessionConflict.WithMessage(
			"an exam session is already active on device %s", st.Session.DeviceID)
	}
	return nil
}

// SessionInfo returns the snapshot of the student behind a session
// credential. The attempted latch is re-read from the store.
func (s *IdentityService) SessionInfo(ctx context.Context, claims *Claims) (*ClaimResult, error) {
	st, err := s.students.GetByID(ctx, claims.StudentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.ErrIntegrityViolated
		}
		return nil, apperror.FromStore(err)
	}
	if st.Attempted {
		return nil, apperror.ErrAlreadyAttempted
	}
	return &ClaimResult{
		Student:   st.Info(),
		StartedAt: time.Unix(claims.SessionStart, 0),
		ExpiresAt: claims.ExpiresTime(),
	}, nil
}

// Release frees the slot held by the credential's device so the student can
// resume elsewhere before expiry.
func (s *IdentityService) Release(ctx context.Context, claims *Claims) error {
	if err := s.students.ReleaseSession(ctx, claims.StudentID, claims.DeviceID); err != nil {
		return apperror.FromStore(err)
	}
	s.log.Info().Int("student_id", claims.StudentID).Msg("Exam session released")
	return nil
}

// VerifySlot checks that the credential's device still holds the student's
// exam slot, counting a session as held for grace past its expiry.
// Submitted students pass so the submission path can report
// ALREADY_ATTEMPTED itself.
func (s *IdentityService) VerifySlot(ctx context.Context, claims *Claims, grace time.Duration) error {
	st, err := s.students.GetByID(ctx, claims.StudentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.ErrIntegrityViolated
		}
		return apperror.FromStore(err)
	}
	if st.Attempted {
		return nil
	}
	if !st.Session.OccupiedAt(s.now().Add(-grace)) || st.Session.DeviceID != claims.DeviceID {
		return apperror.ErrSessionReplaced
	}
	return nil
}
