package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/apperror"
	"github.com/stemsi/exstem-portal/internal/repository"
)

// SubmitResult reports a recorded submission.
type SubmitResult struct {
	TotalQuestions int
	Marks          int
}

// SubmissionService scores and records a student's single submission.
type SubmissionService struct {
	students StudentStore
	forms    FormStore
	log      zerolog.Logger
	now      func() time.Time
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(students StudentStore, forms FormStore, log zerolog.Logger) *SubmissionService {
	return &SubmissionService{
		students: students,
		forms:    forms,
		log:      log.With().Str("component", "submission_service").Logger(),
		now:      time.Now,
	}
}

// Submit scores answers against the canonical key for the credential's course
// and latches attempted. Only the first submission per student is recorded.
func (s *SubmissionService) Submit(ctx context.Context, claims *Claims, answers map[string]int) (*SubmitResult, error) {
	st, err := s.students.GetByID(ctx, claims.StudentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Error().
				Int("student_id", claims.StudentID).
				Str("roll_number", claims.RollNumber).
				Msg("Integrity violation: valid session credential for missing student")
			return nil, apperror.ErrIntegrityViolated
		}
		return nil, apperror.FromStore(err)
	}
	if st.Attempted {
		return nil, apperror.ErrAlreadyAttempted
	}

	for key, option := range answers {
		if option < 1 {
			return nil, apperror.ErrInvalidAnswer.WithMessage("answer for %q must be a 1-based option index", key)
		}
	}

	questions, err := s.forms.ListQuestionsByCourse(ctx, claims.CourseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.ErrFormNotFound
		}
		return nil, apperror.FromStore(err)
	}

	marks := Score(questions, answers)

	recorded, err := s.students.RecordSubmission(ctx, st.ID, marks, answers, s.now())
	if err != nil {
		return nil, apperror.FromStore(err)
	}
	if !recorded {
		return nil, apperror.ErrAlreadyAttempted
	}

	s.log.Info().
		Int("student_id", st.ID).
		Str("roll_number", st.RollNumber).
		Int("marks", marks).
		Int("answered", len(answers)).
		Int("total", len(questions)).
		Msg("Submission recorded")

	return &SubmitResult{TotalQuestions: len(questions), Marks: marks}, nil
}
