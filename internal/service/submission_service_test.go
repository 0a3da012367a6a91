package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/apperror"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type submissionFixture struct {
	svc      *SubmissionService
	students *fakeStudentStore
	forms    *fakeFormStore
	claims   *Claims
}

func newSubmissionFixture() *submissionFixture {
	students := newFakeStudentStore(student(1, "R-001"))
	forms := newFakeFormStore()
	forms.add("form-a", "course-a",
		model.Question{ID: "q1", CorrectAnswer: []int{2}},
		model.Question{ID: "q2", CorrectAnswer: []int{1, 3}},
		model.Question{ID: "q3", CorrectAnswer: []int{4}},
	)
	clock := newFakeClock()
	svc := NewSubmissionService(students, forms, zerolog.Nop())
	svc.now = clock.Now
	return &submissionFixture{
		svc:      svc,
		students: students,
		forms:    forms,
		claims:   &Claims{StudentID: 1, RollNumber: "R-001", CourseID: "course-a"},
	}
}

func TestSubmissionService_ScoresAndLatches(t *testing.T) {
	f := newSubmissionFixture()

	res, err := f.svc.Submit(context.Background(), f.claims, map[string]int{"q1": 2, "q2": 3, "q3": 1})
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalQuestions)
	assert.Equal(t, 2, res.Marks)

	st := f.students.get(1)
	assert.True(t, st.Attempted)
	assert.False(t, st.Session.IsActive)
	assert.Equal(t, 2, st.Marks)
	assert.Equal(t, map[string]int{"q1": 2, "q2": 3, "q3": 1}, st.Answers)
	assert.NotNil(t, st.SubmittedAt)
}

func TestSubmissionService_SecondSubmitRejected(t *testing.T) {
	f := newSubmissionFixture()
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.claims, map[string]int{"q1": 2})
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, f.claims, map[string]int{"q1": 2, "q2": 1, "q3": 4})
	require.ErrorIs(t, err, apperror.ErrAlreadyAttempted)
	assert.Equal(t, "ALREADY_ATTEMPTED", apperror.As(err).Code)
	assert.Equal(t, 1, f.students.get(1).Marks)
}

func TestSubmissionService_ConcurrentSubmitsRecordOnce(t *testing.T) {
	f := newSubmissionFixture()

	const n = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, dupe int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Submit(context.Background(), f.claims, map[string]int{"q1": 2})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, apperror.ErrAlreadyAttempted):
				dupe++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, dupe)
}

func TestSubmissionService_Failures(t *testing.T) {
	f := newSubmissionFixture()
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, &Claims{StudentID: 99, CourseID: "course-a"}, map[string]int{})
	assert.ErrorIs(t, err, apperror.ErrIntegrityViolated)

	_, err = f.svc.Submit(ctx, &Claims{StudentID: 1, CourseID: "course-x"}, map[string]int{})
	assert.ErrorIs(t, err, apperror.ErrFormNotFound)
	assert.False(t, f.students.get(1).Attempted)

	_, err = f.svc.Submit(ctx, f.claims, map[string]int{"q1": 0})
	assert.ErrorIs(t, err, apperror.ErrInvalidAnswer)

	f.students.getErr = errors.New("read tcp 10.0.0.1:5432: i/o timeout")
	_, err = f.svc.Submit(ctx, f.claims, map[string]int{"q1": 1})
	assert.ErrorIs(t, err, apperror.ErrStoreUnavailable)
	assert.Equal(t, 503, apperror.As(err).HTTPStatus())
}

func TestSubmissionService_AttemptedWinsOverBadAnswers(t *testing.T) {
	f := newSubmissionFixture()
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.claims, map[string]int{"q1": 2})
	require.NoError(t, err)

	// A replay with a malformed body still reports the latch, so the client
	// drops its local state instead of retrying.
	_, err = f.svc.Submit(ctx, f.claims, map[string]int{"q1": 0})
	require.ErrorIs(t, err, apperror.ErrAlreadyAttempted)
	assert.Equal(t, 1, f.students.get(1).Marks)
}
