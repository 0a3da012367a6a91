package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/apperror"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type identityFixture struct {
	svc      *IdentityService
	students *fakeStudentStore
	tokens   *TokenService
	clock    *fakeClock
}

func newIdentityFixture(students ...*model.Student) *identityFixture {
	clock := newFakeClock()
	store := newFakeStudentStore(students...)
	tokens := newTestTokens(clock)
	svc := NewIdentityService(store, tokens, zerolog.Nop())
	svc.now = clock.Now
	return &identityFixture{svc: svc, students: store, tokens: tokens, clock: clock}
}

func (f *identityFixture) verification(t *testing.T) string {
	t.Helper()
	token, err := f.tokens.IssueVerification("9876543210")
	require.NoError(t, err)
	return token
}

func student(id int, roll string) *model.Student {
	return &model.Student{ID: id, RollNumber: roll, Name: "Student " + roll, CourseID: "course-a", College: "GEC"}
}

func TestIdentityService_ClaimSession(t *testing.T) {
	f := newIdentityFixture(student(1, "R-001"))

	res, err := f.svc.ClaimSession(context.Background(), ClaimInput{
		VerificationToken: f.verification(t),
		RollNumber:        "R-001",
		DeviceID:          "device-a",
	})
	require.NoError(t, err)

	assert.Equal(t, "Student R-001", res.Student.Name)
	assert.Equal(t, f.clock.Now().Add(5*time.Hour).Unix(), res.ExpiresAt.Unix())

	claims, err := f.tokens.Parse(res.Token, TokenTypeSession)
	require.NoError(t, err)
	assert.Equal(t, 1, claims.StudentID)
	assert.Equal(t, "9876543210", claims.Phone)
	assert.Equal(t, "course-a", claims.CourseID)

	stored := f.students.get(1)
	assert.True(t, stored.Session.IsActive)
	assert.Equal(t, "device-a", stored.Session.DeviceID)
	assert.Equal(t, "9876543210", stored.Phone)
}

func TestIdentityService_ClaimSession_Rejections(t *testing.T) {
	attempted := student(2, "R-002")
	attempted.Attempted = true

	f := newIdentityFixture(student(1, "R-001"), attempted)
	ctx := context.Background()

	_, err := f.svc.ClaimSession(ctx, ClaimInput{VerificationToken: "garbage", RollNumber: "R-001"})
	assert.ErrorIs(t, err, apperror.ErrTokenInvalid)

	_, err = f.svc.ClaimSession(ctx, ClaimInput{VerificationToken: f.verification(t), RollNumber: "R-404"})
	assert.ErrorIs(t, err, apperror.ErrStudentNotFound)

	_, err = f.svc.ClaimSession(ctx, ClaimInput{VerificationToken: f.verification(t), RollNumber: "R-002"})
	assert.ErrorIs(t, err, apperror.ErrAlreadyAttempted)
	assert.Equal(t, http.StatusBadRequest, apperror.As(err).HTTPStatus())
}

func TestIdentityService_ClaimSession_ExpiredVerification(t *testing.T) {
	f := newIdentityFixture(student(1, "R-001"))
	token := f.verification(t)

	f.clock.Advance(11 * time.Minute)

	_, err := f.svc.ClaimSession(context.Background(), ClaimInput{VerificationToken: token, RollNumber: "R-001"})
	assert.ErrorIs(t, err, apperror.ErrTokenInvalid)
}

func TestIdentityService_ClaimSession_ActiveSessionConflicts(t *testing.T) {
	f := newIdentityFixture()
	occupied := student(1, "R-001")
	expires := f.clock.Now().Add(time.Hour)
	occupied.Session = model.SessionData{IsActive: true, DeviceID: "device-a", ExpiresAt: &expires}
	f.students.students[1] = occupied

	_, err := f.svc.ClaimSession(context.Background(), ClaimInput{
		VerificationToken: f.verification(t),
		RollNumber:        "R-001",
		DeviceID:          "device-b",
	})
	require.ErrorIs(t, err, apperror.ErrSessionConflict)

	appErr := apperror.As(err)
	assert.Equal(t, http.StatusConflict, appErr.HTTPStatus())
	assert.Contains(t, appErr.Message, "device-a")
}

func TestIdentityService_ClaimSession_ExpiredSessionIsTakenOver(t *testing.T) {
	f := newIdentityFixture()
	stale := student(1, "R-001")
	expired := f.clock.Now().Add(-time.Hour)
	stale.Session = model.SessionData{IsActive: true, DeviceID: "device-a", ExpiresAt: &expired}
	f.students.students[1] = stale

	_, err := f.svc.ClaimSession(context.Background(), ClaimInput{
		VerificationToken: f.verification(t),
		RollNumber:        "R-001",
		DeviceID:          "device-b",
	})
	require.NoError(t, err)
	assert.Equal(t, "device-b", f.students.get(1).Session.DeviceID)
}

func TestIdentityService_ClaimSession_LosesRace(t *testing.T) {
	f := newIdentityFixture(student(1, "R-001"))
	expires := f.clock.Now().Add(5 * time.Hour)
	f.students.beforeClaim = func(st *model.Student) {
		st.Session = model.SessionData{IsActive: true, DeviceID: "device-x", ExpiresAt: &expires}
	}

	_, err := f.svc.ClaimSession(context.Background(), ClaimInput{
		VerificationToken: f.verification(t),
		RollNumber:        "R-001",
		DeviceID:          "device-b",
	})
	require.ErrorIs(t, err, apperror.ErrSessionConflict)
	assert.Contains(t, apperror.As(err).Message, "device-x")
}

func TestIdentityService_ClaimSession_ConcurrentClaimsOneWinner(t *testing.T) {
	f := newIdentityFixture(student(1, "R-001"))
	token := f.verification(t)

	const n = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ClaimSession(context.Background(), ClaimInput{
				VerificationToken: token,
				RollNumber:        "R-001",
				DeviceID:          string(rune('a' + i)),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, apperror.ErrSessionConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, conflicts)
}

func TestIdentityService_ReleaseAndSessionInfo(t *testing.T) {
	f := newIdentityFixture(student(1, "R-001"))
	ctx := context.Background()

	res, err := f.svc.ClaimSession(ctx, ClaimInput{VerificationToken: f.verification(t), RollNumber: "R-001", DeviceID: "device-a"})
	require.NoError(t, err)
	claims, err := f.tokens.Parse(res.Token, TokenTypeSession)
	require.NoError(t, err)

	info, err := f.svc.SessionInfo(ctx, claims)
	require.NoError(t, err)
	assert.Equal(t, "R-001", info.Student.RollNumber)
	assert.Equal(t, res.ExpiresAt.Unix(), info.ExpiresAt.Unix())

	require.NoError(t, f.svc.Release(ctx, claims))
	assert.False(t, f.students.get(1).Session.IsActive)

	_, err = f.svc.ClaimSession(ctx, ClaimInput{VerificationToken: f.verification(t), RollNumber: "R-001", DeviceID: "device-b"})
	assert.NoError(t, err)
}

func TestIdentityService_VerifySlot(t *testing.T) {
	f := newIdentityFixture(student(1, "R-001"))
	ctx := context.Background()

	res, err := f.svc.ClaimSession(ctx, ClaimInput{VerificationToken: f.verification(t), RollNumber: "R-001", DeviceID: "device-a"})
	require.NoError(t, err)
	claims, err := f.tokens.Parse(res.Token, TokenTypeSession)
	require.NoError(t, err)

	t.Run("holder passes", func(t *testing.T) {
		assert.NoError(t, f.svc.VerifySlot(ctx, claims, 0))
	})

	t.Run("other device is replaced", func(t *testing.T) {
		other := *claims
		other.DeviceID = "device-b"
		assert.ErrorIs(t, f.svc.VerifySlot(ctx, &other, 0), apperror.ErrSessionReplaced)
	})

	t.Run("released slot is replaced", func(t *testing.T) {
		require.NoError(t, f.svc.Release(ctx, claims))
		defer func() { f.students.students[1].Session.IsActive = true }()
		assert.ErrorIs(t, f.svc.VerifySlot(ctx, claims, 0), apperror.ErrSessionReplaced)
	})

	t.Run("expired slot is replaced", func(t *testing.T) {
		f.clock.Advance(6 * time.Hour)
		defer f.clock.Advance(-6 * time.Hour)
		assert.ErrorIs(t, f.svc.VerifySlot(ctx, claims, 0), apperror.ErrSessionReplaced)
	})

	t.Run("expired slot is held during grace", func(t *testing.T) {
		f.clock.Advance(5*time.Hour + time.Minute)
		defer f.clock.Advance(-5*time.Hour - time.Minute)
		assert.NoError(t, f.svc.VerifySlot(ctx, claims, 2*time.Minute))
		assert.ErrorIs(t, f.svc.VerifySlot(ctx, claims, 30*time.Second), apperror.ErrSessionReplaced)
	})

	t.Run("submitted student passes", func(t *testing.T) {
		f.students.students[1].Attempted = true
		defer func() { f.students.students[1].Attempted = false }()
		f.clock.Advance(6 * time.Hour)
		defer f.clock.Advance(-6 * time.Hour)
		assert.NoError(t, f.svc.VerifySlot(ctx, claims, 0))
	})

	t.Run("missing student", func(t *testing.T) {
		ghost := *claims
		ghost.StudentID = 99
		assert.ErrorIs(t, f.svc.VerifySlot(ctx, &ghost, 0), apperror.ErrIntegrityViolated)
	})

	t.Run("store unavailable", func(t *testing.T) {
		f.students.getErr = errors.New("dial tcp 10.0.0.1:5432: connection refused")
		defer func() { f.students.getErr = nil }()
		err := f.svc.VerifySlot(ctx, claims, 0)
		var appErr *apperror.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperror.KindTransientStore, appErr.Kind)
	})
}
