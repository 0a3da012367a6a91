package examclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, srv *httptest.Server) *APIClient {
	t.Helper()
	c, err := NewAPIClient(APIConfig{BaseURL: srv.URL, DeviceID: "device-1", Backoff: time.Millisecond})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewAPIClient_RejectsRelativeURL(t *testing.T) {
	_, err := NewAPIClient(APIConfig{BaseURL: "/api"})
	assert.Error(t, err)
}

func TestAPIClient_CookieCarriesSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/verify-roll", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "device-1", r.Header.Get("X-Device-ID"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "R-001", body["rollNumber"])
		assert.Equal(t, "vtoken", body["token"])

		http.SetCookie(w, &http.Cookie{Name: "exam_session", Value: "stoken", Path: "/"})
		writeJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"studentName": "Asha Rao",
			"expiresAt":   "2026-03-02T14:00:00Z",
			"studentInfo": map[string]string{"name": "Asha Rao", "rollNumber": "R-001", "courseId": "CS101"},
		})
	})
	mux.HandleFunc("/api/exam/questions", func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("exam_session")
		if err != nil || cookie.Value != "stoken" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "code": "TOKEN_REQUIRED", "message": "authentication is required"})
			return
		}
		assert.Equal(t, "form-1", r.URL.Query().Get("formId"))
		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"formId":    "form-1",
			"questions": []map[string]any{{"id": "q1", "question": "2+2?", "options": []string{"3", "4"}}},
			"metadata":  map[string]any{"totalQuestions": 1, "cacheHit": false},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := newTestClient(t, srv)
	ctx := context.Background()

	_, err := c.Questions(ctx, "form-1")
	require.True(t, IsUnauthorized(err))

	roll, err := c.VerifyRoll(ctx, "R-001", "vtoken")
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", roll.StudentName)
	assert.Equal(t, "CS101", roll.StudentInfo.CourseID)
	assert.Equal(t, time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC), roll.ExpiresAt.UTC())

	qs, err := c.Questions(ctx, "form-1")
	require.NoError(t, err)
	require.Len(t, qs.Questions, 1)
	assert.Equal(t, "q1", qs.Questions[0].ID)
	assert.Equal(t, 1, qs.Metadata.TotalQuestions)
}

func TestAPIClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"code": "SERVICE_UNAVAILABLE", "message": "retry"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "token": "vtoken"})
	}))
	defer srv.Close()

	token, err := newTestClient(t, srv).VerifyOTP(context.Background(), "9876543210", "123456")

	require.NoError(t, err)
	assert.Equal(t, "vtoken", token)
	assert.EqualValues(t, 3, calls.Load())
}

func TestAPIClient_GivesUpAfterRetryBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"code": "SERVICE_UNAVAILABLE", "message": "down"})
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).SendOTP(context.Background(), "9876543210", "")

	require.Error(t, err)
	assert.True(t, IsAPICode(err, "SERVICE_UNAVAILABLE"))
	assert.EqualValues(t, 1+OpSendOTP.Retries, calls.Load())
}

func TestAPIClient_NoRetryOnClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false, "code": "INVALID_OTP", "message": "invalid verification code", "requestId": "req-9",
		})
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).VerifyOTP(context.Background(), "9876543210", "000000")

	require.Error(t, err)
	assert.True(t, IsAPICode(err, "INVALID_OTP"))
	assert.Contains(t, err.Error(), "req-9")
	assert.EqualValues(t, 1, calls.Load())
}

func TestAPIClient_SubmitIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"code": "INTERNAL_ERROR", "message": "boom"})
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Submit(context.Background(), map[string]int{"q1": 1})

	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestAPIClient_AttemptTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv)
	start := time.Now()
	err := c.do(context.Background(), Operation{Name: "slow", Timeout: 50 * time.Millisecond, Retries: 1},
		http.MethodGet, "/slow", nil, nil)

	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAPIClient_DecodesBrotli(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Accept-Encoding"), "br")
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		_ = json.NewEncoder(bw).Encode(map[string]any{"success": true, "totalQuestions": 25})
		_ = bw.Close()
		w.Header().Set("Content-Encoding", "br")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	res, err := newTestClient(t, srv).Submit(context.Background(), map[string]int{})

	require.NoError(t, err)
	assert.Equal(t, 25, res.TotalQuestions)
}

func TestAPIClient_BearerSurvivesRestart(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/verify-roll", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "exam_session", Value: "stoken", Path: "/"})
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "studentName": "Asha Rao"})
	})
	mux.HandleFunc("/api/auth/session", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer stoken" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "code": "TOKEN_REQUIRED", "message": "authentication is required"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"studentInfo": map[string]string{"name": "Asha Rao", "rollNumber": "R-001", "courseId": "CS101"},
		})
	})
	mux.HandleFunc("/api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "exam_session", Value: "", Path: "/", MaxAge: -1})
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	ctx := context.Background()

	first := newTestClient(t, srv)
	roll, err := first.VerifyRoll(ctx, "R-001", "vtoken")
	require.NoError(t, err)
	assert.Equal(t, "stoken", roll.Token)
	assert.Equal(t, "stoken", first.SessionToken())

	// A new process has an empty cookie jar.
	second := newTestClient(t, srv)
	_, err = second.Session(ctx)
	require.True(t, IsUnauthorized(err))

	second.SetSessionToken(roll.Token)
	sess, err := second.Session(ctx)
	require.NoError(t, err)
	assert.Equal(t, "R-001", sess.StudentInfo.RollNumber)

	require.NoError(t, second.Logout(ctx))
	assert.Empty(t, second.SessionToken())
}
