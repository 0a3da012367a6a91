// Package examclient is the client side of the exam portal: the HTTP API
// client, durable local storage, the verification flow and the exam session
// state machine.
package examclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stemsi/exstem-portal/internal/model"
)

// Operation names one API call with its timeout and retry budget.
type Operation struct {
	Name    string
	Timeout time.Duration
	// Retries is the number of extra attempts after a transient failure.
	Retries int
}

var (
	OpSendOTP    = Operation{Name: "send-otp", Timeout: 10 * time.Second, Retries: 2}
	OpVerifyOTP  = Operation{Name: "verify-otp", Timeout: 10 * time.Second, Retries: 2}
	OpVerifyRoll = Operation{Name: "verify-roll", Timeout: 10 * time.Second, Retries: 2}
	OpSession    = Operation{Name: "session", Timeout: 10 * time.Second, Retries: 2}
	OpLogout     = Operation{Name: "logout", Timeout: 10 * time.Second}
	OpQuestions  = Operation{Name: "questions", Timeout: 15 * time.Second, Retries: 3}
	// Submission attempts are counted by the Session, not here.
	OpSubmit = Operation{Name: "submit", Timeout: 15 * time.Second}
)

// APIError is a non-2xx response from the portal.
type APIError struct {
	Status    int
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("%s: %s (status %d, request %s)", e.Code, e.Message, e.Status, e.RequestID)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Code, e.Message, e.Status)
}

// Transient reports whether the same request may succeed later.
func (e *APIError) Transient() bool { return e.Status >= 500 }

// IsAPICode reports whether err is an APIError carrying code.
func IsAPICode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// IsUnauthorized reports whether err is a 401 from the portal.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// APIConfig configures an APIClient.
type APIConfig struct {
	BaseURL  string
	DeviceID string
	// Backoff is the delay before the first retry; it doubles per retry.
	Backoff time.Duration
	// HTTPClient is used as a template; its Jar is replaced when nil.
	HTTPClient *http.Client
	// SessionCookie names the portal's session cookie. Defaults to
	// DefaultSessionCookie.
	SessionCookie string
}

// DefaultSessionCookie is the portal's default session cookie name.
const DefaultSessionCookie = "exam_session"

// APIClient talks JSON to the portal. The session credential is taken from
// the session cookie and also sent as a bearer token, so a caller can
// persist it with SessionToken and restore it with SetSessionToken.
type APIClient struct {
	base          *url.URL
	deviceID      string
	backoff       time.Duration
	http          *http.Client
	sessionCookie string

	mu    sync.Mutex
	token string
}

// NewAPIClient creates a client for the portal at cfg.BaseURL.
func NewAPIClient(cfg APIConfig) (*APIClient, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}

	hc := &http.Client{}
	if cfg.HTTPClient != nil {
		*hc = *cfg.HTTPClient
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		hc.Jar = jar
	}

	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}

	cookie := cfg.SessionCookie
	if cookie == "" {
		cookie = DefaultSessionCookie
	}

	return &APIClient{base: base, deviceID: cfg.DeviceID, backoff: backoff, http: hc, sessionCookie: cookie}, nil
}

// SessionToken returns the current session credential, if any.
func (c *APIClient) SessionToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// SetSessionToken restores a persisted session credential. An empty token
// forgets it.
func (c *APIClient) SetSessionToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// captureSession tracks the session cookie the portal sets or clears.
func (c *APIClient) captureSession(resp *http.Response) {
	for _, ck := range resp.Cookies() {
		if ck.Name != c.sessionCookie {
			continue
		}
		if ck.Value == "" || ck.MaxAge < 0 {
			c.SetSessionToken("")
		} else {
			c.SetSessionToken(ck.Value)
		}
	}
}

// VerifyRollResponse is the body of a successful roll-number claim.
type VerifyRollResponse struct {
	StudentName string            `json:"studentName"`
	ExpiresAt   time.Time         `json:"expiresAt"`
	StudentInfo model.StudentInfo `json:"studentInfo"`
	// Token is the session credential delivered in the cookie.
	Token string `json:"-"`
}

// SessionResponse describes the session behind the cookie.
type SessionResponse struct {
	StudentInfo model.StudentInfo `json:"studentInfo"`
	StartedAt   time.Time         `json:"startedAt"`
	ExpiresAt   time.Time         `json:"expiresAt"`
}

// QuestionsResponse is the delivered question set.
type QuestionsResponse struct {
	FormID    string                 `json:"formId"`
	Questions []model.PublicQuestion `json:"questions"`
	Metadata  struct {
		TotalQuestions int  `json:"totalQuestions"`
		CacheHit       bool `json:"cacheHit"`
	} `json:"metadata"`
}

// SubmitResponse acknowledges a recorded submission.
type SubmitResponse struct {
	TotalQuestions int `json:"totalQuestions"`
}

// SendOTP asks the portal to text a passcode to phone.
func (c *APIClient) SendOTP(ctx context.Context, phone, countryCode string) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	body := map[string]string{"phone": phone}
	if countryCode != "" {
		body["countryCode"] = countryCode
	}
	err := c.do(ctx, OpSendOTP, http.MethodPost, "/api/auth/send-otp", body, &out)
	return out.Message, err
}

// VerifyOTP exchanges a passcode for a verification token.
func (c *APIClient) VerifyOTP(ctx context.Context, phone, code string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, OpVerifyOTP, http.MethodPost, "/api/auth/verify-otp",
		map[string]string{"phone": phone, "otp": code}, &out)
	return out.Token, err
}

// VerifyRoll claims the exam slot and keeps the session credential.
func (c *APIClient) VerifyRoll(ctx context.Context, rollNumber, token string) (*VerifyRollResponse, error) {
	var out VerifyRollResponse
	err := c.do(ctx, OpVerifyRoll, http.MethodPost, "/api/auth/verify-roll",
		map[string]string{"rollNumber": rollNumber, "token": token}, &out)
	if err != nil {
		return nil, err
	}
	out.Token = c.SessionToken()
	return &out, nil
}

// Session fetches the student snapshot for the current cookie.
func (c *APIClient) Session(ctx context.Context) (*SessionResponse, error) {
	var out SessionResponse
	if err := c.do(ctx, OpSession, http.MethodGet, "/api/auth/session", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout releases the exam slot held by this device.
func (c *APIClient) Logout(ctx context.Context) error {
	return c.do(ctx, OpLogout, http.MethodPost, "/api/auth/logout", nil, nil)
}

// Questions fetches the question set. An empty formID lets the portal use
// the course bound to the session.
func (c *APIClient) Questions(ctx context.Context, formID string) (*QuestionsResponse, error) {
	path := "/api/exam/questions"
	if formID != "" {
		path += "?formId=" + url.QueryEscape(formID)
	}
	var out QuestionsResponse
	if err := c.do(ctx, OpQuestions, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Submit sends the final answer map keyed by question id.
func (c *APIClient) Submit(ctx context.Context, answers map[string]int) (*SubmitResponse, error) {
	var out SubmitResponse
	if err := c.do(ctx, OpSubmit, http.MethodPost, "/api/exam/submit",
		map[string]any{"answers": answers}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) do(ctx context.Context, op Operation, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("%s: encode request: %w", op.Name, err)
		}
	}

	delay := c.backoff
	var lastErr error
	for attempt := 0; attempt <= op.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: %w", op.Name, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}

		lastErr = c.attempt(ctx, op, method, path, payload, out)
		if lastErr == nil || !retryable(ctx, lastErr) {
			break
		}
	}
	if lastErr != nil {
		return fmt.Errorf("%s: %w", op.Name, lastErr)
	}
	return nil
}

func (c *APIClient) attempt(ctx context.Context, op Operation, method, path string, payload []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, op.Timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "br")
	if c.deviceID != "" {
		req.Header.Set("X-Device-ID", c.deviceID)
	}
	if token := c.SessionToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.captureSession(resp)

	var reader io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "br") {
		reader = brotli.NewReader(resp.Body)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(reader).Decode(apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, reader)
		return nil
	}
	if err := json.NewDecoder(reader).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// retryable reports whether a failed attempt should be repeated: network
// failures and 5xx responses, unless the caller has given up.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	return true
}
