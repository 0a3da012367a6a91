package examclient

import (
	"context"
	"errors"
	"time"

	"github.com/stemsi/exstem-portal/internal/model"
)

var (
	ErrInvalidPhone         = errors.New("phone number must be exactly 10 digits")
	ErrInvalidCode          = errors.New("verification code must be exactly 6 digits")
	ErrVerificationRequired = errors.New("phone verification is required")
	ErrNoSession            = errors.New("no active exam session")
)

// AuthAPI is the part of the portal API the verification flow needs.
type AuthAPI interface {
	SendOTP(ctx context.Context, phone, countryCode string) (string, error)
	VerifyOTP(ctx context.Context, phone, code string) (string, error)
	VerifyRoll(ctx context.Context, rollNumber, token string) (*VerifyRollResponse, error)
	Session(ctx context.Context) (*SessionResponse, error)
	Logout(ctx context.Context) error
	SetSessionToken(token string)
}

// Verification is the persisted proof of phone control.
type Verification struct {
	Phone     string    `json:"phone"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// StudentSession is the persisted snapshot of a claimed exam session. Token
// is the session credential, kept so a restarted client can resume.
type StudentSession struct {
	Student   model.StudentInfo `json:"student"`
	ExpiresAt time.Time         `json:"expiresAt"`
	Token     string            `json:"token,omitempty"`
}

// AuthFlow walks a student from phone entry to a claimed exam session and
// keeps the intermediate credentials in Storage.
type AuthFlow struct {
	api             AuthAPI
	store           Storage
	verificationTTL time.Duration
	now             func() time.Time
}

// NewAuthFlow creates an AuthFlow. verificationTTL mirrors the server's
// verification token lifetime.
func NewAuthFlow(api AuthAPI, store Storage, verificationTTL time.Duration) *AuthFlow {
	return &AuthFlow{api: api, store: store, verificationTTL: verificationTTL, now: time.Now}
}

// RequestCode asks the portal to text a passcode.
func (f *AuthFlow) RequestCode(ctx context.Context, phone, countryCode string) (string, error) {
	if !model.IsPhone(phone) {
		return "", ErrInvalidPhone
	}
	return f.api.SendOTP(ctx, phone, countryCode)
}

// VerifyCode exchanges the passcode and stores the verification token.
func (f *AuthFlow) VerifyCode(ctx context.Context, phone, code string) error {
	if !model.IsPhone(phone) {
		return ErrInvalidPhone
	}
	if !model.IsOTPCode(code) {
		return ErrInvalidCode
	}

	token, err := f.api.VerifyOTP(ctx, phone, code)
	if err != nil {
		return err
	}
	return saveJSON(ctx, f.store, KeyVerification, Verification{
		Phone:     phone,
		Token:     token,
		ExpiresAt: f.now().Add(f.verificationTTL),
	})
}

// PendingVerification returns the stored verification if it is still live.
// An expired one is cleared.
func (f *AuthFlow) PendingVerification(ctx context.Context) (*Verification, error) {
	var v Verification
	ok, err := loadJSON(ctx, f.store, KeyVerification, &v)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrVerificationRequired
	}
	if !f.now().Before(v.ExpiresAt) {
		_ = f.store.Delete(ctx, KeyVerification)
		return nil, ErrVerificationRequired
	}
	return &v, nil
}

// ClaimSession claims the exam slot for rollNumber with the stored
// verification. The verification is consumed on success and dropped when
// the portal rejects it.
func (f *AuthFlow) ClaimSession(ctx context.Context, rollNumber string) (*StudentSession, error) {
	v, err := f.PendingVerification(ctx)
	if err != nil {
		return nil, err
	}

	res, err := f.api.VerifyRoll(ctx, rollNumber, v.Token)
	if err != nil {
		if IsUnauthorized(err) {
			_ = f.store.Delete(ctx, KeyVerification)
		}
		return nil, err
	}

	sess := &StudentSession{Student: res.StudentInfo, ExpiresAt: res.ExpiresAt, Token: res.Token}
	if err := f.store.Delete(ctx, KeyVerification); err != nil {
		return nil, err
	}
	if err := saveJSON(ctx, f.store, KeyStudentSession, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Resume returns the stored session when it is unexpired and the portal
// still recognizes its credential. Stale snapshots are cleared.
func (f *AuthFlow) Resume(ctx context.Context) (*StudentSession, error) {
	var sess StudentSession
	ok, err := loadJSON(ctx, f.store, KeyStudentSession, &sess)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoSession
	}
	if !f.now().Before(sess.ExpiresAt) {
		_ = f.store.Delete(ctx, KeyStudentSession)
		return nil, ErrNoSession
	}
	if sess.Token != "" {
		f.api.SetSessionToken(sess.Token)
	}

	res, err := f.api.Session(ctx)
	if err != nil {
		if IsUnauthorized(err) || IsAPICode(err, "ALREADY_ATTEMPTED") {
			_ = f.store.Delete(ctx, KeyStudentSession)
			f.api.SetSessionToken("")
			return nil, ErrNoSession
		}
		return nil, err
	}

	sess.Student = res.StudentInfo
	sess.ExpiresAt = res.ExpiresAt
	_ = saveJSON(ctx, f.store, KeyStudentSession, &sess)
	return &sess, nil
}

// Logout releases the slot and forgets the session snapshot. The local
// snapshot is cleared even when the portal cannot be reached.
func (f *AuthFlow) Logout(ctx context.Context) error {
	apiErr := f.api.Logout(ctx)
	f.api.SetSessionToken("")
	if err := f.store.Delete(ctx, KeyStudentSession, KeyVerification); err != nil {
		return err
	}
	if apiErr != nil && !IsUnauthorized(apiErr) {
		return apiErr
	}
	return nil
}
