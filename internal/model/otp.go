package model

import "time"

// OTPRecord is the single live passcode for a phone. CodeHash is a bcrypt
// hash of the 6-digit code.
type OTPRecord struct {
	Phone       string    `json:"phone"`
	CountryCode string    `json:"country_code"`
	CodeHash    string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// Age returns how long ago the record was written.
func (r *OTPRecord) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}

// SendOTPRequest is the payload for POST /api/auth/send-otp.
type SendOTPRequest struct {
	Phone       string `json:"phone" binding:"required,phone10"`
	CountryCode string `json:"countryCode" binding:"omitempty,max=5"`
}

// VerifyOTPRequest is the payload for POST /api/auth/verify-otp.
type VerifyOTPRequest struct {
	Phone string `json:"phone" binding:"required,phone10"`
	OTP   string `json:"otp" binding:"required,otp6"`
}

// OTPDispatch is the queued message for the messaging provider.
type OTPDispatch struct {
	Phone       string `json:"phone"`
	CountryCode string `json:"country_code"`
	Code        string `json:"code"`
	Attempt     int    `json:"attempt"`
}
