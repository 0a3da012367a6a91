package model

import "regexp"

var (
	phonePattern = regexp.MustCompile(`^[0-9]{10}$`)
	otpPattern   = regexp.MustCompile(`^[0-9]{6}$`)
)

// DefaultCountryCode is used when a request omits the dialing prefix.
const DefaultCountryCode = "+91"

// IsPhone reports whether s is exactly 10 ASCII digits.
func IsPhone(s string) bool { return phonePattern.MatchString(s) }

// IsOTPCode reports whether s is exactly 6 ASCII digits.
func IsOTPCode(s string) bool { return otpPattern.MatchString(s) }
