package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// QuestionSetKey returns the cache key for a form's shuffled, sanitized question set.
func (r *CacheKeyStruct) QuestionSetKey(formID string) string {
	return fmt.Sprintf("form:%s:questions", formID)
}

// OTPRateKey returns the limiter key for OTP requests from one client address for one phone.
func (r *CacheKeyStruct) OTPRateKey(clientIP, phone string) string {
	return fmt.Sprintf("otp:rate:%s:%s", clientIP, phone)
}

// AuthRateKey returns the limiter key for general auth traffic from one client address.
func (r *CacheKeyStruct) AuthRateKey(clientIP string) string {
	return fmt.Sprintf("auth:rate:%s", clientIP)
}

var CacheKey = NewCacheKeyStruct()
