// Package ratelimit provides fixed-window request limiters keyed by an
// arbitrary identifier such as "client ip + phone".
package ratelimit

import (
	"context"
	"time"
)

// Config holds rate limiting configuration.
type Config struct {
	Window      time.Duration // length of one counting window
	MaxAttempts int           // attempts allowed per window
}

// OTPConfig is the default for passcode requests: 5 per 15 minutes.
func OTPConfig() Config {
	return Config{Window: 15 * time.Minute, MaxAttempts: 5}
}

// Info describes the outcome of one Allow call.
type Info struct {
	Allowed    bool
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Limiter counts attempts per key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Info, error)
}
