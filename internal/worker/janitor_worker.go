package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// OTPPurger deletes passcode records written before cutoff.
type OTPPurger interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionReaper clears the active flag of sessions expired at cutoff.
type SessionReaper interface {
	ReleaseExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// JanitorWorker periodically purges expired passcodes and stale session
// flags. Request paths check expiry on their own, so a missed run only
// leaves garbage behind.
type JanitorWorker struct {
	otps     OTPPurger
	sessions SessionReaper
	otpTTL   time.Duration
	// grace keeps sessions held after expiry while they may still submit.
	grace    time.Duration
	interval time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewJanitorWorker creates a new JanitorWorker.
func NewJanitorWorker(otps OTPPurger, sessions SessionReaper, otpTTL, grace, interval time.Duration, log zerolog.Logger) *JanitorWorker {
	return &JanitorWorker{
		otps:     otps,
		sessions: sessions,
		otpTTL:   otpTTL,
		grace:    grace,
		interval: interval,
		now:      time.Now,
		log:      log.With().Str("component", "janitor_worker").Logger(),
	}
}

// Start runs a sweep every interval until ctx is cancelled. Call in a goroutine.
func (w *JanitorWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep. The two tasks are independent: a failure
// in one does not skip the other.
func (w *JanitorWorker) RunOnce(ctx context.Context) {
	now := w.now()

	if n, err := w.otps.DeleteExpired(ctx, now.Add(-w.otpTTL)); err != nil {
		w.log.Warn().Err(err).Msg("Expired OTP purge failed")
	} else if n > 0 {
		w.log.Debug().Int64("deleted", n).Msg("Purged expired OTPs")
	}

	if n, err := w.sessions.ReleaseExpiredSessions(ctx, now.Add(-w.grace)); err != nil {
		w.log.Warn().Err(err).Msg("Expired session release failed")
	} else if n > 0 {
		w.log.Debug().Int64("released", n).Msg("Released expired sessions")
	}
}
