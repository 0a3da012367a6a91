package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/sms"
)

const (
	DispatchPollTimeout = 1 * time.Second
	DispatchSendTimeout = 5 * time.Second
)

// DispatchWorker consumes the OTP dispatch queue and delivers each code
// through the SMS provider.
type DispatchWorker struct {
	queue       Queue
	provider    sms.Provider
	maxAttempts int
	sendTimeout time.Duration
	log         zerolog.Logger
}

// NewDispatchWorker creates a new DispatchWorker. A message is tried at most
// maxAttempts times.
func NewDispatchWorker(queue Queue, provider sms.Provider, maxAttempts int, log zerolog.Logger) *DispatchWorker {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &DispatchWorker{
		queue:       queue,
		provider:    provider,
		maxAttempts: maxAttempts,
		sendTimeout: DispatchSendTimeout,
		log:         log.With().Str("component", "dispatch_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *DispatchWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *DispatchWorker) processNext(ctx context.Context) {
	raw, ok, err := w.queue.Pop(ctx, DispatchPollTimeout)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("Queue pop error")
			// Back off so a down queue does not spin.
			select {
			case <-ctx.Done():
			case <-time.After(DispatchPollTimeout):
			}
		}
		return
	}
	if !ok {
		return
	}

	var msg model.OTPDispatch
	if err := json.Unmarshal(raw, &msg); err != nil {
		w.log.Error().Err(err).Msg("Invalid dispatch payload")
		return
	}

	w.deliver(ctx, msg)
}

func (w *DispatchWorker) deliver(ctx context.Context, msg model.OTPDispatch) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.sendTimeout)
	defer cancel()

	err := w.provider.SendCode(sendCtx, msg.CountryCode, msg.Phone, msg.Code)
	if err == nil {
		w.log.Debug().Int("attempt", msg.Attempt+1).Msg("OTP delivered")
		return
	}

	msg.Attempt++
	if !retryable(err) || msg.Attempt >= w.maxAttempts {
		w.log.Error().Err(err).Int("attempts", msg.Attempt).Msg("OTP delivery abandoned")
		return
	}

	w.log.Warn().Err(err).Int("attempt", msg.Attempt).Msg("OTP delivery failed, requeueing")
	raw, _ := json.Marshal(msg)
	if err := w.queue.Push(context.WithoutCancel(ctx), raw); err != nil {
		w.log.Error().Err(err).Msg("Requeue failed")
	}
}

func retryable(err error) bool {
	var smsErr *sms.SMSError
	if errors.As(err, &smsErr) {
		return smsErr.Retryable()
	}
	return true
}
