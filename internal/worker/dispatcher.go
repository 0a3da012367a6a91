package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/sms"
)

// QueueDispatcher hands OTP messages to the DispatchWorker through a queue.
// When the queue is nil or cannot be reached the message is sent directly in
// the background so the request never waits on the provider.
type QueueDispatcher struct {
	queue    Queue
	provider sms.Provider
	timeout  time.Duration
	log      zerolog.Logger
}

// NewQueueDispatcher creates a new QueueDispatcher.
func NewQueueDispatcher(queue Queue, provider sms.Provider, timeout time.Duration, log zerolog.Logger) *QueueDispatcher {
	return &QueueDispatcher{
		queue:    queue,
		provider: provider,
		timeout:  timeout,
		log:      log.With().Str("component", "otp_dispatcher").Logger(),
	}
}

// Dispatch enqueues msg, falling back to a detached direct send.
func (d *QueueDispatcher) Dispatch(ctx context.Context, msg model.OTPDispatch) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode dispatch: %w", err)
	}

	if d.queue == nil {
		go d.sendDirect(context.WithoutCancel(ctx), msg)
		return nil
	}

	if err := d.queue.Push(ctx, raw); err != nil {
		d.log.Warn().Err(err).Msg("Dispatch queue unavailable, sending directly")
		go d.sendDirect(context.WithoutCancel(ctx), msg)
	}
	return nil
}

func (d *QueueDispatcher) sendDirect(ctx context.Context, msg model.OTPDispatch) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.provider.SendCode(ctx, msg.CountryCode, msg.Phone, msg.Code); err != nil {
		d.log.Error().Err(err).Msg("Direct OTP send failed")
	}
}
