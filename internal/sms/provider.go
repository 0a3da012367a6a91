// Package sms delivers one-time passcodes through an HTTP messaging API.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Provider sends a passcode to a phone.
type Provider interface {
	SendCode(ctx context.Context, countryCode, phone, code string) error
}

// HTTPProvider posts a JSON message to the configured endpoint.
type HTTPProvider struct {
	config *Config
	client *http.Client
}

func NewHTTPProvider(config *Config) *HTTPProvider {
	return &HTTPProvider{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

type sendRequest struct {
	Sender  string `json:"sender"`
	To      string `json:"to"`
	Message string `json:"message"`
}

// SendCode delivers code. The call is bounded by the client timeout as well
// as ctx.
func (p *HTTPProvider) SendCode(ctx context.Context, countryCode, phone, code string) error {
	if err := p.config.Validate(); err != nil {
		return &SMSError{Type: ErrTypeConfig, Message: "provider not configured", Cause: err}
	}

	body, err := json.Marshal(sendRequest{
		Sender:  p.config.SenderID,
		To:      countryCode + phone,
		Message: fmt.Sprintf(p.config.Template, code),
	})
	if err != nil {
		return &SMSError{Type: ErrTypeValidation, Message: "failed to encode payload", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.APIURL, bytes.NewReader(body))
	if err != nil {
		return &SMSError{Type: ErrTypeConfig, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return &SMSError{Type: ErrTypeNetwork, Message: "request to provider failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &SMSError{Type: ErrTypeRateLimit, Code: resp.StatusCode, Message: "provider rate limit"}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &SMSError{
			Type:    ErrTypeProvider,
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("provider returned %d: %s", resp.StatusCode, respBody),
		}
	}
	return nil
}

// LogProvider only logs the code. It stands in for a real provider in
// development when no API URL is configured.
type LogProvider struct {
	Logf func(format string, args ...any)
}

func (p LogProvider) SendCode(_ context.Context, countryCode, phone, code string) error {
	p.Logf("sms disabled, code for %s%s is %s", countryCode, phone, code)
	return nil
}
