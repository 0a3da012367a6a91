package sms

import (
	"fmt"
	"strings"
	"time"

	"github.com/stemsi/exstem-portal/internal/config"
)

// Config describes the HTTP messaging provider.
type Config struct {
	APIURL   string
	APIKey   string
	SenderID string
	// Template is a fmt format with a single %s for the code.
	Template string
	Timeout  time.Duration
}

// ConfigFrom extracts the provider settings from the application config.
func ConfigFrom(cfg *config.Config) *Config {
	return &Config{
		APIURL:   cfg.SMSAPIURL,
		APIKey:   cfg.SMSAPIKey,
		SenderID: cfg.SMSSenderID,
		Template: cfg.SMSTemplate,
		Timeout:  cfg.SMSTimeout,
	}
}

func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("SMS_API_URL is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("SMS_API_KEY is required")
	}
	if strings.Count(c.Template, "%s") != 1 {
		return fmt.Errorf("SMS_TEMPLATE must contain exactly one %%s")
	}
	return nil
}
