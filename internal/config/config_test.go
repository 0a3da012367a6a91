package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		secret  string
		wantErr bool
	}{
		{"debug accepts default secret", "debug", DefaultJWTSecret, false},
		{"release rejects default secret", "release", DefaultJWTSecret, true},
		{"release rejects empty secret", "release", "", true},
		{"release rejects short secret", "release", "short-secret", true},
		{"release accepts private secret", "release", strings.Repeat("k", 32), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{GinMode: tt.mode, JWTSecret: tt.secret}
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad_SubmitGrace(t *testing.T) {
	t.Setenv("SUBMIT_GRACE", "45s")
	assert.Equal(t, 45*time.Second, Load().SubmitGrace)

	t.Setenv("SUBMIT_GRACE", "")
	assert.Equal(t, 2*time.Minute, Load().SubmitGrace)
}
