package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want command
	}{
		{"", command{kind: cmdShow}},
		{"  2 ", command{kind: cmdSelect, arg: 2}},
		{"n", command{kind: cmdNext}},
		{"PREV", command{kind: cmdPrev}},
		{"j 7", command{kind: cmdJump, arg: 7}},
		{"jump 1", command{kind: cmdJump, arg: 1}},
		{"submit", command{kind: cmdSubmit}},
		{"q", command{kind: cmdQuit}},
		{"logout", command{kind: cmdLogout}},
		{"?", command{kind: cmdHelp}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseCommand(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommand_Errors(t *testing.T) {
	for _, line := range []string{"jump", "j x", "dance", "1 2"} {
		_, err := parseCommand(line)
		assert.Error(t, err, line)
	}
}
