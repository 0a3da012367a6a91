//go:build e2e
// +build e2e

package e2e

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/logger"
)

func testLogger() zerolog.Logger {
	return logger.New(os.Stderr, "warn", "pretty")
}
