package apperror

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// transientMarkers are substrings seen in driver and network errors that mean
// "the store could not be reached", as opposed to "the query was wrong".
var transientMarkers = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"closed pool",
	"conn closed",
	"i/o timeout",
	"no such host",
	"timeout",
	"server closed the connection",
	"too many clients",
	"network is unreachable",
}

// IsConnectivity reports whether err indicates that the record store is
// unreachable or timed out.
func IsConnectivity(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 is connection exception; 57P0x are shutdown/crash states;
		// 53300 is too_many_connections.
		return strings.HasPrefix(pgErr.Code, "08") ||
			strings.HasPrefix(pgErr.Code, "57P0") ||
			pgErr.Code == "53300"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// FromStore maps a repository error onto the taxonomy: connectivity problems
// become TransientStore (503, safe to retry), application errors pass through,
// everything else is Unexpected.
func FromStore(err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	if IsConnectivity(err) {
		return ErrStoreUnavailable.WithCause(err)
	}
	return Unexpected(err)
}
