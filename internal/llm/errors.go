package llm

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Transient reports whether a client error is worth retrying: rate limits,
// timeouts, network failures, and server-side errors. Schema and parse
// failures are handled separately by the caller and are always permanent.
// Unknown errors default to transient; the batch processor bounds the
// retries either way.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, permanent := range []string{
		"api key", "invalid argument", "permission", "not found", "blocked",
	} {
		if strings.Contains(msg, permanent) {
			return false
		}
	}
	return true
}
