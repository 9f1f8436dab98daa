package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

var (
	// ErrTransient marks provider errors worth retrying: rate limits,
	// timeouts and connection failures.
	ErrTransient = errors.New("transient provider error")

	// ErrUnknownProvider is returned for an unrecognized provider name.
	ErrUnknownProvider = errors.New("unknown ai provider")
)

// MarkTransient wraps err with ErrTransient. A nil err stays nil.
func MarkTransient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// transientMessages are fragments of error text that providers use for
// retryable conditions when they do not return a typed error.
var transientMessages = []string{
	"rate limit",
	"too many requests",
	"status code: 429",
	"status code: 502",
	"status code: 503",
	"status code: 504",
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"network error",
	"temporarily unavailable",
}

// IsTransient reports whether err is worth retrying. Errors wrapping
// ErrTransient, network timeouts, connection resets and a deadline hit inside
// the provider call are transient; cancellation by the caller is not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range transientMessages {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
