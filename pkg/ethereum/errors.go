package ethereum

import (
	"context"
	"errors"
	"net"
	"strings"
)

var (
	// ErrInvalidAddress marks a destination or holder address that is
	// not a valid hex address.
	ErrInvalidAddress = errors.New("invalid ethereum address")

	// ErrAmbiguousSubmit marks a transfer submission whose outcome is
	// unknown: the transaction may or may not have reached the chain.
	// Callers must not retry and must not compensate automatically.
	ErrAmbiguousSubmit = errors.New("transfer submission outcome unknown")
)

var terminalMarkers = []string{
	"insufficient funds",
	"nonce too low",
	"replacement transaction underpriced",
	"exceeds block gas limit",
	"invalid sender",
	"intrinsic gas too low",
}

// IsRetryable reports whether an external call failure is transient.
// Network level failures and timeouts qualify. Protocol rejections do
// not, and an ambiguous submission must never be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAmbiguousSubmit) || errors.Is(err, ErrInvalidAddress) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range terminalMarkers {
		if strings.Contains(msg, marker) {
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "temporarily unavailable") ||
		strings.Contains(msg, "too many requests") {
		return true
	}
	return false
}
