// Package modelclient defines the outbound model call contract and the
// vendor adapters implementing it. A client performs one operation:
// send prompt text, receive response text. The per-call timeout comes
// from the caller's context.
package modelclient

import (
	"context"
	"errors"
	"net"
)

// Client is the single-operation contract the query runner depends on.
type Client interface {
	Call(ctx context.Context, prompt string) (string, error)
}

// IsTimeout reports whether err represents a timed-out call rather than
// some other transport failure.
func IsTimeout(err error) bool {
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
	return false
}
