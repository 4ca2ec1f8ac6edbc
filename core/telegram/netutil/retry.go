// Package netutil classifies transport errors for the outbound sender.
package netutil

import (
	"errors"
	"net"
	"net/url"
	"syscall"
)

// ShouldRetry reports whether an outbound Telegram call failed in a way
// that a later attempt could succeed: timeouts, dial failures, and reset
// or refused connections. Anything else, including API-level rejections,
// is terminal.
func ShouldRetry(err error) bool {
	for err != nil {
		switch e := err.(type) {
		case *net.OpError:
			if e.Timeout() || e.Op == "dial" {
				return true
			}
		case *url.Error:
			if e.Timeout() {
				return true
			}
		default:
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return true
			}
		}
		if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
			return true
		}
		next := errors.Unwrap(err)
		if next == nil || errors.Is(next, err) {
			return false
		}
		err = next
	}
	return false
}
