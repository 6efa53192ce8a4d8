package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrInvalidSignature is returned by adapters for webhooks that fail verification
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Error wraps any failure returned by a payout provider
type Error struct {
	Provider string
	Op       string
	Code     string
	Message  string
	Timeout  bool
	Err      error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s failed (%s): %s", e.Provider, e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Provider, e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err, classifying deadline and network timeouts
func NewError(providerName, op string, err error) *Error {
	e := &Error{Provider: providerName, Op: op, Err: err}
	if err != nil {
		e.Message = err.Error()
		e.Timeout = isTimeout(err)
	}
	return e
}

// IsTimeout reports whether the provider call ended without a definite answer
func IsTimeout(err error) bool {
	var pe *Error
	if errors.As(err, &pe) && pe.Timeout {
		return true
	}
	return isTimeout(err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
