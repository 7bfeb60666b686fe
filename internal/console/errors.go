package console

import (
	"errors"
	"fmt"
)

// ErrSessionClosed is returned by operations on a closed or unknown
// session id.
var ErrSessionClosed = errors.New("session closed")

// ErrTooManySessions is the sentinel behind LimitError so callers can use
// errors.Is without caring about the wrapper.
var ErrTooManySessions = errors.New("too many sessions")

// LimitError reports that a device is at its live-session limit.
type LimitError struct {
	DeviceID string
	Limit    int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("device %s already has %d open sessions", e.DeviceID, e.Limit)
}

func (e *LimitError) Unwrap() error { return ErrTooManySessions }
