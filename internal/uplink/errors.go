package uplink

import (
	"errors"
	"fmt"
	"time"
)

// Dial failure reasons carried by ConnectError.
const (
	ReasonUnreachable = "unreachable"
	ReasonAuth        = "auth"
	ReasonTimeout     = "timeout"
	ReasonHandshake   = "handshake"
)

// ErrDeviceDisconnected is returned by operations attempted after the
// device's transport went away. Session holders observe the same condition
// through the lease Done channel.
var ErrDeviceDisconnected = errors.New("device disconnected")

// ErrPoolClosed is returned by Acquire after the pool has shut down.
var ErrPoolClosed = errors.New("connection pool closed")

// ConnectError reports a failed dial attempt. During backoff the pool fails
// fast with RetryAfter set to the remaining wait.
type ConnectError struct {
	DeviceID   string
	Reason     string
	RetryAfter time.Duration
	Err        error
}

func (e *ConnectError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("connect %s: %s (retry in %s)", e.DeviceID, e.Reason, e.RetryAfter.Round(time.Millisecond))
	}
	return fmt.Sprintf("connect %s: %s", e.DeviceID, e.Reason)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}
