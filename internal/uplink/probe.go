package uplink

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"go.uber.org/zap"
)

// diagnose classifies a dial failure into a ConnectError reason. When
// probing is enabled an ICMP round trip separates "host is down" from
// "host is up but SSH failed".
func diagnose(ctx context.Context, host string, dialErr error, probe bool, logger *zap.Logger) string {
	msg := dialErr.Error()

	switch {
	case strings.Contains(msg, "unable to authenticate"),
		strings.Contains(msg, "no supported methods remain"),
		strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "credential"):
		return ReasonAuth
	}

	timedOut := errors.Is(dialErr, context.DeadlineExceeded) ||
		isTimeout(dialErr) ||
		strings.Contains(msg, "i/o timeout")

	if probe && host != "" {
		if !pingHost(ctx, host) {
			return ReasonUnreachable
		}
		// Host answers pings, so the failure is above the network layer.
		if timedOut {
			return ReasonTimeout
		}
		return ReasonHandshake
	}
	if logger != nil {
		logger.Debug("dial failure not probed", zap.String("host", host), zap.Error(dialErr))
	}

	if timedOut {
		return ReasonTimeout
	}
	if strings.Contains(msg, "connection refused") || strings.Contains(msg, "no route to host") {
		return ReasonUnreachable
	}
	return ReasonHandshake
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// pingHost sends a short unprivileged ICMP burst and reports whether any
// reply came back.
func pingHost(ctx context.Context, host string) bool {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return false
	}
	pinger.Count = 3
	pinger.Timeout = 2 * time.Second
	pinger.SetPrivileged(false)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = pinger.Run()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		pinger.Stop()
		return false
	}

	return pinger.Statistics().PacketsRecv > 0
}
