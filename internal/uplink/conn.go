package uplink

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/fleetbridge/fleetbridge/pkg/roles"
	"go.uber.org/zap"
)

// State of a device connection. Each conn incarnation moves forward only;
// a reconnect after Closed is a fresh conn value.
type State string

const (
	StateIdle       State = "idle" // no transport; may hold backoff memory
	StateConnecting State = "connecting"
	StateReady      State = "ready"
	StateDegraded   State = "degraded"
	StateClosed     State = "closed"
)

// Lease is a caller's handle on a pooled connection. Done is closed exactly
// once when the underlying transport goes away, however that happens.
type Lease interface {
	DeviceID() string
	Transport() Transport
	Done() <-chan struct{}
	Release()
}

// ConnInfo is a point-in-time view of one device connection.
type ConnInfo struct {
	DeviceID    string     `json:"device_id"`
	State       State      `json:"state"`
	Leases      int        `json:"leases"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// Owner mailbox request types.
type acquireResult struct {
	lease *connLease
	err   error
}

type acquireReq struct{ reply chan acquireResult }
type releaseReq struct{}
type closeReq struct {
	reason string
	reply  chan struct{}
}
type stateReq struct{ reply chan ConnInfo }

type dialResult struct {
	transport Transport
	reason    string
	err       error
}

// conn manages one device connection. All fields below the mailbox are
// owned by the run goroutine; nothing else touches them.
type conn struct {
	deviceID string
	pool     *Pool

	reqs chan any
	done chan struct{}

	state        State
	transport    Transport
	leases       int
	waiters      []chan acquireResult
	misses       int
	failures     int
	backoffUntil time.Time
	lastReason   string
	lastErr      error
	connectedAt  time.Time
	gaugeState   State

	dialC      chan dialResult
	dialCancel context.CancelFunc
	probeC     chan error
	kaTicker   *time.Ticker
	kaC        <-chan time.Time
	idleTimer  *time.Timer
	idleC      <-chan time.Time
}

func newConn(deviceID string, pool *Pool) *conn {
	return &conn{
		deviceID: deviceID,
		pool:     pool,
		reqs:     make(chan any),
		done:     make(chan struct{}),
		state:    StateIdle,
	}
}

// run is the owner loop. It exits only through teardown, which closes done
// and removes the conn from the pool.
func (c *conn) run() {
	defer func() {
		if c.kaTicker != nil {
			c.kaTicker.Stop()
		}
		c.stopIdle()
	}()

	for c.state != StateClosed {
		select {
		case req := <-c.reqs:
			switch r := req.(type) {
			case acquireReq:
				c.handleAcquire(r)
			case releaseReq:
				c.handleRelease()
			case closeReq:
				c.teardown(r.reason)
				r.reply <- struct{}{}
			case stateReq:
				r.reply <- c.info()
			}
		case res := <-c.dialC:
			c.handleDialResult(res)
		case err := <-c.probeC:
			c.probeC = nil
			c.handleProbeResult(err)
		case <-c.kaC:
			c.startProbe()
		case <-c.idleC:
			c.idleC = nil
			if c.leases == 0 {
				c.teardown("idle timeout")
			}
		}
	}
}

func (c *conn) handleAcquire(r acquireReq) {
	switch c.state {
	case StateReady, StateDegraded:
		c.leases++
		c.stopIdle()
		r.reply <- acquireResult{lease: c.newLease()}
	case StateConnecting:
		c.waiters = append(c.waiters, r.reply)
	case StateIdle:
		now := time.Now()
		if now.Before(c.backoffUntil) {
			r.reply <- acquireResult{err: &ConnectError{
				DeviceID:   c.deviceID,
				Reason:     c.lastReason,
				RetryAfter: c.backoffUntil.Sub(now),
				Err:        c.lastErr,
			}}
			return
		}
		c.waiters = append(c.waiters, r.reply)
		c.startDial()
	}
}

func (c *conn) handleRelease() {
	if c.leases > 0 {
		c.leases--
	}
	if c.leases == 0 && (c.state == StateReady || c.state == StateDegraded) {
		c.armIdle()
	}
}

// startDial launches a single in-flight dial attempt. Concurrent acquires
// pile onto waiters; exactly one transport results per attempt.
func (c *conn) startDial() {
	c.setState(StateConnecting)
	c.stopIdle()

	dialCtx, cancel := context.WithTimeout(context.Background(), c.pool.cfg.DialTimeout)
	c.dialCancel = cancel
	ch := make(chan dialResult, 1)
	c.dialC = ch

	go func() {
		defer cancel()
		transport, host, err := c.pool.resolveAndDial(dialCtx, c.deviceID)
		res := dialResult{transport: transport, err: err}
		if err != nil && !errors.Is(err, roles.ErrDeviceNotFound) {
			probeCtx, pcancel := context.WithTimeout(context.Background(), 3*time.Second)
			res.reason = diagnose(probeCtx, host, err, c.pool.cfg.ProbeOnFailure, c.pool.logger)
			pcancel()
		}
		select {
		case ch <- res:
		case <-c.done:
			if transport != nil {
				transport.Close()
			}
		}
	}()
}

func (c *conn) handleDialResult(res dialResult) {
	c.dialC = nil
	c.dialCancel = nil

	if res.err != nil {
		dialsTotal.WithLabelValues("error").Inc()

		if errors.Is(res.err, roles.ErrDeviceNotFound) {
			c.failWaiters(res.err)
			c.teardown("device not found")
			return
		}

		c.failures++
		wait := jitteredBackoff(c.pool.cfg.BackoffBase, c.pool.cfg.BackoffCap, c.failures)
		c.backoffUntil = time.Now().Add(wait)
		c.lastReason = res.reason
		c.lastErr = res.err
		c.setState(StateIdle)
		c.armIdle()

		c.failWaiters(&ConnectError{
			DeviceID:   c.deviceID,
			Reason:     res.reason,
			RetryAfter: wait,
			Err:        res.err,
		})

		c.pool.logger.Warn("dial failed",
			zap.String("device_id", c.deviceID),
			zap.String("reason", res.reason),
			zap.Int("consecutive_failures", c.failures),
			zap.Duration("retry_after", wait),
			zap.Error(res.err),
		)
		return
	}

	dialsTotal.WithLabelValues("ok").Inc()
	c.transport = res.transport
	c.failures = 0
	c.misses = 0
	c.lastReason = ""
	c.lastErr = nil
	c.connectedAt = time.Now().UTC()
	c.setState(StateReady)

	c.kaTicker = time.NewTicker(c.pool.cfg.KeepaliveInterval)
	c.kaC = c.kaTicker.C

	for _, w := range c.waiters {
		c.leases++
		w <- acquireResult{lease: c.newLease()}
	}
	c.waiters = nil
	if c.leases == 0 {
		c.armIdle()
	}

	c.pool.publish(TopicConnReady, ConnEvent{DeviceID: c.deviceID, State: StateReady})
	c.pool.logger.Info("connection ready", zap.String("device_id", c.deviceID))
}

func (c *conn) handleProbeResult(err error) {
	if c.transport == nil {
		return
	}
	if err == nil {
		c.misses = 0
		if c.state == StateDegraded {
			c.setState(StateReady)
			c.pool.publish(TopicConnReady, ConnEvent{DeviceID: c.deviceID, State: StateReady, Reason: "keepalive recovered"})
			c.pool.logger.Info("connection recovered", zap.String("device_id", c.deviceID))
		}
		return
	}

	c.misses++
	c.pool.logger.Warn("keepalive miss",
		zap.String("device_id", c.deviceID),
		zap.Int("consecutive_misses", c.misses),
		zap.Error(err),
	)

	if c.misses >= c.pool.cfg.KeepaliveMaxMisses {
		c.teardown("keepalive timeout")
		return
	}
	if c.state == StateReady {
		c.setState(StateDegraded)
		c.pool.publish(TopicConnDegraded, ConnEvent{DeviceID: c.deviceID, State: StateDegraded, Reason: "keepalive miss"})
	}
}

func (c *conn) startProbe() {
	if c.transport == nil || c.probeC != nil {
		return
	}
	transport := c.transport
	ch := make(chan error, 1)
	c.probeC = ch
	go func() { ch <- transport.KeepAlive() }()
}

// teardown closes the transport, fails any waiters, publishes the closed
// event, and removes the conn from the pool. Safe to call once; the run
// loop exits right after.
func (c *conn) teardown(reason string) {
	if c.state == StateClosed {
		return
	}
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	if c.transport != nil {
		c.transport.Close()
		c.transport = nil
	}
	c.failWaiters(ErrDeviceDisconnected)
	hadTransport := !c.connectedAt.IsZero()
	c.setState(StateClosed)
	if c.kaTicker != nil {
		c.kaTicker.Stop()
		c.kaTicker = nil
		c.kaC = nil
	}
	c.stopIdle()
	close(c.done)
	c.pool.remove(c.deviceID, c)

	if hadTransport {
		c.pool.publish(TopicConnClosed, ConnEvent{DeviceID: c.deviceID, State: StateClosed, Reason: reason})
	}
	c.pool.logger.Info("connection closed",
		zap.String("device_id", c.deviceID),
		zap.String("reason", reason),
	)
}

func (c *conn) failWaiters(err error) {
	for _, w := range c.waiters {
		w <- acquireResult{err: err}
	}
	c.waiters = nil
}

func (c *conn) newLease() *connLease {
	return &connLease{c: c, t: c.transport}
}

func (c *conn) info() ConnInfo {
	info := ConnInfo{
		DeviceID: c.deviceID,
		State:    c.state,
		Leases:   c.leases,
	}
	if !c.connectedAt.IsZero() {
		t := c.connectedAt
		info.ConnectedAt = &t
	}
	if c.lastErr != nil {
		info.LastError = c.lastErr.Error()
	}
	return info
}

// setState updates the state and the per-state gauge.
func (c *conn) setState(next State) {
	if c.gaugeState != "" {
		connectionsByState.WithLabelValues(string(c.gaugeState)).Dec()
	}
	c.gaugeState = ""
	if next != StateClosed {
		connectionsByState.WithLabelValues(string(next)).Inc()
		c.gaugeState = next
	}
	c.state = next
}

func (c *conn) armIdle() {
	c.stopIdle()
	c.idleTimer = time.NewTimer(c.pool.cfg.IdleTTL)
	c.idleC = c.idleTimer.C
}

func (c *conn) stopIdle() {
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
	c.idleC = nil
}

// connLease implements Lease for one acquire.
type connLease struct {
	c    *conn
	t    Transport
	once sync.Once
}

func (l *connLease) DeviceID() string     { return l.c.deviceID }
func (l *connLease) Transport() Transport { return l.t }
func (l *connLease) Done() <-chan struct{} {
	return l.c.done
}

func (l *connLease) Release() {
	l.once.Do(func() {
		select {
		case l.c.reqs <- releaseReq{}:
		case <-l.c.done:
		}
	})
}

// jitteredBackoff doubles the base per consecutive failure, clamps at cap,
// then applies ±20% jitter so a fleet of failing devices does not redial in
// lockstep.
func jitteredBackoff(base, limit time.Duration, failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	wait := float64(base) * math.Pow(2, float64(failures-1))
	if wait > float64(limit) {
		wait = float64(limit)
	}
	wait *= 0.8 + 0.4*rand.Float64()
	return time.Duration(wait)
}
