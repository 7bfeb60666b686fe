package console

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fleetbridge/fleetbridge/internal/uplink"
	"github.com/fleetbridge/fleetbridge/pkg/plugin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config controls session limits and terminal streaming.
type Config struct {
	MaxSessionsPerDevice int           `mapstructure:"max_sessions_per_device"`
	OutputChunkBytes     int           `mapstructure:"output_chunk_bytes"`
	ExecTimeout          time.Duration `mapstructure:"exec_timeout"`
	ReadLimitBytes       int64         `mapstructure:"read_limit_bytes"`
}

// DefaultConfig returns the registry defaults applied before unmarshaling.
func DefaultConfig() Config {
	return Config{
		MaxSessionsPerDevice: 4,
		OutputChunkBytes:     4096,
		ExecTimeout:          30 * time.Second,
		ReadLimitBytes:       2 << 20,
	}
}

// ConnectionSource hands out leases on pooled device transports. The
// uplink module is the production implementation.
type ConnectionSource interface {
	Acquire(ctx context.Context, deviceID string) (uplink.Lease, error)
}

// Registry tracks live sessions and enforces the per-device limit. Closed
// sessions leave the registry, so operations on their ids report
// ErrSessionClosed.
type Registry struct {
	cfg    Config
	logger *zap.Logger
	bus    plugin.EventBus
	source ConnectionSource

	mu       sync.Mutex
	sessions map[string]*session
	byDevice map[string]int // live sessions plus in-flight reservations
}

// NewRegistry builds an empty session registry.
func NewRegistry(cfg Config, source ConnectionSource, bus plugin.EventBus, logger *zap.Logger) *Registry {
	return &Registry{
		cfg:      cfg,
		logger:   logger,
		bus:      bus,
		source:   source,
		sessions: make(map[string]*session),
		byDevice: make(map[string]int),
	}
}

// Open creates a session on the device's pooled connection. The slot is
// reserved before the pool is touched, so concurrent opens over the limit
// fail with LimitError instead of racing past it.
func (r *Registry) Open(ctx context.Context, deviceID string, kind Kind, cols, rows int) (Session, error) {
	if !ValidKind(kind) {
		return Session{}, fmt.Errorf("unknown session kind %q", kind)
	}
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}

	r.mu.Lock()
	if r.byDevice[deviceID] >= r.cfg.MaxSessionsPerDevice {
		limit := r.cfg.MaxSessionsPerDevice
		r.mu.Unlock()
		return Session{}, &LimitError{DeviceID: deviceID, Limit: limit}
	}
	r.byDevice[deviceID]++
	r.mu.Unlock()

	lease, err := r.source.Acquire(ctx, deviceID)
	if err != nil {
		r.unreserve(deviceID)
		return Session{}, err
	}

	s := &session{
		id:        uuid.New().String(),
		deviceID:  deviceID,
		kind:      kind,
		createdAt: time.Now().UTC(),
		lease:     lease,
		state:     SessionActive,
		cols:      cols,
		rows:      rows,
		closed:    make(chan struct{}),
	}

	switch kind {
	case KindTerminal:
		term, err := lease.Transport().OpenTerminal(cols, rows)
		if err != nil {
			lease.Release()
			r.unreserve(deviceID)
			return Session{}, fmt.Errorf("open terminal on %s: %w", deviceID, err)
		}
		s.term = term
	case KindFileOp:
		files, err := lease.Transport().Files()
		if err != nil {
			lease.Release()
			r.unreserve(deviceID)
			return Session{}, fmt.Errorf("open file channel on %s: %w", deviceID, err)
		}
		cwd, err := runWithTimeout(ctx, r.cfg.ExecTimeout, files.Getwd)
		if err != nil {
			lease.Release()
			r.unreserve(deviceID)
			return Session{}, fmt.Errorf("resolve start directory on %s: %w", deviceID, err)
		}
		s.files = files
		s.cwd = cwd
	}

	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
	sessionsOpen.Inc()

	go r.watch(s)
	if kind == KindTerminal {
		go r.pump(s)
	}

	r.publishAsync(TopicSessionCreated, SessionEvent{SessionID: s.id, DeviceID: deviceID, Kind: kind})
	r.logger.Info("session opened",
		zap.String("session_id", s.id),
		zap.String("device_id", deviceID),
		zap.String("kind", string(kind)),
	)
	return s.snapshot(), nil
}

// Write feeds data to a terminal session's stdin.
func (r *Registry) Write(_ context.Context, sessionID string, data []byte) error {
	s, err := r.active(sessionID)
	if err != nil {
		return err
	}
	if s.kind != KindTerminal {
		return fmt.Errorf("input requires a terminal session, %s is %s", sessionID, s.kind)
	}
	if _, err := s.term.Write(data); err != nil {
		return fmt.Errorf("write to session %s: %w", sessionID, err)
	}
	return nil
}

// Resize changes a terminal session's PTY window.
func (r *Registry) Resize(_ context.Context, sessionID string, cols, rows int) error {
	s, err := r.active(sessionID)
	if err != nil {
		return err
	}
	if s.kind != KindTerminal {
		return fmt.Errorf("resize requires a terminal session, %s is %s", sessionID, s.kind)
	}
	if err := s.term.Resize(cols, rows); err != nil {
		return fmt.Errorf("resize session %s: %w", sessionID, err)
	}
	s.setSize(cols, rows)
	return nil
}

// Exec runs a one-shot command in the session's working directory and
// captures its output. Non-zero exit codes land in the result, not the
// error.
func (r *Registry) Exec(ctx context.Context, sessionID, command string) (uplink.ExecResult, error) {
	s, err := r.fileSession(sessionID)
	if err != nil {
		return uplink.ExecResult{}, err
	}
	if strings.TrimSpace(command) == "" {
		return uplink.ExecResult{}, fmt.Errorf("empty command")
	}

	full := fmt.Sprintf("cd %s && %s", shellQuote(s.workingDir()), command)
	execCtx, cancel := context.WithTimeout(ctx, r.cfg.ExecTimeout)
	defer cancel()

	result, err := s.lease.Transport().Exec(execCtx, full)
	if err != nil {
		return result, fmt.Errorf("exec on session %s: %w", sessionID, err)
	}
	return result, nil
}

// Close ends a session. Second and later calls are no-ops.
func (r *Registry) Close(_ context.Context, sessionID string) error {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	r.closeSession(s, "closed by user")
	return nil
}

// CloseAll ends every live session, used at shutdown.
func (r *Registry) CloseAll(reason string) {
	r.mu.Lock()
	all := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.Unlock()

	for _, s := range all {
		r.closeSession(s, reason)
	}
}

// List returns snapshots of live sessions, newest last. Empty deviceID
// lists every device.
func (r *Registry) List(deviceID string) []Session {
	r.mu.Lock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if deviceID != "" && s.deviceID != deviceID {
			continue
		}
		out = append(out, s.snapshot())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Get returns a snapshot of one live session.
func (r *Registry) Get(sessionID string) (Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if !ok {
		return Session{}, false
	}
	return s.snapshot(), true
}

// Count reports the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) active(sessionID string) (*session, error) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionClosed)
	}
	return s, nil
}

func (r *Registry) fileSession(sessionID string) (*session, error) {
	s, err := r.active(sessionID)
	if err != nil {
		return nil, err
	}
	if s.kind != KindFileOp {
		return nil, fmt.Errorf("file operations require a fileop session, %s is %s", sessionID, s.kind)
	}
	return s, nil
}

// watch cascades transport loss into the session. Whichever of the lease
// dying or the session closing happens first wins; closeSession is
// idempotent either way.
func (r *Registry) watch(s *session) {
	select {
	case <-s.lease.Done():
		r.closeSession(s, "device disconnected")
	case <-s.closed:
	}
}

// pump streams terminal output onto the bus in read order. Publishing
// synchronously from this single goroutine keeps per-session chunks FIFO
// for every subscriber.
func (r *Registry) pump(s *session) {
	buf := make([]byte, r.cfg.OutputChunkBytes)
	var seq uint64
	for {
		n, err := s.term.Read(buf)
		if n > 0 {
			seq++
			data := make([]byte, n)
			copy(data, buf[:n])
			r.publishSync(TopicSessionOutput, OutputEvent{
				SessionID: s.id,
				DeviceID:  s.deviceID,
				Data:      data,
				Seq:       seq,
			})
		}
		if err != nil {
			r.closeSession(s, "terminal ended")
			return
		}
	}
}

// closeSession transitions a session to Closed exactly once regardless of
// who calls it: user close, cascade from the transport, pump exit, or
// shutdown.
func (r *Registry) closeSession(s *session, reason string) {
	s.closeOnce.Do(func() {
		s.markClosed(time.Now().UTC())
		close(s.closed)

		r.mu.Lock()
		delete(r.sessions, s.id)
		r.mu.Unlock()
		r.unreserve(s.deviceID)
		sessionsOpen.Dec()

		if s.term != nil {
			_ = s.term.Close()
		}
		s.lease.Release()

		r.publishAsync(TopicSessionClosed, SessionEvent{
			SessionID: s.id,
			DeviceID:  s.deviceID,
			Kind:      s.kind,
			Reason:    reason,
		})
		r.logger.Info("session closed",
			zap.String("session_id", s.id),
			zap.String("device_id", s.deviceID),
			zap.String("reason", reason),
		)
	})
}

func (r *Registry) unreserve(deviceID string) {
	r.mu.Lock()
	if r.byDevice[deviceID] > 0 {
		r.byDevice[deviceID]--
	}
	if r.byDevice[deviceID] == 0 {
		delete(r.byDevice, deviceID)
	}
	r.mu.Unlock()
}

func (r *Registry) publishSync(topic string, payload any) {
	if r.bus == nil {
		return
	}
	_ = r.bus.Publish(context.Background(), plugin.Event{
		Topic:     topic,
		Source:    "console",
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}

func (r *Registry) publishAsync(topic string, payload any) {
	if r.bus == nil {
		return
	}
	r.bus.PublishAsync(context.Background(), plugin.Event{
		Topic:     topic,
		Source:    "console",
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}

// runWithTimeout bounds a blocking call that has no context support, like
// the SFTP client's operations. The call itself keeps running if it never
// returns; the transport teardown is what actually unsticks it.
func runWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	type outcome struct {
		v   T
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := fn()
		ch <- outcome{v: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case out := <-ch:
		return out.v, out.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-timer.C:
		return zero, fmt.Errorf("remote operation timed out after %s", timeout)
	}
}

// shellQuote single-quotes a path for safe interpolation into a remote
// shell command line.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
