// Package console manages interactive sessions on managed devices: PTY
// terminals streamed over the event bus and file-manager sessions with a
// server-side working directory. Sessions borrow the device transport from
// the uplink pool and never outlive it.
package console

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fleetbridge/fleetbridge/internal/uplink"
	"github.com/fleetbridge/fleetbridge/pkg/plugin"
	"go.uber.org/zap"
)

var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
)

// Module owns the session registry and exposes it over HTTP and to
// sibling modules.
type Module struct {
	logger   *zap.Logger
	cfg      Config
	registry *Registry
	source   ConnectionSource
}

// New creates the console module.
func New() *Module {
	return &Module{}
}

// SetConnectionSource overrides the uplink resolution. Call before Init;
// used by tests.
func (m *Module) SetConnectionSource(s ConnectionSource) { m.source = s }

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "console",
		Version:      "0.1.0",
		Description:  "Interactive terminal and file-manager sessions on managed devices",
		Dependencies: []string{"uplink"},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return err
		}
	}

	if m.source == nil && deps.Plugins != nil {
		if p, ok := deps.Plugins.Resolve("uplink"); ok {
			if src, ok := p.(ConnectionSource); ok {
				m.source = src
			}
		}
	}
	if m.source == nil {
		return fmt.Errorf("console requires the uplink module")
	}

	m.registry = NewRegistry(m.cfg, m.source, deps.Bus, m.logger)

	m.logger.Info("console module initialized",
		zap.Int("max_sessions_per_device", m.cfg.MaxSessionsPerDevice),
		zap.Int("output_chunk_bytes", m.cfg.OutputChunkBytes),
	)
	return nil
}

func (m *Module) Start(_ context.Context) error { return nil }

func (m *Module) Stop(_ context.Context) error {
	if m.registry != nil {
		m.registry.CloseAll("server shutdown")
	}
	return nil
}

func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	open := 0
	if m.registry != nil {
		open = m.registry.Count()
	}
	return plugin.HealthStatus{
		Status:  "healthy",
		Details: map[string]string{"sessions_open": strconv.Itoa(open)},
	}
}

// Sibling-module surface. The rollout module drives deployments through a
// fileop session on the target device.

// OpenFileOp opens a file-manager session on the device.
func (m *Module) OpenFileOp(ctx context.Context, deviceID string) (Session, error) {
	return m.registry.Open(ctx, deviceID, KindFileOp, 0, 0)
}

// Upload streams src into a remote file on the session's device.
func (m *Module) Upload(ctx context.Context, sessionID, remotePath string, src io.Reader, timeout time.Duration) (int64, error) {
	return m.registry.Upload(ctx, sessionID, remotePath, src, timeout)
}

// Exec runs a command in the session's working directory.
func (m *Module) Exec(ctx context.Context, sessionID, command string) (uplink.ExecResult, error) {
	return m.registry.Exec(ctx, sessionID, command)
}

// CloseSession ends a session. Idempotent.
func (m *Module) CloseSession(ctx context.Context, sessionID string) error {
	return m.registry.Close(ctx, sessionID)
}
