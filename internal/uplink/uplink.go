// Package uplink maintains the pooled SSH transports to managed devices.
//
// At most one transport exists per device at any time. Callers borrow the
// shared transport through leases; the pool dials on first demand, answers
// concurrent demand with a single dial, keeps established links alive with
// application-level keepalives, and tears transports down when they idle
// out or stop answering. Terminal sessions, command execution, and file
// transfer all ride the same multiplexed connection.
package uplink

import (
	"context"
	"strconv"
	"time"

	"github.com/fleetbridge/fleetbridge/internal/roster"
	"github.com/fleetbridge/fleetbridge/pkg/plugin"
	"github.com/fleetbridge/fleetbridge/pkg/roles"
	"go.uber.org/zap"
)

var (
	_ plugin.Plugin              = (*Module)(nil)
	_ plugin.HTTPProvider        = (*Module)(nil)
	_ plugin.HealthChecker       = (*Module)(nil)
	_ plugin.EventSubscriber     = (*Module)(nil)
	_ roles.RemoteAccessProvider = (*Module)(nil)
)

// Module owns the connection pool and exposes it to sibling modules and
// over HTTP.
type Module struct {
	logger *zap.Logger
	cfg    Config
	pool   *Pool
	dialer Dialer

	inventory   roles.InventoryProvider
	credentials roles.CredentialProvider
}

// New creates the uplink module.
func New() *Module {
	return &Module{}
}

// SetDialer replaces the SSH dialer. Call before Init; used by tests.
func (m *Module) SetDialer(d Dialer) { m.dialer = d }

// SetInventory overrides role resolution for the device inventory.
func (m *Module) SetInventory(p roles.InventoryProvider) { m.inventory = p }

// SetCredentials overrides role resolution for the credential store.
func (m *Module) SetCredentials(p roles.CredentialProvider) { m.credentials = p }

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "uplink",
		Version:      "0.1.0",
		Description:  "Pooled SSH connections with keepalive and reconnect backoff",
		Dependencies: []string{"roster"},
		Roles:        []string{roles.RoleRemoteAccess},
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

	if deps.Plugins != nil {
		if m.inventory == nil {
			for _, p := range deps.Plugins.ResolveByRole(roles.RoleInventory) {
				if inv, ok := p.(roles.InventoryProvider); ok {
					m.inventory = inv
					break
				}
			}
		}
		if m.credentials == nil {
			for _, p := range deps.Plugins.ResolveByRole(roles.RoleCredentialStore) {
				if cp, ok := p.(roles.CredentialProvider); ok {
					m.credentials = cp
					break
				}
			}
		}
	}

	if m.dialer == nil {
		m.dialer = &sshDialer{cfg: m.cfg, logger: m.logger}
	}
	m.pool = NewPool(m.cfg, m.dialer, m.inventory, m.credentials, deps.Bus, m.logger)

	m.logger.Info("uplink module initialized",
		zap.Duration("dial_timeout", m.cfg.DialTimeout),
		zap.Duration("keepalive_interval", m.cfg.KeepaliveInterval),
		zap.Duration("idle_ttl", m.cfg.IdleTTL),
	)
	return nil
}

func (m *Module) Start(_ context.Context) error { return nil }

func (m *Module) Stop(_ context.Context) error {
	if m.pool != nil {
		m.pool.CloseAll()
	}
	return nil
}

// Acquire hands out a lease on the device's pooled connection. The console
// and rollout modules go through this.
func (m *Module) Acquire(ctx context.Context, deviceID string) (Lease, error) {
	return m.pool.Acquire(ctx, deviceID)
}

// CommandTimeout is the default deadline other modules apply to one-shot
// remote commands.
func (m *Module) CommandTimeout() time.Duration { return m.cfg.CommandTimeout }

// Available implements roles.RemoteAccessProvider. True only while a live
// transport exists; it never triggers a dial.
func (m *Module) Available(_ context.Context, deviceID string) (bool, error) {
	info, ok := m.pool.Info(deviceID)
	if !ok {
		return false, nil
	}
	return info.State == StateReady || info.State == StateDegraded, nil
}

// Subscriptions drops a device's connection the moment it leaves the roster.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: roster.TopicDeviceRemoved, Handler: m.onDeviceRemoved},
	}
}

func (m *Module) onDeviceRemoved(_ context.Context, event plugin.Event) {
	removed, ok := event.Payload.(roster.DeviceRemovedEvent)
	if !ok {
		return
	}
	m.pool.Close(removed.DeviceID)
}

func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	states := m.pool.States()
	ready := 0
	degraded := 0
	for _, s := range states {
		switch s.State {
		case StateReady:
			ready++
		case StateDegraded:
			degraded++
		}
	}

	status := "healthy"
	if degraded > 0 {
		status = "degraded"
	}
	return plugin.HealthStatus{
		Status: status,
		Details: map[string]string{
			"connections": strconv.Itoa(len(states)),
			"ready":       strconv.Itoa(ready),
			"degraded":    strconv.Itoa(degraded),
		},
	}
}
