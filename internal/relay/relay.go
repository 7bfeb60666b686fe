// Package relay streams fleet events to WebSocket observers. Observers
// subscribe to device rooms in-band; the hub fans bus events out to every
// room member in publish order and disconnects observers that cannot keep
// up.
package relay

import (
	"context"
	"strconv"

	"github.com/fleetbridge/fleetbridge/internal/console"
	"github.com/fleetbridge/fleetbridge/internal/rollout"
	"github.com/fleetbridge/fleetbridge/internal/vitals"
	"github.com/fleetbridge/fleetbridge/pkg/plugin"
	"github.com/fleetbridge/fleetbridge/pkg/roles"
	"go.uber.org/zap"
)

var (
	_ plugin.Plugin          = (*Module)(nil)
	_ plugin.HTTPProvider    = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
	_ plugin.HealthChecker   = (*Module)(nil)
)

// TokenValidator checks a stream token and returns its subject. The auth
// token service satisfies this through a small adapter in the composition
// root; a nil validator means anonymous observers (dev mode).
type TokenValidator interface {
	Validate(token string) (subject string, err error)
}

// Config controls the relay module.
type Config struct {
	Enabled    bool `mapstructure:"enabled"`
	SendBuffer int  `mapstructure:"send_buffer"`
}

// DefaultConfig returns the relay defaults applied before unmarshaling.
func DefaultConfig() Config {
	return Config{Enabled: true, SendBuffer: 256}
}

// Module bridges bus topics onto the observer hub and serves the stream
// endpoint.
type Module struct {
	logger    *zap.Logger
	cfg       Config
	hub       *Hub
	tokens    TokenValidator
	inventory roles.InventoryProvider
}

// New creates the relay module.
func New() *Module {
	return &Module{}
}

// SetTokenValidator installs the stream auth check. Call before Init.
func (m *Module) SetTokenValidator(v TokenValidator) { m.tokens = v }

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "relay",
		Version:     "0.1.0",
		Description: "Real-time event stream over WebSocket with per-device rooms",
		Roles:       []string{roles.RoleBroadcast},
		APIVersion:  plugin.APIVersionCurrent,
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

	// Inventory is only consulted to log subscriptions to unknown devices;
	// observers may subscribe ahead of registration.
	if deps.Plugins != nil {
		for _, p := range deps.Plugins.ResolveByRole(roles.RoleInventory) {
			if inv, ok := p.(roles.InventoryProvider); ok {
				m.inventory = inv
				break
			}
		}
	}

	m.hub = NewHub(m.logger)
	m.logger.Info("relay module initialized",
		zap.Bool("enabled", m.cfg.Enabled),
		zap.Int("send_buffer", m.cfg.SendBuffer),
	)
	return nil
}

func (m *Module) Start(_ context.Context) error { return nil }

func (m *Module) Stop(_ context.Context) error {
	if m.hub != nil {
		m.hub.CloseAll()
	}
	return nil
}

func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	return plugin.HealthStatus{
		Status:  "healthy",
		Message: "streaming",
		Details: map[string]string{
			"observers": strconv.Itoa(m.hub.ObserverCount()),
		},
	}
}

// Subscriptions bridges fleet topics onto the hub. Payload casts are
// lenient: a foreign payload shape is dropped, never fatal.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: vitals.TopicDeviceOnline, Handler: m.onStatus},
		{Topic: vitals.TopicDeviceOffline, Handler: m.onStatus},
		{Topic: vitals.TopicMetricsUpdated, Handler: m.onMetrics},
		{Topic: console.TopicSessionOutput, Handler: m.onSessionOutput},
		{Topic: rollout.TopicDeploymentLog, Handler: m.onDeploymentLog},
	}
}

func (m *Module) onStatus(_ context.Context, event plugin.Event) {
	status, ok := event.Payload.(vitals.StatusEvent)
	if !ok {
		return
	}
	m.hub.Publish(status.DeviceID, Message{
		Type:      EventDeviceStatus,
		DeviceID:  status.DeviceID,
		Timestamp: event.Timestamp,
		Data: DeviceStatusData{
			Online:          status.Online,
			Category:        status.Category,
			LastHeartbeatAt: status.LastHeartbeatAt,
		},
	})
}

func (m *Module) onMetrics(_ context.Context, event plugin.Event) {
	metrics, ok := event.Payload.(vitals.MetricsEvent)
	if !ok {
		return
	}
	m.hub.Publish(metrics.DeviceID, Message{
		Type:      EventDeviceMetrics,
		DeviceID:  metrics.DeviceID,
		Timestamp: event.Timestamp,
		Data: DeviceMetricsData{
			Metrics: metrics.Metrics,
			At:      metrics.At,
		},
	})
}

func (m *Module) onSessionOutput(_ context.Context, event plugin.Event) {
	chunk, ok := event.Payload.(console.OutputEvent)
	if !ok {
		return
	}
	m.hub.Publish(chunk.DeviceID, Message{
		Type:      EventSessionOutput,
		DeviceID:  chunk.DeviceID,
		Timestamp: event.Timestamp,
		Data: SessionOutputData{
			SessionID: chunk.SessionID,
			Data:      chunk.Data,
			Seq:       chunk.Seq,
		},
	})
}

func (m *Module) onDeploymentLog(_ context.Context, event plugin.Event) {
	log, ok := event.Payload.(rollout.LogEvent)
	if !ok {
		return
	}
	m.hub.Publish(log.DeviceID, Message{
		Type:      EventDeploymentLog,
		DeviceID:  log.DeviceID,
		Timestamp: event.Timestamp,
		Data: DeploymentLogData{
			DeploymentID: log.DeploymentID,
			Line:         log.Line,
		},
	})
}
