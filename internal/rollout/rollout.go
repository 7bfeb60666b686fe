// Package rollout deploys artifacts to managed devices. Each deployment
// uploads one artifact over the device's pooled connection, runs its
// install and start commands, and records every step result and log line.
// One deployment runs at a time per device; distinct devices run
// concurrently up to a global cap.
package rollout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fleetbridge/fleetbridge/internal/uplink"
	"github.com/fleetbridge/fleetbridge/internal/vitals"
	"github.com/fleetbridge/fleetbridge/pkg/plugin"
	"github.com/fleetbridge/fleetbridge/pkg/roles"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin          = (*Module)(nil)
	_ plugin.HTTPProvider    = (*Module)(nil)
	_ plugin.HealthChecker   = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
)

// ErrDeploymentNotFound is returned by Get for an unknown deployment id.
var ErrDeploymentNotFound = errors.New("deployment not found")

// Config holds the rollout module configuration.
type Config struct {
	MaxConcurrent     int           `mapstructure:"max_concurrent"`
	StepTimeout       time.Duration `mapstructure:"step_timeout"`
	ExecTimeout       time.Duration `mapstructure:"exec_timeout"`
	UploadBaseTimeout time.Duration `mapstructure:"upload_base_timeout"`
	UploadBytesPerSec int64         `mapstructure:"upload_bytes_per_sec"`
	ArtifactDir       string        `mapstructure:"artifact_dir"`
	InstallCommand    string        `mapstructure:"install_command"`
	StartCommand      string        `mapstructure:"start_command"`
	HistoryLimit      int           `mapstructure:"history_limit"`
}

// DefaultConfig returns the rollout defaults applied before unmarshaling.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:     4,
		StepTimeout:       5 * time.Minute,
		ExecTimeout:       30 * time.Second,
		UploadBaseTimeout: 30 * time.Second,
		UploadBytesPerSec: 1 << 20,
		ArtifactDir:       "./artifacts",
		InstallCommand:    "chmod +x {artifact}",
		StartCommand:      "nohup ./{artifact} > {artifact}.log 2>&1 & echo started",
		HistoryLimit:      100,
	}
}

// Module implements the deployment controller plugin.
type Module struct {
	logger    *zap.Logger
	cfg       Config
	store     *RolloutStore
	inventory roles.InventoryProvider
	broker    SessionBroker
	artifacts ArtifactSource
	runner    *runner
}

// New creates the rollout module.
func New() *Module {
	return &Module{}
}

// SetSessionBroker overrides the console resolution. Call before Init;
// used by tests.
func (m *Module) SetSessionBroker(b SessionBroker) { m.broker = b }

// SetArtifactSource overrides the directory-backed artifact source. Call
// before Init; used by tests.
func (m *Module) SetArtifactSource(s ArtifactSource) { m.artifacts = s }

// SetInventory overrides the inventory resolution. Call before Init; used
// by tests.
func (m *Module) SetInventory(inv roles.InventoryProvider) { m.inventory = inv }

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "rollout",
		Version:      "0.1.0",
		Description:  "Artifact deployment to devices with step logs and per-device serialization",
		Dependencies: []string{"roster", "console"},
		Roles:        []string{roles.RoleDeployment},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return err
		}
	}

	if err := deps.Store.Migrate(ctx, "rollout", migrations()); err != nil {
		return err
	}
	m.store = NewRolloutStore(deps.Store.DB())

	if m.inventory == nil && deps.Plugins != nil {
		for _, p := range deps.Plugins.ResolveByRole(roles.RoleInventory) {
			if inv, ok := p.(roles.InventoryProvider); ok {
				m.inventory = inv
				break
			}
		}
	}
	if m.inventory == nil {
		return fmt.Errorf("rollout requires an inventory module")
	}

	if m.broker == nil && deps.Plugins != nil {
		if p, ok := deps.Plugins.Resolve("console"); ok {
			if b, ok := p.(SessionBroker); ok {
				m.broker = b
			}
		}
	}
	if m.broker == nil {
		return fmt.Errorf("rollout requires the console module")
	}

	if m.artifacts == nil {
		m.artifacts = NewDirSource(m.cfg.ArtifactDir)
	}

	m.runner = newRunner(m.cfg, m.store, deps.Bus, m.broker, m.artifacts, m.logger)

	m.logger.Info("rollout module initialized",
		zap.Int("max_concurrent", m.cfg.MaxConcurrent),
		zap.String("artifact_dir", m.cfg.ArtifactDir),
	)
	return nil
}

// Start fails over deployments left behind by a previous process. Their
// sessions died with it; nothing can resume them.
func (m *Module) Start(ctx context.Context) error {
	n, err := m.store.MarkInterrupted(ctx, "interrupted by restart")
	if err != nil {
		return err
	}
	if n > 0 {
		m.logger.Warn("failed deployments left over from previous run", zap.Int("count", n))
	}
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	if m.runner != nil {
		m.runner.stop()
	}
	return nil
}

func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	active := 0
	if m.runner != nil {
		active = m.runner.activeCount()
	}
	return plugin.HealthStatus{
		Status:  "healthy",
		Details: map[string]string{"deployments_active": strconv.Itoa(active)},
	}
}

// Subscriptions cancels in-flight deployments when their device drops.
// Payload casts are lenient: a foreign payload shape is ignored.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: vitals.TopicDeviceOffline, Handler: m.onDeviceOffline},
		{Topic: uplink.TopicConnClosed, Handler: m.onConnClosed},
	}
}

func (m *Module) onDeviceOffline(_ context.Context, event plugin.Event) {
	status, ok := event.Payload.(vitals.StatusEvent)
	if !ok {
		return
	}
	m.runner.forceDisconnect(status.DeviceID)
}

func (m *Module) onConnClosed(_ context.Context, event plugin.Event) {
	conn, ok := event.Payload.(uplink.ConnEvent)
	if !ok {
		return
	}
	m.runner.forceDisconnect(conn.DeviceID)
}

// Deploy validates the device and artifact, persists a Queued deployment,
// and hands it to the runner. The returned record is the Queued snapshot;
// progress is observable via Get and the deployment events.
func (m *Module) Deploy(ctx context.Context, deviceID, artifactRef string) (*Deployment, error) {
	if _, err := m.inventory.DeviceByID(ctx, deviceID); err != nil {
		return nil, err
	}
	rc, _, err := m.artifacts.Open(artifactRef)
	if err != nil {
		return nil, err
	}
	rc.Close()

	d := &Deployment{
		ID:          uuid.New().String(),
		DeviceID:    deviceID,
		ArtifactRef: artifactRef,
		State:       StateQueued,
		CreatedAt:   time.Now().UTC(),
	}
	if err := m.store.CreateDeployment(ctx, d); err != nil {
		return nil, err
	}
	if err := m.runner.enqueue(d); err != nil {
		now := time.Now().UTC()
		d.State = StateFailed
		d.Error = err.Error()
		d.FinishedAt = &now
		if perr := m.store.MarkFinished(ctx, d); perr != nil {
			m.logger.Error("persist rejected deployment", zap.String("deployment_id", d.ID), zap.Error(perr))
		}
		return nil, err
	}

	if err := m.store.PruneHistory(ctx, m.cfg.HistoryLimit); err != nil {
		m.logger.Warn("prune deployment history", zap.Error(err))
	}

	m.logger.Info("deployment queued",
		zap.String("deployment_id", d.ID),
		zap.String("device_id", deviceID),
		zap.String("artifact", artifactRef),
	)
	return d, nil
}

// Get returns a deployment with its step results and log lines.
func (m *Module) Get(ctx context.Context, id string) (*Deployment, error) {
	d, err := m.store.GetDeployment(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrDeploymentNotFound
	}
	return d, nil
}

// List returns deployment summaries newest first, optionally scoped to one
// device.
func (m *Module) List(ctx context.Context, deviceID string) ([]Summary, error) {
	return m.store.ListDeployments(ctx, deviceID, m.cfg.HistoryLimit)
}
