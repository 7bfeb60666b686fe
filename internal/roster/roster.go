// Package roster is the device inventory: registration, lookup, and sealed
// SSH credential storage for the rest of FleetBridge. Other modules reach it
// through the inventory and credential_store roles rather than importing it.
package roster

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/fleetbridge/fleetbridge/pkg/models"
	"github.com/fleetbridge/fleetbridge/pkg/plugin"
	"github.com/fleetbridge/fleetbridge/pkg/roles"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin            = (*Module)(nil)
	_ plugin.HTTPProvider      = (*Module)(nil)
	_ plugin.HealthChecker     = (*Module)(nil)
	_ roles.InventoryProvider  = (*Module)(nil)
	_ roles.CredentialProvider = (*Module)(nil)
)

// ErrDeviceNotFound is returned when a device id is not in the roster.
var ErrDeviceNotFound = roles.ErrDeviceNotFound

// Module implements the roster device inventory plugin.
type Module struct {
	logger *zap.Logger
	store  *RosterStore
	bus    plugin.EventBus
	sealer *Sealer
}

// New creates a new roster plugin instance.
func New() *Module {
	return &Module{sealer: NewSealer()}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "roster",
		Version:     "0.1.0",
		Description: "Device inventory and sealed SSH credentials",
		Required:    true,
		Roles:       []string{roles.RoleInventory, roles.RoleCredentialStore},
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus

	if err := deps.Store.Migrate(ctx, "roster", migrations()); err != nil {
		return err
	}
	m.store = NewRosterStore(deps.Store.DB())

	passphrase := ""
	if deps.Config != nil {
		passphrase = deps.Config.GetString("passphrase")
	}
	if passphrase == "" {
		// Inventory stays readable; credential seal/open return ErrSealed.
		m.logger.Warn("no roster passphrase configured, credential store is sealed")
		return nil
	}

	rec, err := m.store.GetMasterKeyRecord(ctx)
	if err != nil {
		return err
	}
	salt, verification, created, err := m.sealer.Bootstrap(passphrase, rec)
	if err != nil {
		return err
	}
	if created {
		if err := m.store.UpsertMasterKeyRecord(ctx, salt, verification); err != nil {
			m.sealer.Seal()
			return err
		}
		m.logger.Info("credential sealer initialized")
	}

	m.logger.Info("roster module initialized")
	return nil
}

func (m *Module) Start(_ context.Context) error {
	m.logger.Info("roster module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.sealer.Seal()
	m.logger.Info("roster module stopped")
	return nil
}

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/devices", Handler: m.handleListDevices},
		{Method: "GET", Path: "/devices/{id}", Handler: m.handleGetDevice},
		{Method: "PUT", Path: "/devices/{id}", Handler: m.handleRegisterDevice},
		{Method: "DELETE", Path: "/devices/{id}", Handler: m.handleRemoveDevice},
	}
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(ctx context.Context) plugin.HealthStatus {
	count, err := m.store.DeviceCount(ctx)
	if err != nil {
		return plugin.HealthStatus{Status: "unhealthy", Message: err.Error()}
	}
	return plugin.HealthStatus{
		Status: "healthy",
		Details: map[string]string{
			"devices": strconv.Itoa(count),
			"sealed":  strconv.FormatBool(m.sealer.Sealed()),
		},
	}
}

// Register upserts a device and, when a credential is given, seals and
// stores it. Emits roster.device.registered or roster.device.updated.
func (m *Module) Register(ctx context.Context, device *models.Device, cred *models.Credential) error {
	if !device.Category.Valid() {
		return errors.New("invalid device category")
	}
	if device.Port == 0 {
		device.Port = 22
	}
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	created, err := m.store.UpsertDevice(ctx, device)
	if err != nil {
		return err
	}

	if cred != nil && cred.Secret != "" {
		blob, wrappedKey, err := m.sealer.SealSecret([]byte(cred.Secret))
		if err != nil {
			return err
		}
		if err := m.store.UpsertCredential(ctx, device.ID, string(cred.Kind), blob, wrappedKey); err != nil {
			return err
		}
	}

	topic := TopicDeviceUpdated
	if created {
		topic = TopicDeviceRegistered
	}
	m.publish(ctx, topic, DeviceEvent{Device: device})

	m.logger.Info("device registered",
		zap.String("device_id", device.ID),
		zap.String("category", string(device.Category)),
		zap.Bool("created", created),
	)
	return nil
}

// Remove deletes a device and its sealed credential.
// Emits roster.device.removed so the connection pool can close any live link.
func (m *Module) Remove(ctx context.Context, id string) error {
	found, err := m.store.DeleteDevice(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return ErrDeviceNotFound
	}

	m.publish(ctx, TopicDeviceRemoved, DeviceRemovedEvent{DeviceID: id})
	m.logger.Info("device removed", zap.String("device_id", id))
	return nil
}

// Devices implements roles.InventoryProvider.
func (m *Module) Devices(ctx context.Context) ([]models.Device, error) {
	return m.store.ListDevices(ctx)
}

// DeviceByID implements roles.InventoryProvider.
func (m *Module) DeviceByID(ctx context.Context, id string) (*models.Device, error) {
	d, err := m.store.GetDevice(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrDeviceNotFound
	}
	return d, nil
}

// CredentialForDevice implements roles.CredentialProvider. The returned
// secret lives only in memory; callers must not persist or log it.
func (m *Module) CredentialForDevice(ctx context.Context, deviceID string) (*models.Credential, error) {
	rec, err := m.store.GetCredential(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrDeviceNotFound
	}

	secret, err := m.sealer.OpenSecret(rec.Blob, rec.WrappedKey)
	if err != nil {
		return nil, err
	}
	return &models.Credential{
		Kind:   models.CredentialKind(rec.Kind),
		Secret: string(secret),
	}, nil
}

func (m *Module) publish(ctx context.Context, topic string, payload any) {
	if m.bus == nil {
		return
	}
	m.bus.PublishAsync(ctx, plugin.Event{
		Topic:     topic,
		Source:    "roster",
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}
