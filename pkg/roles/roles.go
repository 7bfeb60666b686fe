// Package roles defines typed contracts for module roles.
// Modules that fill a role (declared via PluginInfo.Roles) should implement
// the corresponding interface so callers can use type-safe access via
// PluginResolver.ResolveByRole followed by a type assertion.
//
// This package is Apache 2.0 licensed, part of the public module SDK.
package roles

import (
	"context"
	"errors"

	"github.com/fleetbridge/fleetbridge/pkg/models"
)

// ErrDeviceNotFound is returned by InventoryProvider and CredentialProvider
// implementations when no device matches the given id.
var ErrDeviceNotFound = errors.New("device not found")

// Role name constants match the strings used in PluginInfo.Roles.
const (
	RoleInventory       = "inventory"
	RoleCredentialStore = "credential_store" //nolint:gosec // G101: role name, not a credential
	RoleMonitoring      = "monitoring"
	RoleRemoteAccess    = "remote_access"
	RoleBroadcast       = "broadcast"
	RoleDeployment      = "deployment"
	RoleNotification    = "notification"
	RoleTelemetry       = "telemetry"
)

// InventoryProvider is implemented by modules that hold the device roster.
type InventoryProvider interface {
	// Devices returns all registered devices, credentials redacted.
	Devices(ctx context.Context) ([]models.Device, error)

	// DeviceByID returns a single device by its ID.
	DeviceByID(ctx context.Context, id string) (*models.Device, error)
}

// CredentialProvider is implemented by modules that store and retrieve
// connection secrets for managed devices.
type CredentialProvider interface {
	// CredentialForDevice returns the unsealed credential for a device.
	CredentialForDevice(ctx context.Context, deviceID string) (*models.Credential, error)
}

// MonitoringProvider is implemented by modules that track device liveness.
type MonitoringProvider interface {
	// Online reports current liveness for a device.
	Online(deviceID string) bool

	// Status returns the monitoring status for a device.
	Status(ctx context.Context, deviceID string) (*MonitorStatus, error)
}

// RemoteAccessProvider is implemented by modules that hold live transport
// to managed devices.
type RemoteAccessProvider interface {
	// Available reports whether a live connection to the device exists or
	// could be established without dialing.
	Available(ctx context.Context, deviceID string) (bool, error)
}

// Notifier is implemented by modules that deliver notifications
// (webhooks, email, chat).
type Notifier interface {
	// Notify sends a notification with the given payload.
	Notify(ctx context.Context, notification Notification) error
}
