package models

import "time"

// DeviceCategory classifies a managed device by its connectivity profile.
// Edge computers hold a pooled SSH connection and report frequently;
// battery-powered sensors report on a slow cadence and are never dialed.
type DeviceCategory string

const (
	CategoryEdgeComputer DeviceCategory = "edge_computer"
	CategoryIoTSensor    DeviceCategory = "iot_sensor"
)

// Valid reports whether the category is one of the known values.
func (c DeviceCategory) Valid() bool {
	return c == CategoryEdgeComputer || c == CategoryIoTSensor
}

// CredentialKind identifies how FleetBridge authenticates to a device.
type CredentialKind string

const (
	CredentialPassword   CredentialKind = "password"
	CredentialPrivateKey CredentialKind = "private_key"
)

// Device represents a managed device registered with FleetBridge.
type Device struct {
	ID           string         `json:"id" example:"edge-lab-07"`
	Name         string         `json:"name" example:"Lab gateway 07"`
	Category     DeviceCategory `json:"category" example:"edge_computer"`
	Host         string         `json:"host,omitempty" example:"10.40.2.17"`
	Port         int            `json:"port,omitempty" example:"22"`
	User         string         `json:"user,omitempty" example:"fleet"`
	Capabilities []string       `json:"capabilities,omitempty"`
	Notes        string         `json:"notes,omitempty" example:"north hall rack"`
	CreatedAt    time.Time      `json:"created_at" example:"2026-01-10T08:00:00Z"`
	UpdatedAt    time.Time      `json:"updated_at" example:"2026-01-15T10:30:00Z"`
}

// Credential holds the SSH secret for a device. Sealed at rest by the
// roster store and never serialized into API responses.
type Credential struct {
	Kind   CredentialKind `json:"-"`
	Secret string         `json:"-"`
}
