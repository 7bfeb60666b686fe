package roster

import "github.com/fleetbridge/fleetbridge/pkg/models"

// Event topics published by the roster module.
const (
	TopicDeviceRegistered = "roster.device.registered"
	TopicDeviceUpdated    = "roster.device.updated"
	TopicDeviceRemoved    = "roster.device.removed"
)

// DeviceEvent is the payload for registered and updated events. The Device
// carries no credential material.
type DeviceEvent struct {
	Device *models.Device `json:"device"`
}

// DeviceRemovedEvent is the payload for TopicDeviceRemoved events.
type DeviceRemovedEvent struct {
	DeviceID string `json:"device_id"`
}
