package vitals

import (
	"time"

	"github.com/fleetbridge/fleetbridge/pkg/models"
)

// Event topics published by the vitals module.
const (
	TopicDeviceOnline   = "vitals.device.online"
	TopicDeviceOffline  = "vitals.device.offline"
	TopicMetricsUpdated = "vitals.metrics.updated"
)

// StatusEvent is the payload for online and offline events. Emitted exactly
// once per liveness flip.
type StatusEvent struct {
	DeviceID        string                `json:"device_id"`
	Category        models.DeviceCategory `json:"category"`
	Online          bool                  `json:"online"`
	LastHeartbeatAt time.Time             `json:"last_heartbeat_at"`
}

// MetricsEvent is the payload for TopicMetricsUpdated, emitted on every
// heartbeat that carries a parsable metrics payload.
type MetricsEvent struct {
	DeviceID string                `json:"device_id"`
	Category models.DeviceCategory `json:"category"`
	Metrics  models.Metrics        `json:"metrics"`
	At       time.Time             `json:"at"`
}
