package roles

import "time"

// MonitorStatus represents the liveness state of a device.
type MonitorStatus struct {
	DeviceID      string    `json:"device_id"`
	Online        bool      `json:"online"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	Message       string    `json:"message,omitempty"`
}

// Notification represents a message to be delivered by a Notifier.
type Notification struct {
	Topic   string         `json:"topic"`
	Summary string         `json:"summary"`
	Body    string         `json:"body,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}
