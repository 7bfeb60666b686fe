package relay

import (
	"time"

	"github.com/fleetbridge/fleetbridge/internal/rollout"
	"github.com/fleetbridge/fleetbridge/pkg/models"
)

// EventType discriminates stream frames. The device-scoped kinds form a
// closed set: adding one means a new constant plus its payload struct.
type EventType string

const (
	EventDeviceStatus  EventType = "device.status"
	EventDeviceMetrics EventType = "device.metrics"
	EventSessionOutput EventType = "session.output"
	EventDeploymentLog EventType = "deployment.log"

	// Control-plane replies to client actions.
	EventAck   EventType = "ack"
	EventPong  EventType = "pong"
	EventError EventType = "error"
)

// Message is the envelope for every frame the relay sends.
type Message struct {
	Type      EventType `json:"type"`
	DeviceID  string    `json:"device_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// DeviceStatusData is the payload for device.status frames.
type DeviceStatusData struct {
	Online          bool                  `json:"online"`
	Category        models.DeviceCategory `json:"category"`
	LastHeartbeatAt time.Time             `json:"last_heartbeat_at"`
}

// DeviceMetricsData is the payload for device.metrics frames.
type DeviceMetricsData struct {
	Metrics models.Metrics `json:"metrics"`
	At      time.Time      `json:"at"`
}

// SessionOutputData is the payload for session.output frames. Data is
// base64 on the wire; Seq preserves the terminal's chunk order.
type SessionOutputData struct {
	SessionID string `json:"session_id"`
	Data      []byte `json:"data"`
	Seq       uint64 `json:"seq"`
}

// DeploymentLogData is the payload for deployment.log frames.
type DeploymentLogData struct {
	DeploymentID string          `json:"deployment_id"`
	Line         rollout.LogLine `json:"line"`
}

// ErrorData is the payload for error frames.
type ErrorData struct {
	Message string `json:"message"`
}

// AckData is the payload for ack frames, echoing the observer's current
// room set after a subscribe or unsubscribe.
type AckData struct {
	Rooms []string `json:"rooms"`
}

// Client actions accepted on the stream.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPing        = "ping"
)

// Action is an in-band control message from the client.
type Action struct {
	Action   string `json:"action"`
	DeviceID string `json:"device_id,omitempty"`
}
