package uplink

// Event topics published by the uplink module. Each transition emits its
// event exactly once per connection incarnation.
const (
	TopicConnReady    = "uplink.connection.ready"
	TopicConnDegraded = "uplink.connection.degraded"
	TopicConnClosed   = "uplink.connection.closed"
)

// ConnEvent is the payload for connection state events.
type ConnEvent struct {
	DeviceID string `json:"device_id"`
	State    State  `json:"state"`
	Reason   string `json:"reason,omitempty"`
}
