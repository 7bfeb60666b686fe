package console

// Event topics published by the console module. Output events for one
// session are published in read order from a single pump goroutine.
const (
	TopicSessionCreated = "console.session.created"
	TopicSessionClosed  = "console.session.closed"
	TopicSessionOutput  = "console.session.output"
)

// SessionEvent is the payload for session lifecycle events.
type SessionEvent struct {
	SessionID string `json:"session_id"`
	DeviceID  string `json:"device_id"`
	Kind      Kind   `json:"kind"`
	Reason    string `json:"reason,omitempty"`
}

// OutputEvent carries one chunk of terminal output. Data marshals as
// base64 on JSON boundaries. Seq increases by one per chunk within a
// session.
type OutputEvent struct {
	SessionID string `json:"session_id"`
	DeviceID  string `json:"device_id"`
	Data      []byte `json:"data"`
	Seq       uint64 `json:"seq"`
}
