package console

import (
	"sync"
	"time"

	"github.com/fleetbridge/fleetbridge/internal/uplink"
)

// Kind distinguishes what a session drives on the shared transport.
type Kind string

const (
	KindTerminal Kind = "terminal"
	KindFileOp   Kind = "fileop"
)

// ValidKind reports whether k names a supported session kind.
func ValidKind(k Kind) bool {
	return k == KindTerminal || k == KindFileOp
}

// SessionState is the lifecycle state of a session.
type SessionState string

const (
	SessionActive SessionState = "active"
	SessionClosed SessionState = "closed"
)

// Session is the externally visible snapshot of a live session. Cwd is
// authoritative here for fileop sessions: it is updated server-side after
// every directory change and never inferred by clients.
type Session struct {
	ID        string       `json:"id"`
	DeviceID  string       `json:"device_id"`
	Kind      Kind         `json:"kind"`
	State     SessionState `json:"state"`
	Cwd       string       `json:"cwd,omitempty"`
	Cols      int          `json:"cols,omitempty"`
	Rows      int          `json:"rows,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	ClosedAt  *time.Time   `json:"closed_at,omitempty"`
}

// session is the runtime behind a Session snapshot. The lease pins the
// device transport; term or files is set depending on kind.
type session struct {
	id        string
	deviceID  string
	kind      Kind
	createdAt time.Time
	lease     uplink.Lease
	term      uplink.TerminalChannel
	files     uplink.FileClient

	mu       sync.Mutex
	state    SessionState
	cwd      string
	cols     int
	rows     int
	closedAt time.Time

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *session) snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Session{
		ID:        s.id,
		DeviceID:  s.deviceID,
		Kind:      s.kind,
		State:     s.state,
		Cwd:       s.cwd,
		Cols:      s.cols,
		Rows:      s.rows,
		CreatedAt: s.createdAt,
	}
	if !s.closedAt.IsZero() {
		t := s.closedAt
		snap.ClosedAt = &t
	}
	return snap
}

func (s *session) workingDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cwd
}

func (s *session) setWorkingDir(cwd string) {
	s.mu.Lock()
	s.cwd = cwd
	s.mu.Unlock()
}

func (s *session) setSize(cols, rows int) {
	s.mu.Lock()
	s.cols = cols
	s.rows = rows
	s.mu.Unlock()
}

func (s *session) markClosed(at time.Time) {
	s.mu.Lock()
	s.state = SessionClosed
	s.closedAt = at
	s.mu.Unlock()
}
