package relay

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Observer is one attached stream client. Its send channel is drained by a
// single writer goroutine; rooms are guarded by the hub lock.
type Observer struct {
	id    string
	send  chan Message
	rooms map[string]struct{}
}

// NewObserver creates an observer. An empty id gets a generated one, used
// when auth is disabled.
func NewObserver(id string, buffer int) *Observer {
	if id == "" {
		id = uuid.New().String()
	}
	if buffer <= 0 {
		buffer = 256
	}
	return &Observer{
		id:    id,
		send:  make(chan Message, buffer),
		rooms: make(map[string]struct{}),
	}
}

// ID returns the observer's identity, the JWT subject or a generated id.
func (o *Observer) ID() string { return o.id }

// Hub fans device-scoped messages out to subscribed observers. One lock
// guards the observer set and every observer's room membership; send
// channels are closed only after the observer has left the maps, so a send
// under the lock can never hit a closed channel.
type Hub struct {
	logger *zap.Logger

	mu        sync.Mutex
	observers map[*Observer]struct{}
	rooms     map[string]map[*Observer]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:    logger,
		observers: make(map[*Observer]struct{}),
		rooms:     make(map[string]map[*Observer]struct{}),
	}
}

// Register adds an observer to the hub with no room subscriptions.
func (h *Hub) Register(o *Observer) {
	h.mu.Lock()
	h.observers[o] = struct{}{}
	h.mu.Unlock()
	observersGauge.Inc()
	h.logger.Debug("observer attached", zap.String("observer_id", o.id))
}

// Unregister removes an observer from every room and closes its send
// channel. Safe to call more than once.
func (h *Hub) Unregister(o *Observer) {
	h.mu.Lock()
	_, existed := h.observers[o]
	if existed {
		delete(h.observers, o)
		for room := range o.rooms {
			h.leaveRoom(o, room)
		}
	}
	h.mu.Unlock()

	if existed {
		close(o.send)
		observersGauge.Dec()
		h.logger.Debug("observer detached", zap.String("observer_id", o.id))
	}
}

// Subscribe adds the observer to a device room. Idempotent; unknown
// observers (already unregistered) are ignored.
func (h *Hub) Subscribe(o *Observer, deviceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.observers[o]; !ok {
		return
	}
	o.rooms[deviceID] = struct{}{}
	room, ok := h.rooms[deviceID]
	if !ok {
		room = make(map[*Observer]struct{})
		h.rooms[deviceID] = room
	}
	room[o] = struct{}{}
}

// Unsubscribe removes the observer from a device room. Idempotent.
func (h *Hub) Unsubscribe(o *Observer, deviceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(o.rooms, deviceID)
	h.leaveRoom(o, deviceID)
}

// Rooms returns the observer's current room set, sorted.
func (h *Hub) Rooms(o *Observer) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(o.rooms))
	for room := range o.rooms {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

// Publish enqueues msg to every observer subscribed to the device's room.
// The lock serializes publishes, so each observer sees messages for a
// device in publish order. An observer whose buffer is full is
// disconnected rather than skipped: a gap in a terminal stream is worse
// than a reconnect.
func (h *Hub) Publish(deviceID string, msg Message) {
	h.mu.Lock()
	var slow []*Observer
	for o := range h.rooms[deviceID] {
		select {
		case o.send <- msg:
		default:
			slow = append(slow, o)
		}
	}
	h.mu.Unlock()

	for _, o := range slow {
		h.logger.Warn("observer overran its send buffer, disconnecting",
			zap.String("observer_id", o.id),
			zap.String("device_id", deviceID),
		)
		h.Unregister(o)
	}
}

// Send delivers a control reply to one observer, dropping it if the
// observer is gone or its buffer is full.
func (h *Hub) Send(o *Observer, msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.observers[o]; !ok {
		return
	}
	select {
	case o.send <- msg:
	default:
	}
}

// ObserverCount returns the number of attached observers.
func (h *Hub) ObserverCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// RoomCounts returns the subscriber count per device room.
func (h *Hub) RoomCounts() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]int, len(h.rooms))
	for room, members := range h.rooms {
		out[room] = len(members)
	}
	return out
}

// CloseAll disconnects every observer, used at shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	all := make([]*Observer, 0, len(h.observers))
	for o := range h.observers {
		all = append(all, o)
	}
	h.mu.Unlock()

	for _, o := range all {
		h.Unregister(o)
	}
}

// leaveRoom removes o from a room index entry, dropping empty rooms.
// Callers hold the hub lock.
func (h *Hub) leaveRoom(o *Observer, deviceID string) {
	room, ok := h.rooms[deviceID]
	if !ok {
		return
	}
	delete(room, o)
	if len(room) == 0 {
		delete(h.rooms, deviceID)
	}
}
