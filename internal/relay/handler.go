package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/fleetbridge/fleetbridge/pkg/plugin"
	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

type statsResponse struct {
	Observers int            `json:"observers"`
	Rooms     map[string]int `json:"rooms"`
}

// Routes implements plugin.HTTPProvider. Mounted under /api/v1/relay.
func (m *Module) Routes() []plugin.Route {
	if !m.cfg.Enabled {
		return nil
	}
	return []plugin.Route{
		{Method: http.MethodGet, Path: "/stream", Handler: m.handleStream},
		{Method: http.MethodGet, Path: "/stats", Handler: m.handleStats},
	}
}

// handleStream attaches a WebSocket observer and serves it until either
// side disconnects.
//
//	@Summary		Attach to the event stream
//	@Description	Upgrades to WebSocket. Clients send {"action":"subscribe","device_id":...} to join device rooms and receive device.status, device.metrics, session.output, and deployment.log frames.
//	@Tags			relay
//	@Param			token	query	string	false	"Stream token (browser WebSocket clients cannot set headers)"
//	@Success		101
//	@Failure		401	{string}	string	"missing or invalid token"
//	@Router			/relay/stream [get]
func (m *Module) handleStream(w http.ResponseWriter, r *http.Request) {
	id, ok := m.authenticate(w, r)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Origin checking is moot: the token is the credential.
		InsecureSkipVerify: true,
	})
	if err != nil {
		m.logger.Error("websocket accept failed", zap.Error(err))
		return
	}

	obs := NewObserver(id, m.cfg.SendBuffer)
	m.hub.Register(obs)

	ctx := r.Context()
	done := make(chan struct{})
	go func() {
		m.writePump(ctx, conn, obs)
		// Closing the conn unblocks the read loop when the hub ended the
		// stream (shutdown or slow-observer disconnect).
		conn.Close(websocket.StatusNormalClosure, "")
		close(done)
	}()

	m.readLoop(ctx, conn, obs)

	m.hub.Unregister(obs)
	conn.Close(websocket.StatusNormalClosure, "")
	<-done
}

// handleStats reports observer and room counts.
//
//	@Summary		Stream statistics
//	@Tags			relay
//	@Produce		json
//	@Success		200	{object}	statsResponse
//	@Security		BearerAuth
//	@Router			/relay/stats [get]
func (m *Module) handleStats(w http.ResponseWriter, _ *http.Request) {
	resp := statsResponse{
		Observers: m.hub.ObserverCount(),
		Rooms:     m.hub.RoomCounts(),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// authenticate resolves the observer identity. With no validator installed
// every connection is anonymous and gets a generated id.
func (m *Module) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	if m.tokens == nil {
		return "", true
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
	}
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return "", false
	}

	subject, err := m.tokens.Validate(token)
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return "", false
	}
	return subject, true
}

// readLoop handles in-band control actions until the client disconnects.
func (m *Module) readLoop(ctx context.Context, conn *websocket.Conn, obs *Observer) {
	for {
		var action Action
		if err := wsjson.Read(ctx, conn, &action); err != nil {
			return
		}
		m.handleAction(obs, action)
	}
}

func (m *Module) handleAction(obs *Observer, action Action) {
	switch action.Action {
	case ActionSubscribe:
		if action.DeviceID == "" {
			m.sendError(obs, "subscribe requires device_id")
			return
		}
		if m.inventory != nil {
			if _, err := m.inventory.DeviceByID(context.Background(), action.DeviceID); err != nil {
				m.logger.Info("observer subscribed to unknown device",
					zap.String("observer_id", obs.ID()),
					zap.String("device_id", action.DeviceID),
				)
			}
		}
		m.hub.Subscribe(obs, action.DeviceID)
		m.sendAck(obs, action.DeviceID)

	case ActionUnsubscribe:
		if action.DeviceID == "" {
			m.sendError(obs, "unsubscribe requires device_id")
			return
		}
		m.hub.Unsubscribe(obs, action.DeviceID)
		m.sendAck(obs, action.DeviceID)

	case ActionPing:
		m.hub.Send(obs, Message{Type: EventPong, Timestamp: time.Now().UTC()})

	default:
		m.sendError(obs, "unknown action: "+action.Action)
	}
}

func (m *Module) sendAck(obs *Observer, deviceID string) {
	m.hub.Send(obs, Message{
		Type:      EventAck,
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
		Data:      AckData{Rooms: m.hub.Rooms(obs)},
	})
}

func (m *Module) sendError(obs *Observer, msg string) {
	m.hub.Send(obs, Message{
		Type:      EventError,
		Timestamp: time.Now().UTC(),
		Data:      ErrorData{Message: msg},
	})
}

// writePump drains the observer's send channel onto the socket. Each write
// gets its own deadline so one stuck peer cannot wedge the pump.
func (m *Module) writePump(ctx context.Context, conn *websocket.Conn, obs *Observer) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-obs.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, conn, msg)
			cancel()
			if err != nil {
				m.logger.Debug("stream write failed",
					zap.String("observer_id", obs.ID()),
					zap.Error(err),
				)
				return
			}
		}
	}
}
