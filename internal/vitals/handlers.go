package vitals

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fleetbridge/fleetbridge/internal/server"
	"github.com/fleetbridge/fleetbridge/pkg/plugin"
	"github.com/fleetbridge/fleetbridge/pkg/roles"
	"go.uber.org/zap"
)

// Routes implements plugin.HTTPProvider. The heartbeat ingest endpoint is
// exempted from bearer auth by the server middleware; devices do not hold
// operator tokens.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "POST", Path: "/heartbeat/{device_id}", Handler: m.handleHeartbeat},
		{Method: "GET", Path: "/status", Handler: m.handleStatusAll},
		{Method: "GET", Path: "/status/{device_id}", Handler: m.handleStatus},
	}
}

// handleHeartbeat ingests a device heartbeat.
//
//	@Summary		Record heartbeat
//	@Description	Registers a liveness heartbeat for a device. The optional JSON body carries metrics; malformed fields are dropped, the heartbeat still counts.
//	@Tags			vitals
//	@Accept			json
//	@Param			device_id	path	string			true	"Device ID"
//	@Param			metrics		body	map[string]any	false	"Metrics payload"
//	@Success		204	"heartbeat recorded"
//	@Failure		404	{object}	models.APIProblem
//	@Router			/vitals/heartbeat/{device_id} [post]
func (m *Module) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("device_id")

	// A body that fails to decode still refreshes liveness.
	var payload map[string]any
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			payload = nil
		}
	}

	if err := m.Record(r.Context(), deviceID, payload); err != nil {
		if errors.Is(err, roles.ErrDeviceNotFound) {
			server.NotFound(w, "device not registered: "+deviceID, r.URL.Path)
			return
		}
		m.logger.Error("record heartbeat failed", zap.Error(err))
		server.InternalError(w, "failed to record heartbeat", r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStatusAll returns liveness for every tracked device.
//
//	@Summary		List device status
//	@Tags			vitals
//	@Produce		json
//	@Success		200	{array}	Health
//	@Security		BearerAuth
//	@Router			/vitals/status [get]
func (m *Module) handleStatusAll(w http.ResponseWriter, _ *http.Request) {
	vitalsWriteJSON(w, http.StatusOK, m.SnapshotAll())
}

// handleStatus returns liveness for one device.
//
//	@Summary		Get device status
//	@Tags			vitals
//	@Produce		json
//	@Param			device_id	path	string	true	"Device ID"
//	@Success		200	{object}	Health
//	@Failure		404	{object}	models.APIProblem
//	@Security		BearerAuth
//	@Router			/vitals/status/{device_id} [get]
func (m *Module) handleStatus(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("device_id")
	h, err := m.Snapshot(deviceID)
	if err != nil {
		server.NotFound(w, "device not tracked: "+deviceID, r.URL.Path)
		return
	}
	vitalsWriteJSON(w, http.StatusOK, h)
}

// vitalsWriteJSON writes a JSON response with the given status code.
func vitalsWriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
