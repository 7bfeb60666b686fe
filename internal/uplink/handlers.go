package uplink

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fleetbridge/fleetbridge/internal/server"
	"github.com/fleetbridge/fleetbridge/pkg/plugin"
	"github.com/fleetbridge/fleetbridge/pkg/roles"
	"go.uber.org/zap"
)

// Routes implements plugin.HTTPProvider. Mounted under /api/v1/uplink.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: http.MethodGet, Path: "/connections", Handler: m.handleListConnections},
		{Method: http.MethodPost, Path: "/connections/{device_id}", Handler: m.handleWarmConnection},
		{Method: http.MethodDelete, Path: "/connections/{device_id}", Handler: m.handleCloseConnection},
	}
}

// handleListConnections returns the state of every pooled connection.
//
//	@Summary		List device connections
//	@Description	Returns the connection pool state for every device with a live or connecting transport.
//	@Tags			uplink
//	@Produce		json
//	@Success		200	{array}	ConnInfo
//	@Security		BearerAuth
//	@Router			/uplink/connections [get]
func (m *Module) handleListConnections(w http.ResponseWriter, _ *http.Request) {
	uplinkWriteJSON(w, http.StatusOK, m.pool.States())
}

// handleWarmConnection dials the device if needed and reports reachability.
//
//	@Summary		Warm up a device connection
//	@Description	Ensures a live transport to the device exists, dialing if necessary. Returns 503 with Retry-After while the device is in reconnect backoff.
//	@Tags			uplink
//	@Param			device_id	path	string	true	"Device ID"
//	@Success		204
//	@Failure		404	{object}	models.APIProblem
//	@Failure		503	{object}	models.APIProblem
//	@Security		BearerAuth
//	@Router			/uplink/connections/{device_id} [post]
func (m *Module) handleWarmConnection(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("device_id")

	lease, err := m.pool.Acquire(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, roles.ErrDeviceNotFound) {
			server.NotFound(w, "device "+deviceID+" is not registered", r.URL.Path)
			return
		}
		var connErr *ConnectError
		if errors.As(err, &connErr) {
			server.Unavailable(w, connErr.Error(), r.URL.Path, connErr.RetryAfter)
			return
		}
		m.logger.Error("warm connection", zap.String("device_id", deviceID), zap.Error(err))
		server.Unavailable(w, err.Error(), r.URL.Path, 0)
		return
	}
	lease.Release()
	w.WriteHeader(http.StatusNoContent)
}

// handleCloseConnection force-closes the device's pooled connection.
//
//	@Summary		Close a device connection
//	@Description	Tears down the pooled transport for the device. Active sessions on it are cascaded closed. Idempotent.
//	@Tags			uplink
//	@Param			device_id	path	string	true	"Device ID"
//	@Success		204
//	@Security		BearerAuth
//	@Router			/uplink/connections/{device_id} [delete]
func (m *Module) handleCloseConnection(w http.ResponseWriter, r *http.Request) {
	m.pool.Close(r.PathValue("device_id"))
	w.WriteHeader(http.StatusNoContent)
}

func uplinkWriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
