package roster

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fleetbridge/fleetbridge/internal/server"
	"github.com/fleetbridge/fleetbridge/pkg/models"
	"go.uber.org/zap"
)

// registerDeviceRequest is the body for PUT /devices/{id}. The credential
// is accepted on write but never echoed back.
type registerDeviceRequest struct {
	Name         string                `json:"name" example:"Lab gateway 07"`
	Category     models.DeviceCategory `json:"category" example:"edge_computer"`
	Host         string                `json:"host,omitempty" example:"10.40.2.17"`
	Port         int                   `json:"port,omitempty" example:"22"`
	User         string                `json:"user,omitempty" example:"fleet"`
	Capabilities []string              `json:"capabilities,omitempty"`
	Notes        string                `json:"notes,omitempty"`
	Credential   *credentialRequest    `json:"credential,omitempty"`
}

type credentialRequest struct {
	Kind   models.CredentialKind `json:"kind" example:"password"`
	Secret string                `json:"secret"`
}

// handleListDevices returns all registered devices.
//
//	@Summary		List devices
//	@Description	Returns every registered device, credentials redacted.
//	@Tags			roster
//	@Produce		json
//	@Success		200	{array}	models.Device
//	@Failure		500	{object}	models.APIProblem
//	@Security		BearerAuth
//	@Router			/roster/devices [get]
func (m *Module) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := m.store.ListDevices(r.Context())
	if err != nil {
		m.logger.Error("list devices failed", zap.Error(err))
		server.InternalError(w, "failed to list devices", r.URL.Path)
		return
	}
	if devices == nil {
		devices = []models.Device{}
	}
	rosterWriteJSON(w, http.StatusOK, devices)
}

// handleGetDevice returns a single device by id.
//
//	@Summary		Get device
//	@Tags			roster
//	@Produce		json
//	@Param			id	path	string	true	"Device ID"
//	@Success		200	{object}	models.Device
//	@Failure		404	{object}	models.APIProblem
//	@Security		BearerAuth
//	@Router			/roster/devices/{id} [get]
func (m *Module) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	device, err := m.DeviceByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			server.NotFound(w, "device not found: "+id, r.URL.Path)
			return
		}
		m.logger.Error("get device failed", zap.Error(err))
		server.InternalError(w, "failed to load device", r.URL.Path)
		return
	}
	rosterWriteJSON(w, http.StatusOK, device)
}

// handleRegisterDevice creates or replaces a device registration.
//
//	@Summary		Register device
//	@Description	Upserts a device. An included credential is sealed and stored; it is never returned by any endpoint.
//	@Tags			roster
//	@Accept			json
//	@Produce		json
//	@Param			id		path	string					true	"Device ID"
//	@Param			device	body	registerDeviceRequest	true	"Device registration"
//	@Success		200	{object}	models.Device
//	@Failure		400	{object}	models.APIProblem
//	@Failure		503	{object}	models.APIProblem
//	@Security		BearerAuth
//	@Router			/roster/devices/{id} [put]
func (m *Module) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid request body: "+err.Error(), r.URL.Path)
		return
	}
	if !req.Category.Valid() {
		server.BadRequest(w, "category must be edge_computer or iot_sensor", r.URL.Path)
		return
	}
	if req.Credential != nil && m.sealer.Sealed() {
		server.Unavailable(w, "credential store is sealed, set roster passphrase", r.URL.Path, 0)
		return
	}

	device := &models.Device{
		ID:           id,
		Name:         req.Name,
		Category:     req.Category,
		Host:         req.Host,
		Port:         req.Port,
		User:         req.User,
		Capabilities: req.Capabilities,
		Notes:        req.Notes,
	}
	var cred *models.Credential
	if req.Credential != nil {
		cred = &models.Credential{Kind: req.Credential.Kind, Secret: req.Credential.Secret}
	}

	if err := m.Register(r.Context(), device, cred); err != nil {
		m.logger.Error("register device failed", zap.Error(err))
		server.InternalError(w, "failed to register device", r.URL.Path)
		return
	}
	rosterWriteJSON(w, http.StatusOK, device)
}

// handleRemoveDevice deletes a device and its sealed credential.
//
//	@Summary		Remove device
//	@Tags			roster
//	@Produce		json
//	@Param			id	path	string	true	"Device ID"
//	@Success		204	"device removed"
//	@Failure		404	{object}	models.APIProblem
//	@Security		BearerAuth
//	@Router			/roster/devices/{id} [delete]
func (m *Module) handleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := m.Remove(r.Context(), id); err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			server.NotFound(w, "device not found: "+id, r.URL.Path)
			return
		}
		m.logger.Error("remove device failed", zap.Error(err))
		server.InternalError(w, "failed to remove device", r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// rosterWriteJSON writes a JSON response with the given status code.
func rosterWriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
