package rollout

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fleetbridge/fleetbridge/internal/server"
	"github.com/fleetbridge/fleetbridge/pkg/plugin"
	"github.com/fleetbridge/fleetbridge/pkg/roles"
)

type deployRequest struct {
	DeviceID    string `json:"device_id"`
	ArtifactRef string `json:"artifact_ref"`
}

type deployResponse struct {
	DeploymentID string `json:"deployment_id"`
}

// Routes implements plugin.HTTPProvider. Mounted under /api/v1/rollout.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: http.MethodPost, Path: "/deployments", Handler: m.handleDeploy},
		{Method: http.MethodGet, Path: "/deployments", Handler: m.handleListDeployments},
		{Method: http.MethodGet, Path: "/deployments/{id}", Handler: m.handleGetDeployment},
	}
}

func (m *Module) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, roles.ErrDeviceNotFound):
		server.NotFound(w, err.Error(), r.URL.Path)
	case errors.Is(err, errQueueFull):
		server.RateLimited(w, err.Error(), r.URL.Path)
	default:
		server.BadRequest(w, err.Error(), r.URL.Path)
	}
}

// handleDeploy queues a deployment of an artifact to a device.
//
//	@Summary		Start a deployment
//	@Description	Validates the device and artifact, then queues upload, install, and start on the device. Returns immediately; poll the deployment or watch rollout events for progress.
//	@Tags			rollout
//	@Accept			json
//	@Produce		json
//	@Param			request	body		deployRequest	true	"Deployment target"
//	@Success		202		{object}	deployResponse
//	@Failure		400		{object}	models.APIProblem
//	@Failure		404		{object}	models.APIProblem
//	@Failure		429		{object}	models.APIProblem	"Device deployment queue full"
//	@Security		BearerAuth
//	@Router			/rollout/deployments [post]
func (m *Module) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var req deployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid JSON body: "+err.Error(), r.URL.Path)
		return
	}
	if req.DeviceID == "" {
		server.BadRequest(w, "device_id is required", r.URL.Path)
		return
	}
	if req.ArtifactRef == "" {
		server.BadRequest(w, "artifact_ref is required", r.URL.Path)
		return
	}

	d, err := m.Deploy(r.Context(), req.DeviceID, req.ArtifactRef)
	if err != nil {
		m.writeError(w, r, err)
		return
	}
	rolloutWriteJSON(w, http.StatusAccepted, deployResponse{DeploymentID: d.ID})
}

// handleListDeployments lists deployment summaries, newest first.
//
//	@Summary		List deployments
//	@Tags			rollout
//	@Produce		json
//	@Param			device_id	query	string	false	"Filter by device"
//	@Success		200	{array}	Summary
//	@Security		BearerAuth
//	@Router			/rollout/deployments [get]
func (m *Module) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	summaries, err := m.List(r.Context(), r.URL.Query().Get("device_id"))
	if err != nil {
		server.InternalError(w, err.Error(), r.URL.Path)
		return
	}
	rolloutWriteJSON(w, http.StatusOK, summaries)
}

// handleGetDeployment returns one deployment with step results and logs.
//
//	@Summary		Get a deployment
//	@Tags			rollout
//	@Produce		json
//	@Param			id	path		string	true	"Deployment ID"
//	@Success		200	{object}	Deployment
//	@Failure		404	{object}	models.APIProblem
//	@Security		BearerAuth
//	@Router			/rollout/deployments/{id} [get]
func (m *Module) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	d, err := m.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrDeploymentNotFound) {
			server.NotFound(w, err.Error(), r.URL.Path)
			return
		}
		server.InternalError(w, err.Error(), r.URL.Path)
		return
	}
	rolloutWriteJSON(w, http.StatusOK, d)
}

func rolloutWriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
