package console

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fleetbridge/fleetbridge/internal/server"
	"github.com/fleetbridge/fleetbridge/internal/uplink"
	"github.com/fleetbridge/fleetbridge/pkg/plugin"
	"github.com/fleetbridge/fleetbridge/pkg/roles"
)

type openSessionRequest struct {
	DeviceID string `json:"device_id"`
	Kind     Kind   `json:"kind"`
	Cols     int    `json:"cols"`
	Rows     int    `json:"rows"`
}

type openSessionResponse struct {
	SessionID string `json:"session_id"`
	Cwd       string `json:"cwd,omitempty"`
}

type inputRequest struct {
	Data string `json:"data"` // base64
}

type resizeRequest struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

type execRequest struct {
	Command string `json:"command"`
}

type writeFileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"` // base64
}

type pathRequest struct {
	Path string `json:"path"`
}

type fileResponse struct {
	Path    string `json:"path"`
	Size    int    `json:"size"`
	Content []byte `json:"content"` // base64 on the wire
}

type cwdResponse struct {
	Cwd string `json:"cwd"`
}

// Routes implements plugin.HTTPProvider. Mounted under /api/v1/console.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: http.MethodPost, Path: "/sessions", Handler: m.handleOpenSession},
		{Method: http.MethodGet, Path: "/sessions", Handler: m.handleListSessions},
		{Method: http.MethodGet, Path: "/sessions/{id}", Handler: m.handleGetSession},
		{Method: http.MethodDelete, Path: "/sessions/{id}", Handler: m.handleCloseSession},
		{Method: http.MethodPost, Path: "/sessions/{id}/input", Handler: m.handleInput},
		{Method: http.MethodPost, Path: "/sessions/{id}/resize", Handler: m.handleResize},
		{Method: http.MethodPost, Path: "/sessions/{id}/exec", Handler: m.handleExec},
		{Method: http.MethodGet, Path: "/sessions/{id}/files", Handler: m.handleListDir},
		{Method: http.MethodGet, Path: "/sessions/{id}/file", Handler: m.handleReadFile},
		{Method: http.MethodPut, Path: "/sessions/{id}/file", Handler: m.handleWriteFile},
		{Method: http.MethodDelete, Path: "/sessions/{id}/file", Handler: m.handleRemoveFile},
		{Method: http.MethodPost, Path: "/sessions/{id}/mkdir", Handler: m.handleMkdir},
		{Method: http.MethodPost, Path: "/sessions/{id}/cd", Handler: m.handleChangeDir},
	}
}

// writeError maps registry errors onto problem responses.
func (m *Module) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var limitErr *LimitError
	var connErr *uplink.ConnectError
	switch {
	case errors.Is(err, roles.ErrDeviceNotFound):
		server.NotFound(w, err.Error(), r.URL.Path)
	case errors.As(err, &limitErr):
		server.Conflict(w, limitErr.Error(), r.URL.Path)
	case errors.Is(err, ErrSessionClosed):
		server.Gone(w, err.Error(), r.URL.Path)
	case errors.As(err, &connErr):
		server.Unavailable(w, connErr.Error(), r.URL.Path, connErr.RetryAfter)
	case errors.Is(err, uplink.ErrDeviceDisconnected):
		server.Unavailable(w, err.Error(), r.URL.Path, 0)
	default:
		server.BadRequest(w, err.Error(), r.URL.Path)
	}
}

// handleOpenSession opens a terminal or fileop session.
//
//	@Summary		Open a session
//	@Description	Opens a terminal or file-manager session on a device over its pooled connection.
//	@Tags			console
//	@Accept			json
//	@Produce		json
//	@Param			request	body		openSessionRequest	true	"Session parameters"
//	@Success		201		{object}	openSessionResponse
//	@Failure		400		{object}	models.APIProblem
//	@Failure		404		{object}	models.APIProblem
//	@Failure		409		{object}	models.APIProblem	"Device session limit reached"
//	@Failure		503		{object}	models.APIProblem	"Device in reconnect backoff"
//	@Security		BearerAuth
//	@Router			/console/sessions [post]
func (m *Module) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid JSON body: "+err.Error(), r.URL.Path)
		return
	}
	if req.DeviceID == "" {
		server.BadRequest(w, "device_id is required", r.URL.Path)
		return
	}

	session, err := m.registry.Open(r.Context(), req.DeviceID, req.Kind, req.Cols, req.Rows)
	if err != nil {
		m.writeError(w, r, err)
		return
	}
	consoleWriteJSON(w, http.StatusCreated, openSessionResponse{SessionID: session.ID, Cwd: session.Cwd})
}

// handleListSessions lists live sessions, optionally for one device.
//
//	@Summary		List sessions
//	@Tags			console
//	@Produce		json
//	@Param			device_id	query	string	false	"Filter by device"
//	@Success		200	{array}	Session
//	@Security		BearerAuth
//	@Router			/console/sessions [get]
func (m *Module) handleListSessions(w http.ResponseWriter, r *http.Request) {
	consoleWriteJSON(w, http.StatusOK, m.registry.List(r.URL.Query().Get("device_id")))
}

// handleGetSession returns one live session.
//
//	@Summary		Get a session
//	@Tags			console
//	@Produce		json
//	@Param			id	path		string	true	"Session ID"
//	@Success		200	{object}	Session
//	@Failure		404	{object}	models.APIProblem
//	@Security		BearerAuth
//	@Router			/console/sessions/{id} [get]
func (m *Module) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := m.registry.Get(r.PathValue("id"))
	if !ok {
		server.NotFound(w, "no live session "+r.PathValue("id"), r.URL.Path)
		return
	}
	consoleWriteJSON(w, http.StatusOK, session)
}

// handleCloseSession ends a session. Closing twice is fine.
//
//	@Summary		Close a session
//	@Tags			console
//	@Param			id	path	string	true	"Session ID"
//	@Success		204
//	@Security		BearerAuth
//	@Router			/console/sessions/{id} [delete]
func (m *Module) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	_ = m.registry.Close(r.Context(), r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// handleInput feeds keystrokes to a terminal session.
//
//	@Summary		Send terminal input
//	@Tags			console
//	@Accept			json
//	@Param			id		path	string			true	"Session ID"
//	@Param			request	body	inputRequest	true	"Base64 encoded input"
//	@Success		204
//	@Failure		400	{object}	models.APIProblem
//	@Failure		410	{object}	models.APIProblem	"Session closed"
//	@Security		BearerAuth
//	@Router			/console/sessions/{id}/input [post]
func (m *Module) handleInput(w http.ResponseWriter, r *http.Request) {
	var req inputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid JSON body: "+err.Error(), r.URL.Path)
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		server.BadRequest(w, "data must be base64: "+err.Error(), r.URL.Path)
		return
	}

	if err := m.registry.Write(r.Context(), r.PathValue("id"), data); err != nil {
		m.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleResize changes the PTY window size.
//
//	@Summary		Resize a terminal
//	@Tags			console
//	@Accept			json
//	@Param			id		path	string			true	"Session ID"
//	@Param			request	body	resizeRequest	true	"New dimensions"
//	@Success		204
//	@Failure		410	{object}	models.APIProblem
//	@Security		BearerAuth
//	@Router			/console/sessions/{id}/resize [post]
func (m *Module) handleResize(w http.ResponseWriter, r *http.Request) {
	var req resizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid JSON body: "+err.Error(), r.URL.Path)
		return
	}
	if req.Cols <= 0 || req.Rows <= 0 {
		server.BadRequest(w, "cols and rows must be positive", r.URL.Path)
		return
	}

	if err := m.registry.Resize(r.Context(), r.PathValue("id"), req.Cols, req.Rows); err != nil {
		m.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExec runs a one-shot command in the session's working directory.
//
//	@Summary		Run a command
//	@Description	Runs a command in the session's current directory, capturing stdout, stderr, and the exit code.
//	@Tags			console
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"Session ID"
//	@Param			request	body		execRequest	true	"Command line"
//	@Success		200		{object}	uplink.ExecResult
//	@Failure		410		{object}	models.APIProblem
//	@Security		BearerAuth
//	@Router			/console/sessions/{id}/exec [post]
func (m *Module) handleExec(w http.ResponseWriter, r *http.Request) {
	var req execRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid JSON body: "+err.Error(), r.URL.Path)
		return
	}

	result, err := m.registry.Exec(r.Context(), r.PathValue("id"), req.Command)
	if err != nil {
		m.writeError(w, r, err)
		return
	}
	consoleWriteJSON(w, http.StatusOK, result)
}

// handleListDir lists a remote directory.
//
//	@Summary		List a remote directory
//	@Tags			console
//	@Produce		json
//	@Param			id		path	string	true	"Session ID"
//	@Param			path	query	string	false	"Directory, relative to the session cwd"
//	@Success		200	{array}		DirEntry
//	@Failure		410	{object}	models.APIProblem
//	@Security		BearerAuth
//	@Router			/console/sessions/{id}/files [get]
func (m *Module) handleListDir(w http.ResponseWriter, r *http.Request) {
	entries, err := m.registry.ListDir(r.Context(), r.PathValue("id"), r.URL.Query().Get("path"))
	if err != nil {
		m.writeError(w, r, err)
		return
	}
	consoleWriteJSON(w, http.StatusOK, entries)
}

// handleReadFile fetches a remote file.
//
//	@Summary		Read a remote file
//	@Tags			console
//	@Produce		json
//	@Param			id		path	string	true	"Session ID"
//	@Param			path	query	string	true	"File path, relative to the session cwd"
//	@Success		200	{object}	fileResponse
//	@Failure		410	{object}	models.APIProblem
//	@Security		BearerAuth
//	@Router			/console/sessions/{id}/file [get]
func (m *Module) handleReadFile(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if p == "" {
		server.BadRequest(w, "path query parameter is required", r.URL.Path)
		return
	}

	content, err := m.registry.ReadFile(r.Context(), r.PathValue("id"), p)
	if err != nil {
		m.writeError(w, r, err)
		return
	}
	consoleWriteJSON(w, http.StatusOK, fileResponse{Path: p, Size: len(content), Content: content})
}

// handleWriteFile creates or replaces a remote file.
//
//	@Summary		Write a remote file
//	@Tags			console
//	@Accept			json
//	@Param			id		path	string				true	"Session ID"
//	@Param			request	body	writeFileRequest	true	"Path and base64 content"
//	@Success		204
//	@Failure		410	{object}	models.APIProblem
//	@Security		BearerAuth
//	@Router			/console/sessions/{id}/file [put]
func (m *Module) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	var req writeFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid JSON body: "+err.Error(), r.URL.Path)
		return
	}
	if req.Path == "" {
		server.BadRequest(w, "path is required", r.URL.Path)
		return
	}
	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		server.BadRequest(w, "content must be base64: "+err.Error(), r.URL.Path)
		return
	}

	if err := m.registry.WriteFile(r.Context(), r.PathValue("id"), req.Path, content); err != nil {
		m.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRemoveFile deletes a remote file or empty directory.
//
//	@Summary		Remove a remote file
//	@Tags			console
//	@Param			id		path	string	true	"Session ID"
//	@Param			path	query	string	true	"Path, relative to the session cwd"
//	@Success		204
//	@Failure		410	{object}	models.APIProblem
//	@Security		BearerAuth
//	@Router			/console/sessions/{id}/file [delete]
func (m *Module) handleRemoveFile(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if p == "" {
		server.BadRequest(w, "path query parameter is required", r.URL.Path)
		return
	}

	if err := m.registry.Remove(r.Context(), r.PathValue("id"), p); err != nil {
		m.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMkdir creates a remote directory.
//
//	@Summary		Create a remote directory
//	@Tags			console
//	@Accept			json
//	@Param			id		path	string		true	"Session ID"
//	@Param			request	body	pathRequest	true	"Directory path"
//	@Success		204
//	@Failure		410	{object}	models.APIProblem
//	@Security		BearerAuth
//	@Router			/console/sessions/{id}/mkdir [post]
func (m *Module) handleMkdir(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid JSON body: "+err.Error(), r.URL.Path)
		return
	}

	if err := m.registry.Mkdir(r.Context(), r.PathValue("id"), req.Path); err != nil {
		m.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleChangeDir moves the session's working directory.
//
//	@Summary		Change the session directory
//	@Tags			console
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"Session ID"
//	@Param			request	body		pathRequest	true	"Target directory"
//	@Success		200		{object}	cwdResponse
//	@Failure		400		{object}	models.APIProblem	"Not a directory"
//	@Failure		410		{object}	models.APIProblem
//	@Security		BearerAuth
//	@Router			/console/sessions/{id}/cd [post]
func (m *Module) handleChangeDir(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid JSON body: "+err.Error(), r.URL.Path)
		return
	}

	cwd, err := m.registry.ChangeDir(r.Context(), r.PathValue("id"), req.Path)
	if err != nil {
		m.writeError(w, r, err)
		return
	}
	consoleWriteJSON(w, http.StatusOK, cwdResponse{Cwd: cwd})
}

func consoleWriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
