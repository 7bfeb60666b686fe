package auth

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Handler wires the token service into the HTTP server: it provides the
// bearer-token middleware and a small introspection endpoint.
type Handler struct {
	tokens *TokenService
	logger *zap.Logger
}

// NewHandler creates an auth Handler.
func NewHandler(tokens *TokenService, logger *zap.Logger) *Handler {
	return &Handler{tokens: tokens, logger: logger}
}

// RegisterRoutes registers auth-related routes on the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/auth/whoami", h.handleWhoami)
}

// Middleware returns the JWT authentication middleware.
func (h *Handler) Middleware() func(http.Handler) http.Handler {
	return Middleware(h.tokens)
}

// handleWhoami reports the identity behind the presented token.
//
//	@Summary		Who am I
//	@Description	Return the subject, name, role, and expiry of the presented access token.
//	@Tags			auth
//	@Produce		json
//	@Success		200	{object}	WhoamiResponse
//	@Failure		401	{object}	models.APIProblem
//	@Router			/auth/whoami [get]
func (h *Handler) handleWhoami(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeAuthError(w, http.StatusUnauthorized, "no valid token presented")
		return
	}

	resp := WhoamiResponse{
		Subject: claims.Subject,
		Name:    claims.Name,
		Role:    claims.Role,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time.UTC().Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// WhoamiResponse describes the identity behind an access token.
type WhoamiResponse struct {
	Subject   string `json:"subject" example:"ops"`
	Name      string `json:"name,omitempty" example:"Ops Laptop"`
	Role      string `json:"role,omitempty" example:"admin"`
	ExpiresAt string `json:"expires_at,omitempty" example:"2025-06-01T12:00:00Z"`
}
