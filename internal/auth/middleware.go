package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// authClaimsKey is a context key for the validated token claims.
type authClaimsKey struct{}

// ClaimsFromContext returns the validated claims from the request context.
// Returns nil if the request is not authenticated.
func ClaimsFromContext(ctx context.Context) *Claims {
	if c, ok := ctx.Value(authClaimsKey{}).(*Claims); ok {
		return c
	}
	return nil
}

// Middleware validates JWT bearer tokens on API routes. Non-API paths
// (healthz, readyz, metrics, swagger) are skipped. Two API paths are also
// public: the relay stream attach validates its token inside the WebSocket
// handler so browser clients can pass it as a query parameter, and the
// heartbeat ingest is open because devices do not hold operator tokens.
func Middleware(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}

			if r.URL.Path == "/api/v1/relay/stream" {
				next.ServeHTTP(w, r)
				return
			}
			if strings.HasPrefix(r.URL.Path, "/api/v1/vitals/heartbeat/") {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				writeAuthError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")

			claims, err := tokens.Validate(tokenString)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "invalid or expired access token")
				return
			}

			ctx := context.WithValue(r.Context(), authClaimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeAuthError writes an RFC 7807 problem response.
func writeAuthError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://fleetbridge.dev/problems/unauthorized",
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}
