package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler(t *testing.T, wantClaims bool) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if wantClaims && claims == nil {
			t.Error("expected claims in context")
		}
		if !wantClaims && claims != nil {
			t.Error("expected no claims in context")
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_ValidToken(t *testing.T) {
	ts := newTestTokenService()
	token, err := ts.Issue("ops", "Ops", "admin")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	handler := Middleware(ts)(okHandler(t, true))

	req := httptest.NewRequest("GET", "/api/v1/devices", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestMiddleware_MissingToken(t *testing.T) {
	ts := newTestTokenService()
	handler := Middleware(ts)(okHandler(t, false))

	req := httptest.NewRequest("GET", "/api/v1/devices", http.NoBody)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("content-type = %q, want application/problem+json", ct)
	}
}

func TestMiddleware_ExpiredToken(t *testing.T) {
	ts := newTestTokenService()
	token, err := ts.IssueWithTTL("ops", "", "", -1*time.Second)
	if err != nil {
		t.Fatalf("IssueWithTTL: %v", err)
	}

	handler := Middleware(ts)(okHandler(t, false))

	req := httptest.NewRequest("GET", "/api/v1/devices", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestMiddleware_SkipsNonAPIPaths(t *testing.T) {
	ts := newTestTokenService()
	handler := Middleware(ts)(okHandler(t, false))

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/swagger/index.html"} {
		req := httptest.NewRequest("GET", path, http.NoBody)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want %d", path, w.Code, http.StatusOK)
		}
	}
}

func TestMiddleware_SkipsRelayStream(t *testing.T) {
	ts := newTestTokenService()
	handler := Middleware(ts)(okHandler(t, false))

	req := httptest.NewRequest("GET", "/api/v1/relay/stream?token=whatever", http.NoBody)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	// The stream handler owns token validation for this path.
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestMiddleware_SkipsHeartbeatIngest(t *testing.T) {
	ts := newTestTokenService()
	handler := Middleware(ts)(okHandler(t, false))

	req := httptest.NewRequest("POST", "/api/v1/vitals/heartbeat/edge-01", http.NoBody)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	// Devices report without operator tokens.
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestMiddleware_MalformedAuthorizationHeader(t *testing.T) {
	ts := newTestTokenService()
	handler := Middleware(ts)(okHandler(t, false))

	for _, header := range []string{"Basic dXNlcjpwYXNz", "Bearer", "bearer lowercase"} {
		req := httptest.NewRequest("GET", "/api/v1/devices", http.NoBody)
		req.Header.Set("Authorization", header)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("header %q: status = %d, want %d", header, w.Code, http.StatusUnauthorized)
		}
	}
}
