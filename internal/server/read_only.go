package server

import "net/http"

// ReadOnlyMiddleware rejects mutating requests when the server runs in
// read-only mode. Only GET, HEAD, and OPTIONS pass through, so status and
// history endpoints stay usable while sessions, deployments, and device
// changes are refused.
func ReadOnlyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
		default:
			WriteProblem(w, Problem{
				Type:     ProblemTypeForbidden,
				Title:    "Read-Only Mode",
				Status:   http.StatusMethodNotAllowed,
				Detail:   "the server is running in read-only mode",
				Instance: r.URL.Path,
			})
		}
	})
}
