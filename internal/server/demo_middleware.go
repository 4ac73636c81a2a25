package server

import "net/http"

// DemoMiddleware rejects every mutating request so a public demo instance
// stays read-only. Blocked methods get a 405 with a JSON error body.
func DemoMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
		default:
			w.Header().Set("Allow", "GET, HEAD, OPTIONS")
			respondJSON(w, http.StatusMethodNotAllowed, map[string]any{
				"error": "demo mode is read-only",
				"code":  http.StatusMethodNotAllowed,
			})
		}
	})
}
