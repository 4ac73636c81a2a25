package auth

import (
	"context"
	"net/http"
	"strings"
)

// claimsKey keys the request-scoped claims in a context.
type claimsKey struct{}

// UserFromContext returns the claims the middleware attached, or nil for an
// unauthenticated request.
func UserFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey{}).(*Claims)
	return c
}

// openPaths is the login and first-boot surface: the exact API paths that
// must work before any token exists.
var openPaths = map[string]bool{
	"/api/v1/auth/login":        true,
	"/api/v1/auth/refresh":      true,
	"/api/v1/auth/logout":       true,
	"/api/v1/auth/setup":        true,
	"/api/v1/auth/setup/status": true,
}

// skipAuth reports whether a path is served without a Bearer token. That
// covers everything outside /api/ (dashboard, healthz, readyz, metrics,
// swagger), the WebSocket endpoints, which check a query-string token
// themselves, and the public auth paths above.
func skipAuth(path string) bool {
	if !strings.HasPrefix(path, "/api/") {
		return true
	}
	if strings.HasPrefix(path, "/api/v1/ws/") {
		return true
	}
	return openPaths[path]
}

// bearerToken pulls the access token out of the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return token, ok && token != ""
}

// AuthMiddleware guards the API: requests to protected paths must carry a
// valid access token, whose claims are then visible to handlers through
// UserFromContext.
func AuthMiddleware(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipAuth(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			raw, ok := bearerToken(r)
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "missing or malformed Authorization header")
				return
			}
			claims, err := tokens.ValidateAccessToken(raw)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "access token invalid or expired")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DemoAuthMiddleware stands in for AuthMiddleware on public demo instances.
// Every API request runs as a synthetic viewer, so read endpoints work
// without a login while admin-gated handlers still answer 403.
func DemoAuthMiddleware() func(http.Handler) http.Handler {
	demo := &Claims{UserID: "demo-user", Username: "demo", Role: string(RoleViewer)}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Same scope as AuthMiddleware: only API paths carry claims.
			if strings.HasPrefix(r.URL.Path, "/api/") {
				r = r.WithContext(context.WithValue(r.Context(), claimsKey{}, demo))
			}
			next.ServeHTTP(w, r)
		})
	}
}
