// Package dashboard serves the embedded live-monitoring page: a single-page
// app that logs in, lists streams, and renders classified readings as they
// arrive over the WebSocket feed.
package dashboard

import (
	"io/fs"
	"net/http"
	"strings"
)

// Paths the dashboard must never answer, so their real handlers keep
// ownership even though the dashboard is mounted at the mux root.
var reservedPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// Handler serves the embedded single-page dashboard. Static assets are
// served as-is; any other non-API path gets index.html so deep links land
// in the app's client-side router.
func Handler() http.Handler {
	assets, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic("dashboard: embedded assets missing: " + err.Error())
	}
	files := http.FileServer(http.FS(assets))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reserved(r.URL.Path) {
			http.NotFound(w, r)
			return
		}
		if !exists(assets, r.URL.Path) {
			// Client-side route: hand the app shell to the browser.
			r.URL.Path = "/"
		}
		files.ServeHTTP(w, r)
	})
}

func reserved(path string) bool {
	return strings.HasPrefix(path, "/api/") || reservedPaths[path]
}

// exists reports whether the request path names a real embedded file.
func exists(assets fs.FS, path string) bool {
	if path == "/" {
		path = "/index.html"
	}
	f, err := assets.Open(strings.TrimPrefix(path, "/"))
	if err != nil {
		return false
	}
	f.Close()
	return true
}
