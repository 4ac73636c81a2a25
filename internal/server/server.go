// Package server provides the main HTTP server for driftwatch.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/driftwatch/driftwatch/internal/version"
	"github.com/driftwatch/driftwatch/pkg/plugin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Conservative timeouts for a small operator-facing API.
const (
	readTimeout  = 15 * time.Second
	writeTimeout = 15 * time.Second
	idleTimeout  = 60 * time.Second
)

// PluginSource is what the server needs to know about registered plugins.
// It is declared here, on the consumer side, so the server does not import
// the concrete registry.
type PluginSource interface {
	AllRoutes() map[string][]plugin.Route
	All() []plugin.Plugin
}

// ReadinessChecker reports whether the server can take traffic; a nil error
// means ready.
type ReadinessChecker func(ctx context.Context) error

// RouteRegistrar hooks an external package's routes and middleware into the
// server without an import cycle.
type RouteRegistrar interface {
	RegisterRoutes(mux *http.ServeMux)
	Middleware() func(http.Handler) http.Handler
}

// SimpleRouteRegistrar registers routes only, no middleware.
type SimpleRouteRegistrar interface {
	RegisterRoutes(mux *http.ServeMux)
}

// Server is the driftwatch HTTP front end: operational endpoints, the
// versioned API, plugin routes, and the embedded dashboard.
type Server struct {
	srv     *http.Server
	plugins PluginSource
	logger  *zap.Logger
	mux     *http.ServeMux
	ready   ReadinessChecker
}

// New assembles the full server. auth and dashboard may be nil to run open
// or headless; devMode additionally serves the Swagger UI at /swagger/.
// extraRoutes lets callers mount API routes outside the plugin mechanism.
func New(addr string, plugins PluginSource, logger *zap.Logger, ready ReadinessChecker, auth RouteRegistrar, dashboard http.Handler, devMode bool, extraRoutes ...SimpleRouteRegistrar) *Server {
	s := &Server{plugins: plugins, logger: logger, mux: http.NewServeMux(), ready: ready}

	s.mountSystemRoutes()
	if auth != nil {
		auth.RegisterRoutes(s.mux)
	}
	for _, extra := range extraRoutes {
		extra.RegisterRoutes(s.mux)
	}
	s.mountPluginAPI()

	if devMode {
		s.mux.Handle("GET /swagger/", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
		logger.Info("swagger UI enabled", zap.String("path", "/swagger/"))
	}

	// The dashboard is the catch-all, so it must go in last.
	if dashboard != nil {
		s.mux.Handle("/", dashboard)
	}

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      Chain(s.mux, s.middleware(auth)...),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	return s
}

// middleware builds the chain, outermost first. Probe and scrape paths are
// kept out of both the request log and the rate limiter.
func (s *Server) middleware(auth RouteRegistrar) []Middleware {
	quiet := []string{"/healthz", "/readyz", "/metrics"}

	mw := []Middleware{
		RecoveryMiddleware(s.logger),
		RequestIDMiddleware,
		LoggingMiddleware(s.logger, quiet),
		SecurityHeadersMiddleware,
		VersionHeaderMiddleware,
		RateLimitMiddleware(100, 200, quiet),
	}
	if auth != nil {
		mw = append(mw, auth.Middleware())
	}
	return mw
}

func (s *Server) mountSystemRoutes() {
	// Probes and the metrics scrape sit outside the versioned API.
	s.mux.HandleFunc("GET /healthz", s.handleLiveness)
	s.mux.HandleFunc("GET /readyz", s.handleReadiness)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	// Versioned system surface.
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealthInfo)
	s.mux.HandleFunc("GET /api/v1/plugins", s.handleListPlugins)
}

// mountPluginAPI places every plugin route under /api/v1/{plugin}/.
func (s *Server) mountPluginAPI() {
	for name, routes := range s.plugins.AllRoutes() {
		for _, rt := range routes {
			pattern := fmt.Sprintf("%s /api/v1/%s%s", rt.Method, name, rt.Path)
			s.mux.HandleFunc(pattern, rt.Handler)
			s.logger.Debug("mounted route", zap.String("plugin", name), zap.String("pattern", pattern))
		}
	}
}

// Start serves until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.srv.Addr))
	err := s.srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server draining")
	return s.srv.Shutdown(ctx)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleLiveness answers 200 whenever the process is up.
func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleReadiness consults the injected checker and answers 503 while it
// fails.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.ready == nil {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	if err := s.ready(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status  string            `json:"status" example:"ok"`
	Service string            `json:"service" example:"driftwatch"`
	Version map[string]string `json:"version"`
}

// PluginResponse describes a registered plugin.
type PluginResponse struct {
	Name        string `json:"name" example:"detect"`
	Version     string `json:"version" example:"0.1.0"`
	Description string `json:"description" example:"Streaming anomaly detection over metric streams"`
}

// handleHealthInfo reports service health on the versioned API.
//
//	@Summary		Service health
//	@Description	Reports service status along with build version details.
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/health [get]
func (s *Server) handleHealthInfo(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: "driftwatch",
		Version: version.Map(),
	})
}

// handleListPlugins lists the registered plugins.
//
//	@Summary		Plugin inventory
//	@Description	Returns every registered plugin with its name, version, and description.
//	@Tags			system
//	@Produce		json
//	@Success		200	{array}	PluginResponse
//	@Router			/plugins [get]
func (s *Server) handleListPlugins(w http.ResponseWriter, _ *http.Request) {
	active := s.plugins.All()
	out := make([]PluginResponse, 0, len(active))
	for _, p := range active {
		info := p.Info()
		out = append(out, PluginResponse{Name: info.Name, Version: info.Version, Description: info.Description})
	}
	respondJSON(w, http.StatusOK, out)
}
