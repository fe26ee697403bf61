package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-rachio/internal/bridges/rachio"
)

// defaultWSPath is used when websocket.path is not configured.
const defaultWSPath = "/ws"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Webhook intake (IP filter only, the cloud cannot present a token)
	r.With(s.ipFilterMiddleware).Post(s.webhookPath, s.handleWebhook)

	// Health and metrics (no auth required for basic monitoring)
	r.Get("/api/v1/health", s.handleHealth)
	r.Get("/api/v1/metrics", s.handleMetrics)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/api/v1/devices", s.handleListDevices)
		r.Get("/api/v1/devices/{id}", s.handleGetDevice)
		r.Post("/api/v1/devices/{id}/commands", s.handleCommand)

		r.Get("/api/v1/zones/{id}", s.handleGetZone)
		r.Get("/api/v1/zones/{id}/history", s.handleZoneHistory)
		r.Post("/api/v1/zones/{id}/commands", s.handleCommand)

		r.Get(s.wsPath(), s.handleWebSocket)
	})

	return r
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return defaultWSPath
	}
	return s.wsCfg.Path
}

// handleHealth returns the bridge health. Unhealthy maps to 503 so load
// balancers and container probes can act on it.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	health := s.bridge.Health()
	if health.Version == "" {
		health.Version = s.version
	}

	status := http.StatusOK
	if health.Status == rachio.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}
