package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Server provides HTTP endpoints for observability alongside the
// application handler.
type Server struct {
	httpServer *http.Server
	port       int
	checker    *HealthChecker
	app        http.Handler
}

// NewServer creates a new observability server. The app handler, if
// non-nil, receives every request not claimed by the health or metrics
// endpoints.
func NewServer(port int, checker *HealthChecker, app http.Handler) *Server {
	return &Server{
		port:    port,
		checker: checker,
		app:     app,
	}
}

// Start starts the server and blocks until it stops.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("/health", s.checker.HealthHandler())
	mux.HandleFunc("/health/live", LivenessHandler())
	mux.HandleFunc("/health/ready", s.checker.ReadinessHandler())

	// Metrics endpoint
	mux.Handle("/metrics", MetricsHandler())

	if s.app != nil {
		mux.Handle("/", s.app)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
