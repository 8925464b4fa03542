package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Server is the PDP HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Config holds the dependencies and settings for creating a Server.
type Config struct {
	Handlers       *Handlers
	MetricsHandler http.Handler

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MaxRequestBodyBytes int64
	Logger              *slog.Logger
}

// New creates a new HTTP server with all routes configured.
func New(cfg Config) *Server {
	h := cfg.Handlers

	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/evaluate", h.HandleEvaluate)
	mux.HandleFunc("GET /v1/audit", h.HandleQueryAudit)
	mux.HandleFunc("GET /v1/compliance/report", h.HandleComplianceReport)
	mux.HandleFunc("POST /v1/executions", h.HandleRecordExecution)
	mux.HandleFunc("GET /v1/executions", h.HandleListExecutions)

	mux.HandleFunc("GET /v1/escalations", h.HandleListEscalations)
	mux.HandleFunc("GET /v1/escalations/{id}", h.HandleGetEscalation)
	mux.HandleFunc("POST /v1/escalations/{id}/approve", h.HandleApproveEscalation)
	mux.HandleFunc("POST /v1/escalations/{id}/reject", h.HandleRejectEscalation)

	mux.HandleFunc("POST /v1/validate", h.HandleValidate)
	mux.HandleFunc("POST /v1/policy/reload", h.HandlePolicyReload)

	mux.HandleFunc("GET /health", h.HandleHealth)
	if cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", cfg.MetricsHandler)
	}

	// Middleware chain (outermost executes first): correlation ID →
	// security headers → tracing → logging → body limit → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = bodyLimitMiddleware(cfg.MaxRequestBodyBytes, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = correlationIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
