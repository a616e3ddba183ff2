// Package api is the thin HTTP layer over the aggregation core. It is
// only responsible for input ingestion, the global rate gate and output
// serialization; it never performs pricing logic itself.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"rxcost/internal/app"
	"rxcost/internal/logging"
)

// Server is the API server.
type Server struct {
	app     *app.App
	version string
	wrap    func(http.Handler) http.Handler
	server  *http.Server
}

// NewServer creates an API server over an assembled app.
func NewServer(a *app.App, version string) *Server {
	return &Server{app: a, version: version}
}

// SetGate mounts a front-door middleware outside every route, including
// the static UI. The API itself stays unaware of what the gate checks.
func (s *Server) SetGate(wrap func(http.Handler) http.Handler) {
	s.wrap = wrap
}

// Router builds the HTTP handler with all routes and middleware.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/prices", s.handlePrices)
	mux.HandleFunc("GET /api/providers", s.handleProviders)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /version", s.handleVersion)

	if uiDir := s.app.Config.Server.UIDir; uiDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(uiDir)))
	}

	var handler http.Handler = mux
	if max := s.app.Config.Server.MaxBodyBytes; max > 0 {
		handler = http.MaxBytesHandler(handler, max)
	}
	handler = s.corsMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	handler = s.recoveryMiddleware(handler)
	if s.wrap != nil {
		handler = s.wrap(handler)
	}
	return handler
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	cfg := s.app.Config.Server
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": s.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// handleVersion handles GET /version
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"version":     s.version,
		"service":     "rxcost",
		"api_version": "v1",
	})
}

// Middleware

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.app.Config.Server.EnableCORS {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code a handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		logging.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logging.Error("handler panic",
					zap.Any("panic", err),
					zap.String("path", r.URL.Path))
				s.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, ErrorResponse{
		OK:    false,
		Error: ErrorBody{Code: code, Message: message},
	})
}
