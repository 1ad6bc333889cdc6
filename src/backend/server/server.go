package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/hannes/doc-cleanser/src/backend/config"
	"github.com/hannes/doc-cleanser/src/backend/logging"
	"github.com/hannes/doc-cleanser/src/backend/pii"
	"github.com/hannes/doc-cleanser/src/backend/telemetry"
)

// Anonymizer is the part of pii.Anonymizer the server needs
type Anonymizer interface {
	AnonymizeWithStats(ctx context.Context, raw string) (pii.Result, error)
}

// DetectorManager is the part of pii.DetectorManager the server needs
type DetectorManager interface {
	Info() pii.DetectorInfo
	Reload(name string, options map[string]interface{}) error
}

// Server represents the HTTP API server
type Server struct {
	config     config.ServerConfig
	anonymizer Anonymizer
	manager    DetectorManager
	reporter   telemetry.Reporter
	logger     *logging.Logger
	router     *mux.Router
	server     *http.Server

	detectorMu sync.RWMutex
	detector   config.DetectorConfig
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, anonymizer Anonymizer, manager DetectorManager, reporter telemetry.Reporter, logger *logging.Logger) *Server {
	if reporter == nil {
		reporter = telemetry.NopReporter{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	s := &Server{
		config:     cfg.Server,
		anonymizer: anonymizer,
		manager:    manager,
		reporter:   reporter,
		logger:     logger.WithComponent("server"),
		router:     mux.NewRouter(),
		detector:   cfg.Detector,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.recoverMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/anonymize", s.handleAnonymize).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/detector/reload", s.handleReload).Methods(http.MethodPost, http.MethodOptions)
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetDetectorConfig replaces the detector settings used by the reload endpoint
func (s *Server) SetDetectorConfig(cfg config.DetectorConfig) {
	s.detectorMu.Lock()
	defer s.detectorMu.Unlock()
	s.detector = cfg
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting document cleanser API", zap.String("addr", s.server.Addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	s.logger.Info("Stopping document cleanser API")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

type anonymizeRequest struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := s.manager.Info()
	status := http.StatusOK
	if !info.Healthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, map[string]interface{}{
		"status":   lo.Ternary(info.Healthy, "healthy", "unhealthy"),
		"detector": info,
	})
}

// handleAnonymize returns the anonymized text with its stats. Failed
// documents get an error class and no text.
func (s *Server) handleAnonymize(w http.ResponseWriter, r *http.Request) {
	if s.config.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	}

	var req anonymizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			s.writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request_too_large"})
			return
		}
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request"})
		return
	}

	result, err := s.anonymizer.AnonymizeWithStats(r.Context(), req.Text)
	if err != nil {
		class := pii.ErrorClass(err)
		requestID := requestIDFrom(r.Context())
		s.reporter.ReportDocumentFailure(requestID, "api", err)
		s.logger.WithRequestID(requestID).Warn("anonymization failed", zap.String("error_class", class))
		s.writeJSON(w, statusForError(err), errorResponse{Error: class})
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleReload rebuilds the configured detector. Callers cannot pick the
// detector; a request body is rejected.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength != 0 {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request"})
		return
	}

	s.detectorMu.RLock()
	detectorCfg := s.detector
	s.detectorMu.RUnlock()

	if err := s.manager.Reload(detectorCfg.Name, detectorCfg.DetectorOptions()); err != nil {
		s.logger.Error("detector reload failed", zap.String("detector", detectorCfg.Name), zap.Error(err))
		s.writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":    "reload_failed",
			"detector": s.manager.Info(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "reloaded",
		"detector": s.manager.Info(),
	})
}

func statusForError(err error) int {
	if errors.Is(err, pii.ErrDetection) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}

type contextKey string

const requestIDKey contextKey = "request_id"

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// statusRecorder captures the response status for access logs
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware assigns a request ID and logs method, path, status and
// duration. Bodies are never logged.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID))

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.WithRequestID(requestID).Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.reporter.ReportPanic("server", rec)
				s.logger.Error("panic recovered", zap.String("path", r.URL.Path))
				s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal_error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers and answers preflight requests
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case origin == "":
			// Non-browser clients send no origin
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case lo.Contains(s.config.AllowedOrigins, "*"):
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case lo.Contains(s.config.AllowedOrigins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
