package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/fmonfasani/mini-lab-ott/engine/kpi"
	"github.com/fmonfasani/mini-lab-ott/engine/lifecycle"
	"github.com/fmonfasani/mini-lab-ott/engine/metrics"
	"github.com/fmonfasani/mini-lab-ott/engine/simulator"
	"github.com/fmonfasani/mini-lab-ott/engine/storage"
	"github.com/fmonfasani/mini-lab-ott/engine/types"
)

// Server exposes the lab engine over HTTP
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// server implements the API server
type server struct {
	addr       string
	store      storage.Store
	lifecycle  *lifecycle.Manager
	recorder   *lifecycle.Recorder
	aggregator *kpi.Aggregator
	hub        *WSHub
	log        logrus.FieldLogger
	httpServer *http.Server
	upgrader   websocket.Upgrader

	// simulatorFor is swapped out in tests for a deterministic build.
	simulatorFor func(kind types.TestKind) *simulator.Simulator
}

// NewServer creates a new API server instance
func NewServer(addr string, store storage.Store, log logrus.FieldLogger) Server {
	return &server{
		addr:       addr,
		store:      store,
		lifecycle:  lifecycle.NewManager(store, log),
		recorder:   lifecycle.NewRecorder(store, log),
		aggregator: kpi.NewAggregator(store, log),
		hub:        NewWSHub(log),
		log:        log.WithField("component", "api-server"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow connections from any origin
			},
		},
		simulatorFor: func(kind types.TestKind) *simulator.Simulator {
			return simulator.New(kind)
		},
	}
}

// Start initializes and starts the HTTP API server
func (s *server) Start(ctx context.Context) error {
	s.log.Info("Starting API server")

	router := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.hub.Run()

	go func() {
		s.log.WithField("addr", s.httpServer.Addr).Info("API server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("API server failed")
		}
	}()

	s.log.Info("API server started successfully")
	return nil
}

// Stop gracefully shuts down the HTTP API server
func (s *server) Stop() error {
	s.log.Info("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.hub.Stop()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.WithError(err).Error("Failed to shutdown API server gracefully")
		return err
	}

	s.log.Info("API server stopped")
	return nil
}

// setupRoutes configures all HTTP routes and middleware
func (s *server) setupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.Use(s.enableCORS)
	router.Use(s.requestIDMiddleware)
	router.Use(s.loggingMiddleware)
	router.Use(s.errorHandlingMiddleware)

	api := router.PathPrefix("/api").Subrouter()

	// Synthetic session endpoints
	api.HandleFunc("/tests/{kind}", s.handleRunTest).Methods("POST", "OPTIONS")

	// KPI dashboard endpoint
	api.HandleFunc("/kpis", s.handleKpis).Methods("GET", "OPTIONS")

	// WebSocket endpoint for real-time run events
	api.HandleFunc("/ws", s.hub.HandleConnection(&s.upgrader))

	// Health and status endpoints
	api.HandleFunc("/health", s.handleHealth).Methods("GET", "OPTIONS")
	api.HandleFunc("/status", s.handleStatus).Methods("GET", "OPTIONS")

	// Prometheus metrics endpoint
	router.Handle("/metrics", metrics.Handler()).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	return router
}

// enableCORS adds CORS headers to responses
func (s *server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		w.Header().Set("Access-Control-Max-Age", "86400")

		// Handle preflight requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestIDMiddleware tags every request with an identifier for correlation
func (s *server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(withRequestID(r.Context(), requestID)))
	})
}

type requestIDKey struct{}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// loggingMiddleware logs HTTP requests
func (s *server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)
		s.log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      wrapper.statusCode,
			"duration_ms": duration.Milliseconds(),
			"request_id":  requestID(r.Context()),
			"remote_addr": r.RemoteAddr,
		}).Info("HTTP request processed")
	})
}

// errorHandlingMiddleware provides centralized error handling
func (s *server) errorHandlingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log.WithField("error", err).Error("Panic in HTTP handler")
				s.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status codes
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// writeJSONResponse writes a JSON response with the given status code
func (s *server) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeErrorResponse writes a JSON error response
func (s *server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSONResponse(w, statusCode, map[string]interface{}{
		"error":     message,
		"status":    statusCode,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
