package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"hookrun/internal/runner"
)

// Server represents the webhook HTTP server.
type Server struct {
	config   Config
	launcher ActionLauncher
	logger   *slog.Logger
	server   *http.Server

	// endpoints maps URL paths to their configurations
	endpoints map[string]*EndpointConfig
}

// New creates a new webhook server instance.
func New(config Config, launcher ActionLauncher, logger *slog.Logger) *Server {
	// Build endpoint lookup map
	endpoints := make(map[string]*EndpointConfig)
	for i := range config.Endpoints {
		ep := &config.Endpoints[i]

		// Apply defaults
		if ep.MaxBodySize == 0 {
			ep.MaxBodySize = DefaultMaxBodySize
		}
		if ep.SignatureHeader == "" {
			ep.SignatureHeader = DefaultSignatureHeader
		}

		endpoints[ep.Path] = ep
	}

	return &Server{
		config:    config,
		launcher:  launcher,
		logger:    logger,
		endpoints: endpoints,
	}
}

// Start starts the webhook HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server starting", "listen", s.config.Listen, "endpoints", len(s.endpoints))

	// Run server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)

	// Register webhook endpoints
	for path := range s.endpoints {
		r.Post(path, s.handleDelivery)
	}

	return r
}

// loggingMiddleware logs HTTP requests (excludes sensitive payloads).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Log request (no body content for security)
		s.logger.Info("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// handleIndex answers stray browsers on the root path.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "hookrun webhook receiver. POST a signed payload to a configured endpoint.")
}

// handleDelivery handles incoming webhook POST requests.
//
// Status policy: missing configuration is 500, a missing signature header is
// 400, and every verification failure after that is one opaque 401. The
// internal failure kind is logged but never distinguishable to the caller.
func (s *Server) handleDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Look up endpoint configuration
	endpoint, ok := s.endpoints[r.URL.Path]
	if !ok {
		s.respondError(w, http.StatusNotFound, "endpoint not found")
		return
	}

	// Misconfiguration is a server fault, checked before any signature work
	// so it can never be misreported as unauthorized.
	if endpoint.Secret == "" || endpoint.Script == "" {
		s.logger.Error("endpoint misconfigured",
			"path", r.URL.Path,
			"has_secret", endpoint.Secret != "",
			"has_script", endpoint.Script != "",
		)
		s.respondError(w, http.StatusInternalServerError, "server misconfigured")
		return
	}

	// Enforce body size limit
	limitedReader := io.LimitReader(r.Body, endpoint.MaxBodySize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read request body")
		return
	}

	// Check if body exceeded limit
	if int64(len(body)) > endpoint.MaxBodySize {
		s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	// Extract signature from header. Absence is a structural fault (400); no
	// secret has been touched yet so there is no timing concern.
	signature := r.Header.Get(endpoint.SignatureHeader)
	if signature == "" {
		s.logger.Warn("webhook signature missing",
			"path", r.URL.Path,
			"header", endpoint.SignatureHeader,
		)
		s.respondError(w, http.StatusBadRequest, "missing signature header")
		return
	}

	// Verify HMAC signature (constant-time comparison)
	if err := VerifySignature([]byte(endpoint.Secret), body, signature); err != nil {
		s.logger.Warn("webhook signature verification failed",
			"path", r.URL.Path,
			"error", err,
		)
		s.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	// Launch action (fire-and-forget: only launch failure is observed here)
	deliveryID, err := s.launcher.Launch(ctx, runner.LaunchRequest{
		Endpoint:    r.URL.Path,
		Script:      endpoint.Script,
		Interpreter: endpoint.Interpreter,
		Timeout:     endpoint.Timeout,
		Payload:     body,
	})
	if err != nil {
		s.logger.Error("failed to launch action",
			"path", r.URL.Path,
			"script", endpoint.Script,
			"error", err,
		)
		s.respondError(w, http.StatusInternalServerError, "failed to launch action")
		return
	}

	s.logger.Info("action launched",
		"path", r.URL.Path,
		"script", endpoint.Script,
		"delivery_id", deliveryID,
	)

	// Respond with 202 Accepted: the action was launched, not completed
	s.respondJSON(w, http.StatusAccepted, TriggerResponse{DeliveryID: deliveryID})
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends a JSON error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}
