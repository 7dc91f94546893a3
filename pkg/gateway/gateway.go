// Package gateway is the HTTP front door: API key checking, request
// validation, and the answer pipeline that ties session resolution, upstream
// forwarding, citation enrichment, and audit logging together.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Server is the gateway HTTP server.
type Server struct {
	listenAddr     string
	readTimeout    time.Duration
	writeTimeout   time.Duration
	requestTimeout time.Duration

	auth     *APIKeyMiddleware
	pipeline *Pipeline
	metrics  *Metrics
	logger   *slog.Logger

	httpServer *http.Server
	stopOnce   sync.Once
}

// ServerConfig holds configuration for creating a Server.
type ServerConfig struct {
	ListenAddr     string
	APIKey         string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	Pipeline       *Pipeline
	Metrics        *Metrics
	Logger         *slog.Logger
}

// NewServer creates a gateway server. Metrics may be nil when the metrics
// endpoint is not wanted.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		listenAddr:     cfg.ListenAddr,
		readTimeout:    cfg.ReadTimeout,
		writeTimeout:   cfg.WriteTimeout,
		requestTimeout: cfg.RequestTimeout,
		pipeline:       cfg.Pipeline,
		metrics:        cfg.Metrics,
		logger:         logger,
	}
	s.auth = NewAPIKeyMiddleware(cfg.APIKey, logger, cfg.Metrics)
	return s
}

// Handler returns the gateway's HTTP handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.setupRoutes(mux)
	return mux
}

// Start runs the HTTP server until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server starting", "addr", s.listenAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case <-ctx.Done():
		return s.Stop(context.Background())
	}
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping gateway")
		if s.httpServer != nil {
			if stopErr := s.httpServer.Shutdown(ctx); stopErr != nil {
				s.logger.Error("Failed to shut down HTTP server", "error", stopErr)
				err = stopErr
			}
		}
	})
	return err
}

// Health returns the current health status of the gateway.
func (s *Server) Health() *HealthStatus {
	return &HealthStatus{Status: "ok"}
}

// HealthStatus represents the health status of the gateway
type HealthStatus struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// setupRoutes configures HTTP routes for the gateway
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Base tracing/metrics wrapper
	wrapBase := func(name string, handler http.HandlerFunc) http.Handler {
		h := otelhttp.NewHandler(http.Handler(handler), name)
		if s.metrics != nil {
			h = s.metrics.MetricsMiddleware(h)
		}
		return h
	}

	// Answer endpoint requires the API key
	mux.Handle(answerPathPrefix, s.auth.Wrap(wrapBase("answer", s.handleAnswer)))

	// Health check endpoint - no auth required
	mux.Handle("/healthz", wrapBase("healthz", s.handleHealth))

	// Metrics endpoint - no auth required
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
}
