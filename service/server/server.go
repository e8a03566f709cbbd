package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/agentpay/service/config"
	"github.com/brojonat/agentpay/service/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the services the HTTP API exposes. Async and Stream are
// optional; their endpoints are not registered when nil.
type Deps struct {
	Agent     ChatAgent
	Builder   InstructionBuilder
	Executor  TransferExecutor
	Ledger    BalanceReader
	Directory RecipientLister
	Async     AsyncTransfers
	Stream    *SSEPublisher
}

// Server represents the HTTP server for the payment agent.
type Server struct {
	addr    string
	cfg     *config.Config
	deps    Deps
	metrics *metrics.Metrics
	logger  *slog.Logger
	server  *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, cfg *config.Config, deps Deps, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:    addr,
		cfg:     cfg,
		deps:    deps,
		metrics: m,
		logger:  logger,
	}
}

// Handler builds the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	// Chat and transfer routes
	route("POST /api/v1/chat", "/api/v1/chat", handleChat(s.deps.Agent, s.logger))
	route("GET /api/v1/chat/ws", "/api/v1/chat/ws", handleChatWebSocket(s.deps.Agent, s.metrics, s.logger))
	route("POST /api/v1/transfer", "/api/v1/transfer", handleTransfer(s.deps.Builder, s.deps.Executor, s.logger))
	route("GET /api/v1/balances", "/api/v1/balances", handleBalances(s.deps.Ledger, s.cfg, s.logger))
	route("GET /api/v1/recipients", "/api/v1/recipients", handleListRecipients(s.deps.Directory, s.logger))

	// Async transfer routes (if Temporal is configured)
	if s.deps.Async != nil {
		route("POST /api/v1/transfers/async", "/api/v1/transfers/async", handleStartAsyncTransfer(s.deps.Builder, s.deps.Async, s.logger))
		route("GET /api/v1/transfers/async/{workflow_id}", "/api/v1/transfers/async/{workflow_id}", handleGetAsyncTransfer(s.deps.Async, s.logger))
		s.logger.Info("async transfer endpoints enabled")
	} else {
		s.logger.Warn("temporal not configured, async transfer endpoints disabled")
	}

	// SSE streaming endpoints (if SSE publisher is configured)
	if s.deps.Stream != nil {
		route("GET /api/v1/stream/transfers/{account}", "/api/v1/stream/transfers/{account}", handleStreamTransfers(s.deps.Stream, s.metrics, s.logger))
		route("GET /api/v1/stream/transfers", "/api/v1/stream/transfers", handleStreamTransfers(s.deps.Stream, s.metrics, s.logger))
		s.logger.Info("SSE streaming endpoints enabled")
	} else {
		s.logger.Warn("SSE publisher not configured, streaming endpoints disabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// Chat requests wait on the language model and the ledger receipt.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close SSE publisher first (disconnects all clients)
	if s.deps.Stream != nil {
		s.deps.Stream.Close()
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
