// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aljaroudi/t3lepathy/internal/chat"
	"github.com/aljaroudi/t3lepathy/internal/export"
	"github.com/aljaroudi/t3lepathy/internal/telemetry"
)

// Limits applied to every request.
const (
	// MaxRequestBodySize bounds POST bodies, attachments included.
	MaxRequestBodySize = 20 << 20

	// ReadHeaderTimeout bounds how long a client may take to send headers.
	ReadHeaderTimeout = 10 * time.Second

	// ShutdownTimeout bounds a graceful shutdown started by Run.
	ShutdownTimeout = 5 * time.Second
)

// ============================================================================
// SERVER STATS
// ============================================================================

// Stats counts what the server has handled since it started.
type Stats struct {
	StartTime    time.Time `json:"startTime"`
	Sends        int64     `json:"sends"`
	FailedSends  int64     `json:"failedSends"`
	Canceled     int64     `json:"canceled"`
	EventClients int64     `json:"eventClients"`
}

type serverStats struct {
	start        time.Time
	sends        atomic.Int64
	failed       atomic.Int64
	canceled     atomic.Int64
	eventClients atomic.Int64
}

func (s *serverStats) recordSend(err error) {
	s.sends.Add(1)
	switch {
	case err == nil:
	case chat.IsCanceled(err):
		s.canceled.Add(1)
	default:
		s.failed.Add(1)
	}
}

func (s *serverStats) snapshot() Stats {
	return Stats{
		StartTime:    s.start,
		Sends:        s.sends.Load(),
		FailedSends:  s.failed.Load(),
		Canceled:     s.canceled.Load(),
		EventClients: s.eventClients.Load(),
	}
}

// ============================================================================
// SERVER
// ============================================================================

// Options configures a Server.
type Options struct {
	// Addr is the listen address, loopback by default.
	Addr string

	// Token, when set, is required as a bearer token on /api routes.
	Token string

	// RequestsPerSecond and Burst limit each client. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int

	// Tracker, when set, backs GET /api/costs.
	Tracker *telemetry.CostTracker

	// Export configures the export endpoint.
	Export *export.Options

	// Version is reported by /health.
	Version string

	Logger *slog.Logger
}

// Server exposes an Orchestrator over HTTP and a websocket event stream.
type Server struct {
	opts   Options
	orch   *chat.Orchestrator
	logger *slog.Logger
	mux    *http.ServeMux
	stats  *serverStats

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener

	// closing is closed by Shutdown so hijacked websocket connections end.
	closing   chan struct{}
	closeOnce sync.Once
}

// New creates a server for orch. Routes are registered immediately; call
// Start or Run to listen.
func New(orch *chat.Orchestrator, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Export == nil {
		opts.Export = export.DefaultOptions()
	}
	s := &Server{
		opts:    opts,
		orch:    orch,
		logger:  opts.Logger.With("component", "server"),
		mux:     http.NewServeMux(),
		stats:   &serverStats{start: time.Now()},
		closing: make(chan struct{}),
	}
	s.setupRoutes()
	return s
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/models", s.handleModels)
	s.mux.HandleFunc("GET /api/costs", s.handleCosts)

	s.mux.HandleFunc("GET /api/chats", s.handleListChats)
	s.mux.HandleFunc("POST /api/chats", s.handleCreateChat)
	s.mux.HandleFunc("PATCH /api/chats/{id}", s.handleRenameChat)
	s.mux.HandleFunc("DELETE /api/chats/{id}", s.handleDeleteChat)
	s.mux.HandleFunc("GET /api/chats/{id}/messages", s.handleGetMessages)
	s.mux.HandleFunc("POST /api/chats/{id}/messages", s.handleSend)
	s.mux.HandleFunc("POST /api/chats/{id}/cancel", s.handleCancel)
	s.mux.HandleFunc("GET /api/chats/{id}/usage", s.handleUsage)
	s.mux.HandleFunc("GET /api/chats/{id}/export", s.handleExport)

	s.mux.HandleFunc("GET /api/events", s.handleEvents)
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(s.logger),
		LoggingMiddleware(s.logger),
		SecurityHeadersMiddleware(),
		RateLimitMiddleware(NewRateLimiter(s.opts.RequestsPerSecond, s.opts.Burst)),
		AuthMiddleware(s.opts.Token),
	)(s.mux)
}

// Stats returns the request counters.
func (s *Server) Stats() Stats {
	return s.stats.snapshot()
}

// ============================================================================
// LIFECYCLE
// ============================================================================

// Name implements service.Service.
func (s *Server) Name() string { return "http" }

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Addr, err)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	s.mu.Lock()
	s.http = srv
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("listening", "addr", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.opts.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests, closes event streams and waits for
// in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.closing) })

	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// ============================================================================
// RESPONSES
// ============================================================================

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Message: message}})
}

// writeChatError maps orchestrator errors onto HTTP statuses.
func (s *Server) writeChatError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *chat.ValidationError
		notFound   *chat.NotFoundError
		gw         *chat.GatewayError
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{Message: validation.Message, Field: validation.Field}})
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, notFound.Error())
	case chat.IsCanceled(err):
		writeError(w, http.StatusConflict, "send cancelled")
	case errors.As(err, &gw):
		writeError(w, http.StatusBadGateway, gw.Error())
	default:
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON reads a bounded JSON body into v. An empty body leaves v as is.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
