// Package server exposes the conversation archive and search over an HTTP
// JSON API under /api.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Aman-CERP/chatlens/internal/search"
	"github.com/Aman-CERP/chatlens/internal/store"
	"github.com/Aman-CERP/chatlens/internal/telemetry"
)

// DefaultMaxUploadBytes bounds archive uploads when Config leaves it zero.
const DefaultMaxUploadBytes = 512 << 20

// shutdownTimeout is how long in-flight requests get after ctx is cancelled.
const shutdownTimeout = 5 * time.Second

// Config configures the HTTP server.
type Config struct {
	// Addr is the listen address, e.g. "127.0.0.1:8000".
	Addr string
	// MaxUploadBytes caps the archive accepted by POST /api/upload_zip.
	MaxUploadBytes int64
	// Metrics backs GET /api/stats; nil disables the route.
	Metrics MetricsSource
}

// MetricsSource provides the query statistics of this process.
type MetricsSource interface {
	Snapshot() *telemetry.Snapshot
}

// Server serves the /api routes for one Engine.
type Server struct {
	engine    *search.Engine
	favorites *store.FavoritesStore
	config    Config

	// baseCtx outlives requests; rebuilds started by an upload run under it.
	baseCtx context.Context
}

// New creates a server. favorites may be nil, in which case every
// conversation reports is_favorite=false and toggling fails.
func New(engine *search.Engine, favorites *store.FavoritesStore, cfg Config) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Server{
		engine:    engine,
		favorites: favorites,
		config:    cfg,
		baseCtx:   context.Background(),
	}
}

// Handler returns the routed API handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/conversations", s.handleConversations)
	mux.HandleFunc("GET /api/conversations/{id}/messages", s.handleMessages)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("POST /api/upload_zip", s.handleUploadZip)
	mux.HandleFunc("POST /api/toggle_favorite", s.handleToggleFavorite)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	if s.config.Metrics != nil {
		mux.HandleFunc("GET /api/stats", s.handleStats)
	}
	return logRequests(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.baseCtx = ctx

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()

	slog.Info("server_listening", slog.String("addr", listener.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	slog.Info("server_stopped")
	return nil
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("http_request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)))
	})
}
