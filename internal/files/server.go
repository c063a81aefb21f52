// Package files serves recorded artifacts, health probes, and the
// Prometheus endpoint on a listener separate from the control channel.
package files

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/camlink/camerad/internal/auth"
	"github.com/camlink/camerad/internal/capture"
	"github.com/camlink/camerad/internal/logging"
)

// Config configures the file/health listener.
type Config struct {
	Host string
	Port int
}

// DefaultConfig returns the standard listener settings.
func DefaultConfig() Config {
	return Config{Host: "0.0.0.0", Port: 8003}
}

// ReadyChecker reports whether the service is ready to serve.
type ReadyChecker func() bool

// Server is the artifact download and health HTTP endpoint.
type Server struct {
	cfg        Config
	recordings *capture.ArtifactStore
	snapshots  *capture.ArtifactStore
	auth       *auth.Authenticator
	ready      ReadyChecker
	logger     *slog.Logger

	httpSrv  *http.Server
	listener net.Listener
}

// NewServer creates the file server. A nil ready checker reports
// always ready.
func NewServer(cfg Config, recordings, snapshots *capture.ArtifactStore, authenticator *auth.Authenticator, ready ReadyChecker) *Server {
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Server{
		cfg:        cfg,
		recordings: recordings,
		snapshots:  snapshots,
		auth:       authenticator,
		ready:      ready,
		logger:     logging.GetLogger("files"),
	}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health/live", s.handleLive)
	r.Get("/health/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.requireBearer)
		r.Get("/files/recordings/{name}", s.serveArtifact(s.recordings))
		r.Get("/files/snapshots/{name}", s.serveArtifact(s.snapshots))
	})
	return r
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.httpSrv = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("File server exited", "error", err)
		}
	}()
	s.logger.Info("File server listening", "addr", addr)
	return nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the listener down with a bounded wait.
func (s *Server) Stop() {
	if s.httpSrv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Warn("File server shutdown timed out", "error", err)
	}
	s.logger.Info("File server stopped")
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// requireBearer authenticates the Authorization header against the
// shared authenticator.
func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
			return
		}
		result := s.auth.Authenticate(token, auth.MethodAuto)
		if !result.Authenticated {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// serveArtifact streams one file from the store. Names are a single
// path component; anything else is rejected before touching the disk.
func (s *Server) serveArtifact(store *capture.ArtifactStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		path, err := store.Resolve(name)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid file name"})
			return
		}
		if _, err := store.Info(name); err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "file not found"})
			return
		}
		http.ServeFile(w, r, path)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
