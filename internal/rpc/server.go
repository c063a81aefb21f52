package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/camlink/camerad/internal/auth"
	"github.com/camlink/camerad/internal/logging"
	"github.com/camlink/camerad/internal/metrics"
)

const (
	writeDeadline   = 10 * time.Second
	shutdownTimeout = 5 * time.Second
	maxFrameBytes   = 1 << 20
)

// ServerConfig configures the WebSocket control channel.
type ServerConfig struct {
	Host           string
	Port           int
	WebSocketPath  string
	MaxConnections int
	RequestsPerMin int
}

// DefaultServerConfig returns the standard listener settings.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:           "0.0.0.0",
		Port:           8002,
		WebSocketPath:  "/ws",
		MaxConnections: 100,
		RequestsPerMin: 120,
	}
}

// session is one connected client.
type session struct {
	id   string
	conn *websocket.Conn

	mu        sync.Mutex
	principal *auth.Principal
}

func (s *session) setPrincipal(p *auth.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principal = p
}

func (s *session) currentPrincipal() *auth.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal
}

// send writes one message, serialized per connection.
func (s *session) send(payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return s.conn.WriteJSON(payload)
}

// Server is the JSON-RPC 2.0 WebSocket endpoint.
type Server struct {
	cfg      ServerConfig
	deps     Deps
	registry map[string]methodEntry
	limiter  *auth.RateLimiter
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu       sync.Mutex
	clients  map[string]*session
	running  bool
	httpSrv  *http.Server
	listener net.Listener
}

// NewServer creates the control-channel server.
func NewServer(cfg ServerConfig, deps Deps) *Server {
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		limiter: auth.NewRateLimiter(cfg.RequestsPerMin, time.Minute),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The control channel carries its own token auth.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logging.GetLogger("rpc"),
		clients: make(map[string]*session),
	}
	s.registry = s.buildRegistry()
	return s
}

// Start binds the listener and serves WebSocket upgrades.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.WebSocketPath, s.handleUpgrade)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.httpSrv = &http.Server{Handler: mux, BaseContext: func(net.Listener) context.Context { return ctx }}
	s.running = true

	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("WebSocket server exited", "error", err)
		}
	}()
	s.logger.Info("RPC server listening", "addr", addr, "path", s.cfg.WebSocketPath)
	return nil
}

// Addr returns the bound address, useful when Port is 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop notifies clients, closes all connections, and shuts the
// listener down with a bounded wait.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	clients := make([]*session, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = make(map[string]*session)
	httpSrv := s.httpSrv
	s.mu.Unlock()

	shutdownNote := newNotification("server_shutdown", map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	for _, c := range clients {
		_ = c.send(shutdownNote)
		_ = c.conn.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		s.logger.Warn("RPC server shutdown timed out", "error", err)
	}
	s.logger.Info("RPC server stopped")
}

// ActiveConnections returns the number of connected clients.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// handleUpgrade admits a new client unless the connection limit is
// reached.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if len(s.clients) >= s.cfg.MaxConnections {
		s.mu.Unlock()
		s.logger.Warn("Connection rejected, limit reached",
			"remote", r.RemoteAddr, "max_connections", s.cfg.MaxConnections)
		http.Error(w, "connection limit reached", http.StatusServiceUnavailable)
		return
	}
	s.mu.Unlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	sess := &session{id: logging.NewCorrelationID(), conn: conn}
	s.mu.Lock()
	// Re-check under lock: upgrades race with each other.
	if len(s.clients) >= s.cfg.MaxConnections {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.clients[sess.id] = sess
	count := len(s.clients)
	s.mu.Unlock()

	metrics.SetActiveConnections(count)
	s.logger.Info("Client connected", "client_id", sess.id, "remote", r.RemoteAddr)
	go s.readLoop(r.Context(), sess)
}

// readLoop processes frames for one client until the connection drops.
func (s *Server) readLoop(ctx context.Context, sess *session) {
	defer s.removeClient(sess.id, "connection closed")

	for {
		msgType, frame, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		resp := s.dispatch(ctx, sess, frame)
		if resp == nil {
			continue
		}
		if err := sess.send(resp); err != nil {
			s.logger.Warn("Failed to send response",
				"client_id", sess.id, "error", err)
			return
		}
	}
}

// removeClient drops a client from the pool and its rate-limit record.
func (s *Server) removeClient(clientID, reason string) {
	s.mu.Lock()
	sess, ok := s.clients[clientID]
	delete(s.clients, clientID)
	count := len(s.clients)
	s.mu.Unlock()
	if !ok {
		return
	}
	metrics.SetActiveConnections(count)
	_ = sess.conn.Close()
	s.limiter.Remove(clientID)
	s.logger.Info("Client disconnected", "client_id", clientID, "reason", reason)
}

// Broadcast sends a notification to every connected client, purging
// clients whose send fails.
func (s *Server) Broadcast(method string, params map[string]any) {
	note := newNotification(method, filterNotificationFields(method, params))

	s.mu.Lock()
	clients := make([]*session, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		if err := c.send(note); err != nil {
			s.logger.Warn("Notification send failed, purging client",
				"client_id", c.id, "method", method, "error", err)
			s.removeClient(c.id, "send failure")
		}
	}
}
