package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yegors/agent-desktop/pkg/logger"
)

// Server is the live update channel. It holds at most one viewer connection:
// a new connection supersedes the previous one, which is closed server-side
// before the new viewer receives anything.
type Server struct {
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	logger       *logger.Logger

	mu           sync.Mutex
	client       *Client
	onConnect    func()
	onDisconnect func()
	closed       bool
}

// NewServer creates a new live update channel server
func NewServer(pingInterval time.Duration, allowedOrigins []string, log *logger.Logger) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		pingInterval: pingInterval,
		logger:       log.Named("ws-server"),
	}
}

func originChecker(allowedOrigins []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowedOrigins) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, allowed := range allowedOrigins {
			if allowed == "*" || allowed == origin {
				return true
			}
		}
		return false
	}
}

// SetHooks registers callbacks invoked when a viewer connects or when the
// current viewer goes away without being superseded.
func (s *Server) SetHooks(onConnect, onDisconnect func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnect = onConnect
	s.onDisconnect = onDisconnect
}

// HandleConnection upgrades the request and installs the connection as the
// single active viewer.
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", logger.Error(err))
		return
	}

	client := newClient(conn, s.logger, s.clientClosed)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	prev := s.client
	s.client = client
	onConnect := s.onConnect
	s.mu.Unlock()

	// Supersede the previous viewer before the new one gets any traffic
	if prev != nil {
		s.logger.Info("Superseding previous viewer connection")
		prev.close()
	}

	s.logger.Info("Viewer connected", logger.String("remote_addr", r.RemoteAddr))

	go client.writePump(s.pingInterval)
	go client.readPump()

	if onConnect != nil {
		onConnect()
	}
}

// clientClosed removes a closed client if it is still the active one
func (s *Server) clientClosed(c *Client) {
	s.mu.Lock()
	active := s.client == c
	if active {
		s.client = nil
	}
	onDisconnect := s.onDisconnect
	closed := s.closed
	s.mu.Unlock()

	if active {
		s.logger.Info("Viewer disconnected")
		if onDisconnect != nil && !closed {
			onDisconnect()
		}
	}
}

// Broadcast sends one JSON message to the connected viewer, if any
func (s *Server) Broadcast(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		s.logger.Error("Failed to marshal broadcast message", logger.Error(err))
		return
	}

	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	if client == nil {
		s.logger.Debug("No viewer connected, dropping message")
		return
	}
	client.enqueue(data)
}

// SendError sends an error message to the connected viewer
func (s *Server) SendError(msg string) {
	s.Broadcast(ErrorMessage{Error: msg})
}

// Connected reports whether a viewer is currently attached
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil
}

// Close shuts the channel down and closes any active viewer connection
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if client != nil {
		client.close()
	}
}
