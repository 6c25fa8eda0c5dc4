// Package hub provides connection management for WebSocket clients.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	// ErrBufferFull is returned when a connection's send buffer is full.
	ErrBufferFull = errors.New("send buffer full")
	// ErrClosed is returned when sending to an unregistered connection.
	ErrClosed = errors.New("connection closed")
)

const sendBuffer = 256

// Connection represents a single WebSocket connection.
type Connection struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte

	writeMu   sync.Mutex
	sendMu    sync.Mutex
	closed    bool
	sessMu    sync.RWMutex
	sessionID string
}

func (c *Connection) trySend(data []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

func (c *Connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// SessionID returns the portal session the connection belongs to, or "".
func (c *Connection) SessionID() string {
	c.sessMu.RLock()
	defer c.sessMu.RUnlock()
	return c.sessionID
}

func (c *Connection) setSessionID(id string) {
	c.sessMu.Lock()
	c.sessionID = id
	c.sessMu.Unlock()
}

// Hub manages all WebSocket connections.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// Sessions maps session_id to set of connection IDs
	sessions map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	end        chan *SessionMessage
	done       chan struct{}

	logger *slog.Logger
	mu     sync.RWMutex
}

// SessionMessage is a message addressed to every connection of a session.
type SessionMessage struct {
	SessionID string
	Data      []byte
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		connections: make(map[string]*Connection),
		sessions:    make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		end:         make(chan *SessionMessage, 16),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Run starts the hub's main loop and returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			if sid := conn.SessionID(); sid != "" {
				h.bindLocked(conn, sid)
			}
			h.mu.Unlock()
			h.logger.Debug("connection registered", "conn_id", conn.ID, "session_id", conn.SessionID())

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				h.unbindLocked(conn)
				conn.closeSend()
			}
			h.mu.Unlock()
			h.logger.Debug("connection unregistered", "conn_id", conn.ID)

		case msg := <-h.end:
			h.mu.Lock()
			conns := h.sessionConnsLocked(msg.SessionID)
			for _, conn := range conns {
				h.deliver(conn, msg.Data)
				h.unbindLocked(conn)
			}
			h.mu.Unlock()
			h.logger.Info("session ended", "session_id", msg.SessionID, "connections", len(conns))
		}
	}
}

func (h *Hub) deliver(conn *Connection, data []byte) {
	if err := conn.trySend(data); errors.Is(err, ErrBufferFull) {
		h.logger.Warn("connection buffer full, closing", "conn_id", conn.ID)
		go h.Unregister(conn)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.connections {
		if conn.Conn != nil {
			conn.Conn.Close()
		}
		delete(h.connections, id)
	}
	h.sessions = make(map[string]map[string]bool)
}

// NewConnection creates a connection for ws. sessionID may be empty for anonymous users.
func (h *Hub) NewConnection(ws *websocket.Conn, sessionID string) *Connection {
	return &Connection{
		ID:        uuid.New().String(),
		Conn:      ws,
		Send:      make(chan []byte, sendBuffer),
		sessionID: sessionID,
	}
}

// Register registers a connection with the hub.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
	}
}

// Unregister unregisters a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// BindSession moves a connection to a session. A connection the hub has not
// registered yet only records the id; Register binds it.
func (h *Hub) BindSession(conn *Connection, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unbindLocked(conn)
	if _, ok := h.connections[conn.ID]; !ok {
		conn.setSessionID(sessionID)
		return
	}
	h.bindLocked(conn, sessionID)
	h.logger.Debug("connection bound", "conn_id", conn.ID, "session_id", sessionID)
}

func (h *Hub) bindLocked(conn *Connection, sessionID string) {
	conn.setSessionID(sessionID)
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[string]bool)
	}
	h.sessions[sessionID][conn.ID] = true
}

func (h *Hub) unbindLocked(conn *Connection) {
	sid := conn.SessionID()
	if sid != "" && h.sessions[sid] != nil {
		delete(h.sessions[sid], conn.ID)
		if len(h.sessions[sid]) == 0 {
			delete(h.sessions, sid)
		}
	}
	conn.setSessionID("")
}

func (h *Hub) sessionConnsLocked(sessionID string) []*Connection {
	var out []*Connection
	for connID := range h.sessions[sessionID] {
		if conn, ok := h.connections[connID]; ok {
			out = append(out, conn)
		}
	}
	return out
}

// EndSession delivers v to every connection of a session and then detaches them
// from it. The connections stay open as anonymous.
func (h *Hub) EndSession(sessionID string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case h.end <- &SessionMessage{SessionID: sessionID, Data: data}:
	case <-h.done:
	}
	return nil
}

// SendToConnection sends a message to a specific connection.
func (h *Hub) SendToConnection(conn *Connection, data []byte) error {
	return conn.trySend(data)
}

// SendJSONToConnection sends a JSON message to a specific connection.
func (h *Hub) SendJSONToConnection(conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.SendToConnection(conn, data)
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// SessionCount returns the number of sessions with at least one connection.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// HasActiveConnections checks if a session has any active connections.
func (h *Hub) HasActiveConnections(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	connIDs, ok := h.sessions[sessionID]
	return ok && len(connIDs) > 0
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}
