// Package ws provides the chat WebSocket endpoint.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/nexushub/portal/internal/chat"
	"github.com/nexushub/portal/internal/config"
	"github.com/nexushub/portal/internal/hub"
	"github.com/nexushub/portal/internal/orchestrator"
	"github.com/nexushub/portal/internal/plan"
	"github.com/nexushub/portal/internal/protocol"
	"github.com/nexushub/portal/internal/session"
)

// Server handles WebSocket connections. Every connection owns one conversation.
type Server struct {
	cfg      *config.Config
	hub      *hub.Hub
	planner  chat.Planner
	agents   chat.AgentLister
	sessions *session.Manager
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewServer creates a new WebSocket server.
func NewServer(cfg *config.Config, h *hub.Hub, planner chat.Planner, agents chat.AgentLister, sessions *session.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		hub:      h,
		planner:  planner,
		agents:   agents,
		sessions: sessions,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return OriginAllowed(cfg.AllowedOrigins, r.Header.Get("Origin"))
			},
		},
	}
}

// OriginAllowed reports whether origin may open a socket. "*" allows any origin and
// requests without an Origin header (non-browser clients) are always allowed.
func OriginAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
func (s *Server) HandleWebSocket(c echo.Context) error {
	sessionID := s.sessionFromCookie(c.Request())

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return err
	}

	conn := s.hub.NewConnection(ws, sessionID)
	logger := s.logger.With("conn_id", conn.ID)
	conv := chat.New(chat.Options{
		Planner:    s.planner,
		Agents:     s.agents,
		ManifestID: s.cfg.ManifestID,
		Principal:  func() string { return s.sessions.Principal(conn.SessionID()) },
		Emit:       func(e chat.Event) { s.sendEvent(conn, e) },
		Logger:     logger,
	})
	s.hub.Register(conn)

	ws.SetReadLimit(s.cfg.MaxMessageSize)

	// In-flight orchestrator calls are abandoned when the socket goes away.
	ctx, cancel := context.WithCancel(context.Background())

	go s.writePump(conn, logger)
	go s.readPump(ctx, cancel, conn, conv, logger)

	return nil
}

func (s *Server) sessionFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(session.CookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	if _, err := s.sessions.Get(cookie.Value); err != nil {
		return ""
	}
	return cookie.Value
}

// readPump reads messages from the WebSocket connection.
func (s *Server) readPump(ctx context.Context, cancel context.CancelFunc, conn *hub.Connection, conv *chat.Conversation, logger *slog.Logger) {
	defer func() {
		cancel()
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read failed", "error", err)
			}
			break
		}

		s.handleMessage(ctx, conn, conv, message, logger)
	}
}

// writePump writes messages to the WebSocket connection.
func (s *Server) writePump(conn *hub.Connection, logger *slog.Logger) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn("websocket write failed", "error", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches incoming messages to appropriate handlers.
func (s *Server) handleMessage(ctx context.Context, conn *hub.Connection, conv *chat.Conversation, data []byte, logger *slog.Logger) {
	raw, err := protocol.Peek(data)
	if err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	switch raw.Type {
	case protocol.TypeHello:
		var msg protocol.HelloMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(conn, raw.RequestID, protocol.ErrorCodeInvalidMessage, "invalid hello message")
			return
		}
		s.handleHello(conn, conv, &msg)
	case protocol.TypeChatMessage:
		var msg protocol.ChatMessageRequest
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(conn, raw.RequestID, protocol.ErrorCodeInvalidMessage, "invalid chat_message message")
			return
		}
		// Planning runs off the read loop so the client can keep talking to the socket.
		go func() {
			if err := conv.Send(ctx, msg.Content); err != nil {
				s.reportConversationError(conn, raw.RequestID, err, logger)
			}
		}()
	case protocol.TypePlanApprove:
		go func() {
			if err := conv.Approve(ctx); err != nil {
				s.reportConversationError(conn, raw.RequestID, err, logger)
			}
		}()
	case protocol.TypePlanReject:
		if err := conv.Reject(); err != nil {
			s.reportConversationError(conn, raw.RequestID, err, logger)
		}
	default:
		s.sendError(conn, raw.RequestID, protocol.ErrorCodeInvalidMessage, "unknown message type: "+raw.Type)
	}
}

// handleHello binds the connection to the session named in the message, if any, and
// answers with the principal and the transcript so a reconnecting client can render
// the conversation.
func (s *Server) handleHello(conn *hub.Connection, conv *chat.Conversation, msg *protocol.HelloMessage) {
	requestID := msg.RequestID
	if msg.SessionID != "" && msg.SessionID != conn.SessionID() {
		if _, err := s.sessions.Get(msg.SessionID); err != nil {
			s.sendError(conn, requestID, protocol.ErrorCodeInvalidSession, "unknown or expired session")
			return
		}
		s.hub.BindSession(conn, msg.SessionID)
	}

	ack := protocol.HelloAckMessage{
		BaseMessage:  protocol.NewBase(protocol.TypeHelloAck, requestID),
		ConnectionID: conn.ID,
		Principal:    s.sessions.Principal(conn.SessionID()),
		Messages:     conv.Messages(),
	}
	s.send(conn, ack)

	if p := conv.PendingPlan(); p != nil {
		agents, _ := s.agents.Cached(context.Background())
		preview := plan.Describe(p, agents)
		s.sendEvent(conn, chat.Event{Type: chat.EventPlanPreview, Preview: &preview})
	}
	s.logger.Debug("hello handshake completed", "conn_id", conn.ID, "session_id", conn.SessionID())
}

// reportConversationError tells the client why a request did not complete.
func (s *Server) reportConversationError(conn *hub.Connection, requestID string, err error, logger *slog.Logger) {
	switch {
	case errors.Is(err, chat.ErrBusy):
		s.sendError(conn, requestID, protocol.ErrorCodeBusy, "a request is already in progress")
	case errors.Is(err, chat.ErrNoPlan):
		s.sendError(conn, requestID, protocol.ErrorCodeNoPlan, "there is no plan awaiting approval")
	case errors.Is(err, chat.ErrEmptyMessage):
		s.sendError(conn, requestID, protocol.ErrorCodeInvalidMessage, "content is required")
	case errors.Is(err, context.Canceled):
		logger.Debug("request abandoned", "error", err)
	default:
		logger.Warn("chat request failed", "error", err)
		s.sendError(conn, requestID, protocol.ErrorCodeOrchestratorFail, orchestrator.ErrorMessage(err))
	}
}

// sendEvent translates a conversation event into a protocol message.
func (s *Server) sendEvent(conn *hub.Connection, e chat.Event) {
	switch e.Type {
	case chat.EventMessage, chat.EventMessageUpdate:
		t := protocol.TypeMessage
		if e.Type == chat.EventMessageUpdate {
			t = protocol.TypeMessageUpdate
		}
		s.send(conn, protocol.MessageEvent{BaseMessage: protocol.NewBase(t, ""), Message: *e.Message})
	case chat.EventPlanPreview:
		s.send(conn, protocol.PlanPreviewMessage{BaseMessage: protocol.NewBase(protocol.TypePlanPreview, ""), Preview: *e.Preview})
	case chat.EventState:
		s.send(conn, protocol.StateMessage{BaseMessage: protocol.NewBase(protocol.TypeState, ""), State: string(e.State)})
	}
}

// sendError sends an error message to a connection.
func (s *Server) sendError(conn *hub.Connection, requestID, code, message string) {
	s.send(conn, protocol.ErrorMessage{
		BaseMessage: protocol.NewBase(protocol.TypeError, requestID),
		Code:        code,
		Message:     message,
	})
}

func (s *Server) send(conn *hub.Connection, v interface{}) {
	if err := s.hub.SendJSONToConnection(conn, v); err != nil && !errors.Is(err, hub.ErrClosed) {
		s.logger.Warn("failed to queue message", "conn_id", conn.ID, "error", err)
	}
}
