// Package protocol defines the WebSocket message protocol between chat clients and the portal.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/nexushub/portal/internal/domain"
	"github.com/nexushub/portal/internal/plan"
)

// Message types from client to portal
const (
	TypeHello       = "hello"
	TypeChatMessage = "chat_message"
	TypePlanApprove = "plan_approve"
	TypePlanReject  = "plan_reject"
)

// Message types from portal to client
const (
	TypeHelloAck      = "hello_ack"
	TypeMessage       = "message"
	TypeMessageUpdate = "message_update"
	TypePlanPreview   = "plan_preview"
	TypeState         = "state"
	TypeSessionEnded  = "session_ended"
	TypeError         = "error"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts"`
	RequestID string `json:"request_id,omitempty"`
}

// NewBase stamps a message of type t with the current time.
func NewBase(t, requestID string) BaseMessage {
	return BaseMessage{Type: t, Ts: time.Now().UnixMilli(), RequestID: requestID}
}

// HelloMessage is sent by the client after connecting. SessionID attaches the
// connection to a portal session started after the socket was opened.
type HelloMessage struct {
	BaseMessage
	SessionID  string            `json:"session_id,omitempty"`
	ClientMeta map[string]string `json:"client_meta,omitempty"`
}

// HelloAckMessage answers hello with the principal and the transcript so far.
type HelloAckMessage struct {
	BaseMessage
	ConnectionID string               `json:"connection_id"`
	Principal    string               `json:"principal"`
	Messages     []domain.ChatMessage `json:"messages"`
}

// ChatMessageRequest carries the user's text.
type ChatMessageRequest struct {
	BaseMessage
	Content string `json:"content"`
}

// MessageEvent adds or replaces a transcript entry (types message and message_update).
type MessageEvent struct {
	BaseMessage
	Message domain.ChatMessage `json:"message"`
}

// PlanPreviewMessage asks the user to approve or reject a plan.
type PlanPreviewMessage struct {
	BaseMessage
	Preview plan.Preview `json:"preview"`
}

// StateMessage reports the conversation state.
type StateMessage struct {
	BaseMessage
	State string `json:"state"`
}

// SessionEndedMessage is pushed to every socket of a session on logout.
type SessionEndedMessage struct {
	BaseMessage
	Reason string `json:"reason,omitempty"`
}

// ErrorMessage is sent by the portal when a request cannot be handled.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrorCodeInvalidMessage   = "invalid_message"
	ErrorCodeInvalidSession   = "invalid_session"
	ErrorCodeBusy             = "busy"
	ErrorCodeNoPlan           = "no_plan"
	ErrorCodeOrchestratorFail = "orchestrator_fail"
)

// RawMessage is used for parsing incoming messages before type dispatch.
type RawMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
}

// Peek decodes just enough of data to dispatch on its type.
func Peek(data []byte) (RawMessage, error) {
	var raw RawMessage
	err := json.Unmarshal(data, &raw)
	return raw, err
}
