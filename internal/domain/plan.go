package domain

import "encoding/json"

// Tool identifiers the portal knows how to present.
const (
	ToolCallAgent    = "call_agent"
	ToolAnswerUser   = "answer_user"
	ToolNoAgentFound = "no_agent_found"
)

// PlanStep is one tool invocation proposed by the orchestrator.
type PlanStep struct {
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args"`
	Rationale string         `json:"rationale,omitempty"`
}

// Plan is an ordered sequence of steps awaiting approval. Steps execute in order.
type Plan struct {
	Steps  []PlanStep      `json:"steps"`
	Meta   json.RawMessage `json:"_meta,omitempty"`
	Prompt string          `json:"prompt,omitempty"`
}

// ExecutionResult is the orchestrator's reply to POST /execute.
//
// The orchestrator returns a run record whose shape varies between versions, so the
// whole payload is kept in Raw and the known fields are decoded alongside it.
type ExecutionResult struct {
	OK      bool   `json:"ok"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
	Receipt string `json:"receipt,omitempty"`

	Raw any `json:"-"`
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage is one entry of a conversation transcript.
type ChatMessage struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
