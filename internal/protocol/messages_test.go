package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexushub/portal/internal/domain"
)

func TestPeek(t *testing.T) {
	raw, err := Peek([]byte(`{"type":"chat_message","request_id":"r1","content":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeChatMessage, raw.Type)
	assert.Equal(t, "r1", raw.RequestID)

	_, err = Peek([]byte(`not json`))
	assert.Error(t, err)
}

func TestMessageEventFlattensBase(t *testing.T) {
	msg := MessageEvent{
		BaseMessage: NewBase(TypeMessage, ""),
		Message:     domain.ChatMessage{ID: "m1", Role: domain.RoleAssistant, Content: "hello"},
	}
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "message", decoded["type"])
	assert.NotZero(t, decoded["ts"])
	assert.NotContains(t, decoded, "request_id")
	assert.Equal(t, "assistant", decoded["message"].(map[string]any)["role"])
}
