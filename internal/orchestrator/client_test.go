package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexushub/portal/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL+"/", 0)
}

func TestListAgentsDoubleWrapped(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/agents", r.URL.Path)
		fmt.Fprint(w, `[[{"id":"a","name":"A","endpoint":["http://a"]},{"id":"b"}]]`)
	})

	agents, err := client.ListAgents(context.Background())
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "http://a", agents[0].Endpoint)
	assert.Equal(t, "Unnamed Agent", agents[1].Name)
}

func TestGetAgentNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"detail":"Agent not found"}`)
	})

	agent, err := client.GetAgent(context.Background(), "missing")
	assert.Nil(t, agent)
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestGetAgentEmptyRecord(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[[]]`)
	})

	_, err := client.GetAgent(context.Background(), "x")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestGetAgentServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"detail":"Canister not initialized."}`)
	})

	_, err := client.GetAgent(context.Background(), "x")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrAgentNotFound))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "Canister not initialized.", ErrorMessage(err))
}

func TestGetAgentWrapped(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/agents/rag%20agent", r.URL.EscapedPath())
		fmt.Fprint(w, `[[{"id":"rag agent","name":"RAG"}]]`)
	})

	agent, err := client.GetAgent(context.Background(), "rag agent")
	require.NoError(t, err)
	assert.Equal(t, "RAG", agent.Name)
}

func TestErrorWithoutDetailFallsBackToStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `<html>bad gateway</html>`)
	})

	_, err := client.ListAgents(context.Background())
	require.Error(t, err)
	assert.Equal(t, "API Error: Bad Gateway", ErrorMessage(err))
}

func TestChatPlanSendsConversation(t *testing.T) {
	var got ChatPlanRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/plan", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		fmt.Fprint(w, `{"steps":[{"tool":"answer_user","args":{"answer":"hi"}}],"_meta":{"model":"stub"}}`)
	})

	plan, err := client.ChatPlan(context.Background(), &ChatPlanRequest{
		Prompt:   "hello",
		User:     "anonymous",
		Messages: []domain.ChatMessage{{ID: "1", Role: domain.RoleAssistant, Content: "greeting"}},
	})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, domain.ToolAnswerUser, plan.Steps[0].Tool)
	assert.JSONEq(t, `{"model":"stub"}`, string(plan.Meta))

	assert.Equal(t, "hello", got.Prompt)
	assert.Equal(t, "anonymous", got.User)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, domain.RoleAssistant, got.Messages[0].Role)
}

func TestChatPlanSendsEmptyMessageList(t *testing.T) {
	var raw map[string]json.RawMessage
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &raw))
		fmt.Fprint(w, `{"steps":[]}`)
	})

	_, err := client.ChatPlan(context.Background(), &ChatPlanRequest{Prompt: "p", User: "u"})
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw["messages"]))
}

func TestPlanForManifest(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req PlanRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "orchestrator_v2", req.ManifestID)
		fmt.Fprint(w, `{"steps":[{"tool":"search_docs","args":{"query":"`+req.Prompt+`"},"rationale":"look it up"}]}`)
	})

	plan, err := client.Plan(context.Background(), &PlanRequest{ManifestID: "orchestrator_v2", Prompt: "pricing"})
	require.NoError(t, err)
	assert.Equal(t, "look it up", plan.Steps[0].Rationale)
	assert.Equal(t, "pricing", plan.Steps[0].Args["query"])
}

func TestExecute(t *testing.T) {
	var got ExecuteRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/execute", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"manifest_id":"orchestrator_v2","steps":[],"receipt":"abc"}`)
	})

	res, err := client.Execute(context.Background(), &ExecuteRequest{
		ManifestID: "orchestrator_v2",
		Prompt:     "do it",
		Plan:       &domain.Plan{Steps: []domain.PlanStep{{Tool: "answer_user"}}, Prompt: "do it"},
		User:       "2vxsx-fae",
	})
	require.NoError(t, err)
	assert.Equal(t, "abc", res.Receipt)
	assert.NotNil(t, res.Raw)
	assert.Equal(t, "2vxsx-fae", got.User)
	require.NotNil(t, got.Plan)
	assert.Equal(t, "do it", got.Plan.Prompt)
}

func TestRegisterAgentDetail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req domain.RegisterAgentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotNil(t, req.AllowedTools)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"detail":"Agent health_check failed: http://x/health returned 503"}`)
	})

	_, err := client.RegisterAgent(context.Background(), &domain.RegisterAgentRequest{ID: "x", Name: "X"})
	require.Error(t, err)
	assert.Equal(t, "Agent health_check failed: http://x/health returned 503", ErrorMessage(err))
}

func TestTransportFailure(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", 200*time.Millisecond)

	_, err := client.ListAgents(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
	assert.Contains(t, ErrorMessage(err), "failed to reach orchestrator")
}

func TestHealth(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		fmt.Fprint(w, `{"status":"ok"}`)
	})

	assert.NoError(t, client.Health(context.Background()))
}
