package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexushub/portal/internal/domain"
	"github.com/nexushub/portal/internal/orchestrator"
	"github.com/nexushub/portal/internal/plan"
)

type fakePlanner struct {
	plan     *domain.Plan
	planErr  error
	result   *domain.ExecutionResult
	execErr  error
	block    chan struct{}
	planReqs []*orchestrator.ChatPlanRequest
	execReqs []*orchestrator.ExecuteRequest
	mu       sync.Mutex
}

func (f *fakePlanner) ChatPlan(ctx context.Context, req *orchestrator.ChatPlanRequest) (*domain.Plan, error) {
	f.mu.Lock()
	f.planReqs = append(f.planReqs, req)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if f.planErr != nil {
		return nil, f.planErr
	}
	copied := *f.plan
	return &copied, nil
}

func (f *fakePlanner) Execute(ctx context.Context, req *orchestrator.ExecuteRequest) (*domain.ExecutionResult, error) {
	f.mu.Lock()
	f.execReqs = append(f.execReqs, req)
	f.mu.Unlock()
	if f.execErr != nil {
		return nil, f.execErr
	}
	return f.result, nil
}

type fakeAgents struct{ agents []domain.Agent }

func (f fakeAgents) Cached(ctx context.Context) ([]domain.Agent, error) {
	return f.agents, nil
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

var researcher = domain.Agent{ID: "rag", Name: "Docs Researcher", Endpoint: "http://localhost:7001"}

func samplePlan() *domain.Plan {
	return &domain.Plan{Steps: []domain.PlanStep{
		{Tool: domain.ToolCallAgent, Args: map[string]any{
			"endpoint": "http://localhost:7001",
			"payload":  map[string]any{"prompt": "find the refund policy"},
		}},
		{Tool: domain.ToolAnswerUser, Args: map[string]any{}},
	}}
}

func newTestConversation(p *fakePlanner, rec *recorder) *Conversation {
	return New(Options{
		Planner:    p,
		Agents:     fakeAgents{agents: []domain.Agent{researcher}},
		ManifestID: "orchestrator_v2",
		Principal:  func() string { return "2vxsx-fae" },
		Emit:       rec.emit,
	})
}

func TestNewStartsWithGreeting(t *testing.T) {
	c := New(Options{})
	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.RoleAssistant, msgs[0].Role)
	assert.Equal(t, Greeting, msgs[0].Content)
	assert.Equal(t, StateIdle, c.State())
}

func TestSendEmitsPreview(t *testing.T) {
	p := &fakePlanner{plan: samplePlan()}
	rec := &recorder{}
	c := newTestConversation(p, rec)

	require.NoError(t, c.Send(context.Background(), "  what is the refund policy?  "))

	require.Len(t, p.planReqs, 1)
	req := p.planReqs[0]
	assert.Equal(t, "what is the refund policy?", req.Prompt)
	assert.Equal(t, "2vxsx-fae", req.User)
	require.Len(t, req.Messages, 1, "history excludes the message being planned")
	assert.Equal(t, Greeting, req.Messages[0].Content)

	previews := rec.ofType(EventPlanPreview)
	require.Len(t, previews, 1)
	preview := previews[0].Preview
	assert.Equal(t, "what is the refund policy?", preview.Prompt)
	require.Len(t, preview.Steps, 2)
	assert.Equal(t, "Ask Docs Researcher", preview.Steps[0].Title)
	assert.Equal(t, plan.CategoryFinalAnswer, preview.Steps[1].Category)

	assert.Equal(t, StateAwaitingApproval, c.State())
	require.NotNil(t, c.PendingPlan())
	assert.Equal(t, "what is the refund policy?", c.PendingPlan().Prompt)
}

func TestSendRejectsBlankInput(t *testing.T) {
	p := &fakePlanner{plan: samplePlan()}
	c := newTestConversation(p, &recorder{})

	assert.ErrorIs(t, c.Send(context.Background(), "   "), ErrEmptyMessage)
	assert.Empty(t, p.planReqs)
	assert.Len(t, c.Messages(), 1)
}

func TestSendPlanningFailure(t *testing.T) {
	p := &fakePlanner{planErr: &orchestrator.APIError{StatusCode: 502, Detail: "API Error: Bad Gateway"}}
	rec := &recorder{}
	c := newTestConversation(p, rec)

	err := c.Send(context.Background(), "hi")
	require.Error(t, err)

	msgs := c.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, domain.RoleUser, msgs[1].Role)
	assert.Equal(t, PlanningFailed, msgs[2].Content)
	assert.Nil(t, c.PendingPlan())
	assert.Equal(t, StateIdle, c.State())
	assert.Empty(t, rec.ofType(EventPlanPreview))
}

func TestFailedReplanDropsPendingPlan(t *testing.T) {
	p := &fakePlanner{plan: samplePlan()}
	rec := &recorder{}
	c := newTestConversation(p, rec)

	require.NoError(t, c.Send(context.Background(), "find the refund policy"))
	require.NotNil(t, c.PendingPlan())

	p.planErr = errors.New("planner offline")
	require.Error(t, c.Send(context.Background(), "actually, something else"))
	assert.Nil(t, c.PendingPlan())
	assert.Equal(t, StateIdle, c.State())

	assert.ErrorIs(t, c.Approve(context.Background()), ErrNoPlan)
	assert.Empty(t, p.execReqs)
}

func TestSendWhileBusy(t *testing.T) {
	p := &fakePlanner{plan: samplePlan(), block: make(chan struct{})}
	c := newTestConversation(p, &recorder{})

	done := make(chan error, 1)
	go func() { done <- c.Send(context.Background(), "first") }()

	assert.Eventually(t, func() bool { return c.State() == StatePlanning }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, c.Send(context.Background(), "second"), ErrBusy)
	assert.ErrorIs(t, c.Approve(context.Background()), ErrBusy)
	assert.ErrorIs(t, c.Reject(), ErrBusy)

	close(p.block)
	require.NoError(t, <-done)
	assert.Equal(t, StateAwaitingApproval, c.State())
}

func TestApproveFormatsResult(t *testing.T) {
	p := &fakePlanner{
		plan: samplePlan(),
		result: &domain.ExecutionResult{Raw: map[string]any{
			"steps": []any{
				map[string]any{
					"tool":   "call_agent",
					"args":   map[string]any{"endpoint": "http://localhost:7001"},
					"result": map[string]any{"text": "Refunds within 30 days."},
				},
				map[string]any{
					"tool":   "answer_user",
					"result": map[string]any{"answer": "You can get a refund within 30 days."},
				},
			},
		}},
	}
	rec := &recorder{}
	c := newTestConversation(p, rec)
	ctx := context.Background()

	require.NoError(t, c.Send(ctx, "refund policy?"))
	require.NoError(t, c.Approve(ctx))

	require.Len(t, p.execReqs, 1)
	req := p.execReqs[0]
	assert.Equal(t, "orchestrator_v2", req.ManifestID)
	assert.Equal(t, "refund policy?", req.Prompt)
	assert.Equal(t, "2vxsx-fae", req.User)
	require.NotNil(t, req.Plan)
	assert.Len(t, req.Plan.Steps, 2)

	placeholders := rec.ofType(EventMessage)
	last := placeholders[len(placeholders)-1].Message
	assert.Equal(t, Executing, last.Content)

	updates := rec.ofType(EventMessageUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, last.ID, updates[0].Message.ID)
	assert.Equal(t, "**Docs Researcher**: Refunds within 30 days.\nYou can get a refund within 30 days.", updates[0].Message.Content)

	msgs := c.Messages()
	assert.Equal(t, updates[0].Message.Content, msgs[len(msgs)-1].Content)
	assert.Nil(t, c.PendingPlan())
	assert.Equal(t, StateIdle, c.State())
}

func TestApproveFailureShowsDetail(t *testing.T) {
	p := &fakePlanner{
		plan:    samplePlan(),
		execErr: &orchestrator.APIError{StatusCode: 400, Detail: "manifest not found"},
	}
	rec := &recorder{}
	c := newTestConversation(p, rec)
	ctx := context.Background()

	require.NoError(t, c.Send(ctx, "go"))
	require.Error(t, c.Approve(ctx))

	updates := rec.ofType(EventMessageUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, "Execution failed: manifest not found", updates[0].Message.Content)
	assert.Nil(t, c.PendingPlan(), "plan is cleared after a failed execution")
}

func TestApproveWithoutPlan(t *testing.T) {
	c := newTestConversation(&fakePlanner{}, &recorder{})
	assert.ErrorIs(t, c.Approve(context.Background()), ErrNoPlan)
	assert.ErrorIs(t, c.Reject(), ErrNoPlan)
}

func TestRejectDiscardsPlan(t *testing.T) {
	p := &fakePlanner{plan: samplePlan()}
	c := newTestConversation(p, &recorder{})
	ctx := context.Background()

	require.NoError(t, c.Send(ctx, "do it"))
	require.NoError(t, c.Reject())

	assert.Nil(t, c.PendingPlan())
	assert.Equal(t, StateIdle, c.State())
	assert.ErrorIs(t, c.Approve(ctx), ErrNoPlan)
	assert.Empty(t, p.execReqs)
}

func TestFailureTextFallsBackToError(t *testing.T) {
	assert.Equal(t, "dial tcp: refused", failureText(errors.New("dial tcp: refused")))
}
