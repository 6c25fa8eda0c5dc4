// Package chat drives one chat conversation with the orchestrator: the user's
// prompt is planned, the plan is previewed, and an approved plan is executed.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nexushub/portal/internal/domain"
	"github.com/nexushub/portal/internal/orchestrator"
	"github.com/nexushub/portal/internal/plan"
)

// Fixed assistant texts.
const (
	Greeting       = "Hello! I am the Orchestrator. How can I help you today?"
	PlanningFailed = "Sorry, I encountered an error while trying to plan this task."
	Executing      = "Plan approved. Executing..."
)

var (
	// ErrBusy is returned while an orchestrator request is outstanding.
	ErrBusy = errors.New("conversation busy")
	// ErrNoPlan is returned when approving without a pending plan.
	ErrNoPlan = errors.New("no plan to approve")
	// ErrEmptyMessage is returned for blank input.
	ErrEmptyMessage = errors.New("empty message")
)

// Planner is the part of the orchestrator a conversation talks to.
type Planner interface {
	ChatPlan(ctx context.Context, req *orchestrator.ChatPlanRequest) (*domain.Plan, error)
	Execute(ctx context.Context, req *orchestrator.ExecuteRequest) (*domain.ExecutionResult, error)
}

// AgentLister supplies the agents used to name plan steps.
type AgentLister interface {
	Cached(ctx context.Context) ([]domain.Agent, error)
}

// State is the conversation's position in the plan/approve cycle.
type State string

const (
	StateIdle             State = "idle"
	StatePlanning         State = "planning"
	StateAwaitingApproval State = "awaiting_approval"
	StateExecuting        State = "executing"
)

// EventType tells the listener what changed.
type EventType string

const (
	EventMessage       EventType = "message"
	EventMessageUpdate EventType = "message_update"
	EventPlanPreview   EventType = "plan_preview"
	EventState         EventType = "state"
)

// Event is emitted for every change the client must render.
type Event struct {
	Type    EventType
	Message *domain.ChatMessage
	Preview *plan.Preview
	State   State
}

// Options configures a Conversation.
type Options struct {
	Planner    Planner
	Agents     AgentLister
	ManifestID string
	// Principal is asked on every request so a login mid-conversation takes effect.
	Principal func() string
	Emit      func(Event)
	Logger    *slog.Logger
}

// Conversation holds the transcript and the pending plan of one chat.
type Conversation struct {
	planner    Planner
	agents     AgentLister
	manifestID string
	principal  func() string
	emit       func(Event)
	logger     *slog.Logger

	mu       sync.Mutex
	messages []domain.ChatMessage
	current  *domain.Plan
	state    State
}

// New creates a conversation that starts with the greeting.
func New(opts Options) *Conversation {
	c := &Conversation{
		planner:    opts.Planner,
		agents:     opts.Agents,
		manifestID: opts.ManifestID,
		principal:  opts.Principal,
		emit:       opts.Emit,
		logger:     opts.Logger,
		state:      StateIdle,
	}
	if c.principal == nil {
		c.principal = func() string { return "anonymous" }
	}
	if c.emit == nil {
		c.emit = func(Event) {}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.messages = []domain.ChatMessage{{ID: uuid.New().String(), Role: domain.RoleAssistant, Content: Greeting}}
	return c
}

// Messages returns a copy of the transcript.
func (c *Conversation) Messages() []domain.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.ChatMessage(nil), c.messages...)
}

// State returns the current state.
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PendingPlan returns the plan awaiting approval, if any.
func (c *Conversation) PendingPlan() *domain.Plan {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Send adds the user's message and asks the orchestrator for a plan. On success the
// plan preview is emitted and the conversation waits for approval. A planning
// failure is reported in the transcript and returned.
func (c *Conversation) Send(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.busy() {
		c.mu.Unlock()
		return ErrBusy
	}
	history := append([]domain.ChatMessage(nil), c.messages...)
	userMsg := domain.ChatMessage{ID: uuid.New().String(), Role: domain.RoleUser, Content: content}
	c.messages = append(c.messages, userMsg)
	// A new request supersedes any plan still awaiting approval.
	c.current = nil
	c.state = StatePlanning
	c.mu.Unlock()

	c.emit(Event{Type: EventMessage, Message: &userMsg})
	c.emit(Event{Type: EventState, State: StatePlanning})

	p, err := c.planner.ChatPlan(ctx, &orchestrator.ChatPlanRequest{
		Prompt:   content,
		User:     c.principal(),
		Messages: history,
	})
	if err != nil {
		c.logger.Warn("planning failed", "error", err)
		reply := c.appendMessage(domain.RoleAssistant, PlanningFailed)
		c.setState(StateIdle)
		c.emit(Event{Type: EventMessage, Message: &reply})
		c.emit(Event{Type: EventState, State: StateIdle})
		return fmt.Errorf("chat plan: %w", err)
	}
	p.Prompt = content

	agents, err := c.agents.Cached(ctx)
	if err != nil {
		c.logger.Warn("agent list unavailable for plan preview", "error", err)
	}
	preview := plan.Describe(p, agents)

	c.mu.Lock()
	c.current = p
	c.state = StateAwaitingApproval
	c.mu.Unlock()

	c.emit(Event{Type: EventPlanPreview, Preview: &preview})
	c.emit(Event{Type: EventState, State: StateAwaitingApproval})
	return nil
}

// Approve executes the pending plan. A placeholder message is emitted first and then
// replaced by the formatted result or the failure text. The plan is cleared either way.
func (c *Conversation) Approve(ctx context.Context) error {
	c.mu.Lock()
	if c.busy() {
		c.mu.Unlock()
		return ErrBusy
	}
	p := c.current
	if p == nil {
		c.mu.Unlock()
		return ErrNoPlan
	}
	c.current = nil
	placeholder := domain.ChatMessage{ID: uuid.New().String(), Role: domain.RoleAssistant, Content: Executing}
	c.messages = append(c.messages, placeholder)
	c.state = StateExecuting
	c.mu.Unlock()

	c.emit(Event{Type: EventMessage, Message: &placeholder})
	c.emit(Event{Type: EventState, State: StateExecuting})

	res, err := c.planner.Execute(ctx, &orchestrator.ExecuteRequest{
		ManifestID: c.manifestID,
		Prompt:     p.Prompt,
		Plan:       p,
		User:       c.principal(),
	})

	var content string
	if err != nil {
		c.logger.Warn("execution failed", "error", err)
		content = "Execution failed: " + failureText(err)
	} else {
		agents, aerr := c.agents.Cached(ctx)
		if aerr != nil {
			c.logger.Warn("agent list unavailable for result", "error", aerr)
		}
		content = plan.FormatExecution(res, agents)
	}

	updated := c.updateMessage(placeholder.ID, content)
	c.setState(StateIdle)
	c.emit(Event{Type: EventMessageUpdate, Message: &updated})
	c.emit(Event{Type: EventState, State: StateIdle})
	if err != nil {
		return fmt.Errorf("execute plan: %w", err)
	}
	return nil
}

// Reject discards the pending plan without executing it.
func (c *Conversation) Reject() error {
	c.mu.Lock()
	if c.busy() {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.current == nil {
		c.mu.Unlock()
		return ErrNoPlan
	}
	c.current = nil
	c.state = StateIdle
	c.mu.Unlock()

	c.emit(Event{Type: EventState, State: StateIdle})
	return nil
}

// busy reports whether an orchestrator request is outstanding. Callers hold c.mu.
func (c *Conversation) busy() bool {
	return c.state == StatePlanning || c.state == StateExecuting
}

func (c *Conversation) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Conversation) appendMessage(role domain.Role, content string) domain.ChatMessage {
	msg := domain.ChatMessage{ID: uuid.New().String(), Role: role, Content: content}
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()
	return msg
}

func (c *Conversation) updateMessage(id, content string) domain.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.messages {
		if c.messages[i].ID == id {
			c.messages[i].Content = content
			return c.messages[i]
		}
	}
	msg := domain.ChatMessage{ID: id, Role: domain.RoleAssistant, Content: content}
	c.messages = append(c.messages, msg)
	return msg
}

func failureText(err error) string {
	msg := orchestrator.ErrorMessage(err)
	if msg == "" {
		return "Unknown error"
	}
	return msg
}
