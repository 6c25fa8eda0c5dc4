// Package orchestrator provides an HTTP client for the orchestrator API.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nexushub/portal/internal/domain"
	"github.com/nexushub/portal/internal/normalize"
)

// ErrAgentNotFound is returned by GetAgent when the orchestrator answers 404 or an empty record.
var ErrAgentNotFound = errors.New("agent not found")

// APIError is a non-2xx answer from the orchestrator.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return e.Detail
}

// Client is an HTTP client for the orchestrator API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new orchestrator client. A zero timeout leaves request
// deadlines to the caller's context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// PlanRequest is the body of POST /plan.
type PlanRequest struct {
	ManifestID string `json:"manifest_id"`
	Prompt     string `json:"prompt"`
}

// ChatPlanRequest is the body of POST /chat/plan.
type ChatPlanRequest struct {
	Prompt   string               `json:"prompt"`
	User     string               `json:"user"`
	Messages []domain.ChatMessage `json:"messages"`
}

// ExecuteRequest is the body of POST /execute.
type ExecuteRequest struct {
	ManifestID string       `json:"manifest_id"`
	Prompt     string       `json:"prompt"`
	Plan       *domain.Plan `json:"plan"`
	User       string       `json:"user"`
}

// errorBody is the orchestrator's error envelope.
type errorBody struct {
	Detail string `json:"detail"`
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) error {
	var out map[string]any
	return c.doJSON(ctx, http.MethodGet, "/health", nil, &out)
}

// ListAgents calls GET /agents and normalizes the registry payload.
func (c *Client) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	var raw any
	if err := c.doJSON(ctx, http.MethodGet, "/agents", nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	return normalize.AgentList(raw), nil
}

// GetAgent calls GET /agents/{id}. It returns ErrAgentNotFound for a 404 or an
// empty record, and any other failure as-is.
func (c *Client) GetAgent(ctx context.Context, id string) (*domain.Agent, error) {
	var raw any
	err := c.doJSON(ctx, http.MethodGet, "/agents/"+url.PathEscape(id), nil, &raw)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("failed to get agent %s: %w", id, err)
	}

	agent, ok := normalize.SingleAgent(raw)
	if !ok {
		return nil, ErrAgentNotFound
	}
	return &agent, nil
}

// Plan calls POST /plan for a specific manifest.
func (c *Client) Plan(ctx context.Context, req *PlanRequest) (*domain.Plan, error) {
	var plan domain.Plan
	if err := c.doJSON(ctx, http.MethodPost, "/plan", req, &plan); err != nil {
		return nil, fmt.Errorf("failed to plan: %w", err)
	}
	return &plan, nil
}

// ChatPlan calls POST /chat/plan, letting the orchestrator pick agents for the prompt.
func (c *Client) ChatPlan(ctx context.Context, req *ChatPlanRequest) (*domain.Plan, error) {
	if req.Messages == nil {
		req.Messages = []domain.ChatMessage{}
	}
	var plan domain.Plan
	if err := c.doJSON(ctx, http.MethodPost, "/chat/plan", req, &plan); err != nil {
		return nil, fmt.Errorf("failed to plan chat turn: %w", err)
	}
	return &plan, nil
}

// Execute calls POST /execute with an approved plan.
func (c *Client) Execute(ctx context.Context, req *ExecuteRequest) (*domain.ExecutionResult, error) {
	var result domain.ExecutionResult
	if err := c.doJSON(ctx, http.MethodPost, "/execute", req, &result); err != nil {
		return nil, fmt.Errorf("failed to execute plan: %w", err)
	}
	return &result, nil
}

// RegisterAgent calls POST /register.
func (c *Client) RegisterAgent(ctx context.Context, req *domain.RegisterAgentRequest) (*domain.RegisterAgentResponse, error) {
	if req.AllowedTools == nil {
		req.AllowedTools = []string{}
	}
	var resp domain.RegisterAgentResponse
	if err := c.doJSON(ctx, http.MethodPost, "/register", req, &resp); err != nil {
		return nil, fmt.Errorf("failed to register agent: %w", err)
	}
	return &resp, nil
}

// doJSON sends body as JSON and decodes a 2xx reply into out. Non-2xx replies
// become *APIError carrying the orchestrator's detail message.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to reach orchestrator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func apiError(resp *http.Response) *APIError {
	respBody, _ := io.ReadAll(resp.Body)
	var errResp errorBody
	if json.Unmarshal(respBody, &errResp) == nil && errResp.Detail != "" {
		return &APIError{StatusCode: resp.StatusCode, Detail: errResp.Detail}
	}
	status := strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprintf("%d", resp.StatusCode)))
	if status == "" {
		status = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Detail: "API Error: " + status}
}

// ErrorMessage is the text to show a person for err: the orchestrator's detail
// when there is one, the error chain otherwise.
func ErrorMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
