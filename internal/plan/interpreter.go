// Package plan turns orchestrator plans and execution results into text for people.
package plan

import (
	"encoding/json"

	"github.com/nexushub/portal/internal/domain"
)

// Category classifies a step for presentation.
type Category string

const (
	CategoryAgentCall   Category = "agent-call"
	CategoryFinalAnswer Category = "final-answer"
	CategoryGenericTool Category = "generic-tool"
)

// UnknownAgent is shown when a call_agent step names no endpoint.
const UnknownAgent = "Unknown Agent"

// StepDescription is the approval view of a single step.
type StepDescription struct {
	Index       int      `json:"index"`
	Tool        string   `json:"tool"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	// Expandable steps carry their pretty-printed arguments in Details.
	Expandable bool   `json:"expandable"`
	Details    string `json:"details,omitempty"`
}

// Preview is the approval view of a whole plan.
type Preview struct {
	Prompt string            `json:"prompt,omitempty"`
	Steps  []StepDescription `json:"steps"`
}

// Describe describes every step of p in execution order. Indexes are 1-based.
func Describe(p *domain.Plan, agents []domain.Agent) Preview {
	preview := Preview{Steps: []StepDescription{}}
	if p == nil {
		return preview
	}
	preview.Prompt = p.Prompt
	for i, step := range p.Steps {
		desc := DescribeStep(step, agents)
		desc.Index = i + 1
		preview.Steps = append(preview.Steps, desc)
	}
	return preview
}

// DescribeStep dispatches on the step's tool. Unknown tools fall through to the
// generic-tool branch, so every step gets a description.
func DescribeStep(step domain.PlanStep, agents []domain.Agent) StepDescription {
	switch step.Tool {
	case domain.ToolCallAgent:
		endpoint, _ := step.Args["endpoint"].(string)
		prompt := nested(step.Args, "payload", "prompt")
		text := compactJSON(step.Args)
		if truthy(prompt) {
			text = display(prompt)
		}
		return StepDescription{
			Tool:        step.Tool,
			Title:       "Ask " + ResolveAgentName(endpoint, agents),
			Description: `Sending prompt: "` + text + `"`,
			Category:    CategoryAgentCall,
			Expandable:  true,
			Details:     prettyJSON(step.Args),
		}
	case domain.ToolAnswerUser:
		return StepDescription{
			Tool:        step.Tool,
			Title:       "Final Answer",
			Description: "The orchestrator will provide the final response to you.",
			Category:    CategoryFinalAnswer,
		}
	default:
		description := step.Rationale
		if description == "" {
			description = compactJSON(step.Args)
		}
		return StepDescription{
			Tool:        step.Tool,
			Title:       "Execute Tool: " + step.Tool,
			Description: description,
			Category:    CategoryGenericTool,
		}
	}
}

// ResolveAgentName maps an agent endpoint to the registered agent's name, falling
// back to the endpoint itself and then to UnknownAgent.
func ResolveAgentName(endpoint string, agents []domain.Agent) string {
	if endpoint == "" {
		return UnknownAgent
	}
	for _, a := range agents {
		if a.Endpoint == endpoint {
			return a.Name
		}
	}
	return endpoint
}

// nested walks string-keyed maps along path and returns nil when any hop is missing.
func nested(v any, path ...string) any {
	cur := v
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[key]
	}
	return cur
}

// truthy follows JSON truthiness: null, false, 0 and "" are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case json.Number:
		return t.String() != "0"
	default:
		return true
	}
}

// display renders strings verbatim and everything else as compact JSON.
func display(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return compactJSON(v)
}
