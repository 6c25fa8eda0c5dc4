package plan

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nexushub/portal/internal/domain"
)

// Literals shown in place of missing execution output.
const (
	NoAnswer        = "No answer provided."
	NoAgentResponse = "No response (Check agent health)"
	NoAgentFound    = "No suitable agent found."
	FormatFailed    = "Error formatting result."
)

var (
	errMissingResult = errors.New("missing result")
	errMalformedStep = errors.New("malformed step")
)

// FormatResult renders an execution result as chat text. It never fails: any
// problem while walking the payload yields FormatFailed.
func FormatResult(result any, agents []domain.Agent) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = FormatFailed
		}
	}()

	text, err := formatResult(result, agents)
	if err != nil {
		return FormatFailed
	}
	return text
}

// FormatExecution renders the payload of an /execute reply.
func FormatExecution(res *domain.ExecutionResult, agents []domain.Agent) string {
	if res == nil {
		return FormatResult(nil, agents)
	}
	if res.Raw != nil {
		return FormatResult(res.Raw, agents)
	}
	return FormatResult(res.Result, agents)
}

func formatResult(result any, agents []domain.Agent) (string, error) {
	if result == nil {
		return "", errMissingResult
	}
	if s, ok := result.(string); ok {
		return s, nil
	}

	if obj, ok := result.(map[string]any); ok {
		if steps, ok := obj["steps"].([]any); ok {
			var b strings.Builder
			for _, raw := range steps {
				if raw == nil {
					return "", errMalformedStep
				}
				step, ok := raw.(map[string]any)
				if !ok {
					// A scalar step has neither tool nor payload.
					b.WriteString("Tool undefined: undefined\n")
					continue
				}
				line, err := formatStep(step, agents)
				if err != nil {
					return "", err
				}
				b.WriteString(line)
			}
			return strings.TrimSpace(b.String()), nil
		}
	}

	pretty, err := marshalText(result, "  ")
	if err != nil {
		return "", err
	}
	return string(pretty), nil
}

func formatStep(step map[string]any, agents []domain.Agent) (string, error) {
	tool, _ := step["tool"].(string)
	result := step["result"]

	switch tool {
	case domain.ToolAnswerUser:
		answer := firstTruthy(nested(result, "answer"), nested(step["args"], "answer"))
		if answer == nil {
			return NoAnswer, nil
		}
		return display(answer), nil

	case domain.ToolCallAgent:
		endpoint, _ := nested(step["args"], "endpoint").(string)
		name := ResolveAgentName(endpoint, agents)

		reply := firstTruthy(nested(result, "result"), nested(result, "text"), nested(result, "error"))
		var text string
		if reply != nil {
			text = display(reply)
		} else {
			b, err := marshalText(result, "")
			if err != nil {
				return "", err
			}
			text = string(b)
		}
		if text == "null" {
			text = NoAgentResponse
		}
		return fmt.Sprintf("**%s**: %s\n", name, text), nil

	case domain.ToolNoAgentFound:
		if msg := nested(step["args"], "message"); truthy(msg) {
			return display(msg), nil
		}
		return NoAgentFound, nil

	default:
		payload := result
		if !truthy(payload) {
			payload = step["args"]
		}
		b, err := marshalText(payload, "")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Tool %s: %s\n", toolLabel(step["tool"]), b), nil
	}
}

func firstTruthy(values ...any) any {
	for _, v := range values {
		if truthy(v) {
			return v
		}
	}
	return nil
}

func toolLabel(v any) string {
	if v == nil {
		return "undefined"
	}
	return display(v)
}
