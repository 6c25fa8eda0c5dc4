// Package normalize converts loosely shaped registry payloads into domain.Agent records.
//
// The registry encodes optional values as zero- or one-element sequences and sometimes
// wraps whole lists in an extra sequence. Nothing here returns an error: malformed
// fields fall back to their defaults.
package normalize

import (
	"encoding/json"
	"math"
	"net/url"
	"strconv"

	"github.com/nexushub/portal/internal/domain"
)

// Defaults applied after unwrapping.
const (
	DefaultName     = "Unnamed Agent"
	DefaultCategory = "General"
	DefaultAuthor   = "Unknown"

	avatarBaseURL = "https://api.dicebear.com/7.x/bottts/svg?seed="
)

// AgentList normalizes a decoded GET /agents payload. Anything that is not a
// sequence yields an empty list.
func AgentList(raw any) []domain.Agent {
	var records []any
	switch domain.ClassifyAgentList(raw) {
	case domain.AgentListDoubleWrapped:
		records = raw.([]any)[0].([]any)
	case domain.AgentListBare:
		records = raw.([]any)
	case domain.AgentListInvalid:
		return []domain.Agent{}
	}
	agents := make([]domain.Agent, 0, len(records))
	for _, rec := range records {
		agents = append(agents, Agent(rec))
	}
	return agents
}

// SingleAgent normalizes a decoded GET /agents/{id} payload, unwrapping up to two
// levels of sequence. It reports false when no record is present.
func SingleAgent(raw any) (domain.Agent, bool) {
	rec := raw
	for i := 0; i < 2; i++ {
		list, ok := rec.([]any)
		if !ok {
			break
		}
		if len(list) == 0 {
			return domain.Agent{}, false
		}
		rec = list[0]
	}
	if _, ok := rec.(map[string]any); !ok {
		return domain.Agent{}, false
	}
	return Agent(rec), true
}

// Agent normalizes one registry record. Non-object input yields an all-default agent.
func Agent(raw any) domain.Agent {
	obj, _ := raw.(map[string]any)

	id := stringField(obj, "id")
	agent := domain.Agent{
		ID:           id,
		Name:         orDefault(stringField(obj, "name"), DefaultName),
		Description:  stringField(obj, "description"),
		ImageURL:     stringField(obj, "imageUrl"),
		Category:     orDefault(stringField(obj, "category"), DefaultCategory),
		Capabilities: Tools(obj["allowed_tools"]),
		Author:       orDefault(stringField(obj, "author"), DefaultAuthor),
		Developer:    stringField(obj, "developer"),
		Verified:     obj["verified"] == true,
		Endpoint:     stringField(obj, "endpoint"),
		CreatedAt:    timestampField(obj, "created_at"),
		ManifestHash: stringField(obj, "manifest_hash"),
		Version:      stringField(obj, "version"),
		HealthCheck:  stringField(obj, "health_check"),
	}
	if agent.ImageURL == "" {
		agent.ImageURL = AvatarURL(id)
	}
	return agent
}

// AvatarURL is the generated image used when a record has none.
func AvatarURL(id string) string {
	return avatarBaseURL + url.QueryEscape(id)
}

// Unwrap resolves the optional-as-sequence encoding: a non-empty sequence yields its
// first element, an empty one yields nil, anything else is returned unchanged.
func Unwrap(v any) any {
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return nil
		}
		return list[0]
	}
	return v
}

// Tools flattens allowed_tools, which may arrive as [[...]] or [...].
func Tools(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return []string{}
	}
	if len(list) > 0 {
		if inner, ok := list[0].([]any); ok {
			list = inner
		}
	}
	tools := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			tools = append(tools, s)
		}
	}
	return tools
}

func stringField(obj map[string]any, key string) string {
	if obj == nil {
		return ""
	}
	s, _ := Unwrap(obj[key]).(string)
	return s
}

func timestampField(obj map[string]any, key string) *int64 {
	if obj == nil {
		return nil
	}
	var ts int64
	switch v := Unwrap(obj[key]).(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		ts = int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil {
				return nil
			}
			n = int64(f)
		}
		ts = n
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil
		}
		ts = n
	default:
		return nil
	}
	return &ts
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
