package domain

import "encoding/json"

// AgentListShape enumerates the encodings GET /agents is known to use.
type AgentListShape int

const (
	// AgentListInvalid is anything that is not a sequence.
	AgentListInvalid AgentListShape = iota
	// AgentListBare is [agent, agent, ...].
	AgentListBare
	// AgentListDoubleWrapped is [[agent, agent, ...]].
	AgentListDoubleWrapped
)

func (s AgentListShape) String() string {
	switch s {
	case AgentListBare:
		return "bare"
	case AgentListDoubleWrapped:
		return "double_wrapped"
	default:
		return "invalid"
	}
}

// ClassifyAgentList reports the encoding of a decoded /agents payload. An empty
// sequence is bare.
func ClassifyAgentList(raw any) AgentListShape {
	list, ok := raw.([]any)
	if !ok {
		return AgentListInvalid
	}
	if len(list) > 0 {
		if _, ok := list[0].([]any); ok {
			return AgentListDoubleWrapped
		}
	}
	return AgentListBare
}

// UnmarshalJSON keeps the full payload in Raw and picks the declared fields
// leniently, so an unexpected type on one field does not lose the rest.
func (r *ExecutionResult) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = ExecutionResult{Raw: raw}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	if v, ok := obj["ok"].(bool); ok {
		r.OK = v
	}
	r.Result = obj["result"]
	if v, ok := obj["error"].(string); ok {
		r.Error = v
	}
	if v, ok := obj["receipt"].(string); ok {
		r.Receipt = v
	}
	return nil
}
