package plan

import (
	"bytes"
	"encoding/json"
)

// marshalText serializes v for display. Unlike json.Marshal it leaves <, > and &
// unescaped.
func marshalText(v any, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func compactJSON(v any) string {
	b, err := marshalText(v, "")
	if err != nil {
		return "[unserializable]"
	}
	return string(b)
}

func prettyJSON(v any) string {
	b, err := marshalText(v, "  ")
	if err != nil {
		return compactJSON(v)
	}
	return string(b)
}
