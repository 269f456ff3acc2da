package provider

import (
	"encoding/json"

	"github.com/Strob0t/ForgeAgent/internal/domain/tool"
)

// ResultContent renders a tool result into the text fed back to the
// model: serialized data, falling back to stdout, falling back to "OK"
// on success; stderr or the first diagnostic on failure.
func ResultContent(res *tool.Result) string {
	if res == nil {
		return "OK"
	}
	if res.OK {
		if len(res.Data) > 0 {
			if data, err := json.Marshal(res.Data); err == nil {
				return string(data)
			}
		}
		if res.Stdout != "" {
			return res.Stdout
		}
		return "OK"
	}
	if res.Stderr != "" {
		return res.Stderr
	}
	if msg := res.FirstDiagnostic(); msg != "" {
		return msg
	}
	return "tool failed"
}

// ParseSchema parses a tool's input-schema text into a generic object.
// A schema that fails to parse is substituted with an empty object so
// one bad tool does not kill the whole turn.
func ParseSchema(schema string) map[string]any {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(schema), &parsed); err != nil || parsed == nil {
		return map[string]any{}
	}
	return parsed
}
