// Package tools implements the built-in tool set: file reading,
// listing, searching, git inspection, patch application, and
// subprocess execution. Each tool is a stateless value registered in
// the tool registry.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/Strob0t/ForgeAgent/internal/domain/tool"
)

const readFileSchema = `{
  "type": "object",
  "properties": {
    "path": {"type": "string", "description": "Path relative to the workspace root"},
    "startLine": {"type": "integer", "description": "First line to return (1-based, inclusive)"},
    "endLine": {"type": "integer", "description": "Last line to return (1-based, inclusive)"}
  },
  "required": ["path"]
}`

// ReadFile returns the contents of a workspace file, optionally
// restricted to an inclusive line range.
type ReadFile struct{}

// Descriptor implements tool.Tool.
func (ReadFile) Descriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:        "ReadFile",
		Description: "Read a file from the workspace, optionally limited to a line range.",
		InputSchema: readFileSchema,
		Policy:      tool.Policy{ReadOnly: true, Risk: tool.RiskLow},
	}
}

// Execute implements tool.Tool.
func (ReadFile) Execute(_ context.Context, args json.RawMessage, exec tool.ExecContext) tool.Result {
	var in struct {
		Path      string `json:"path"`
		StartLine int    `json:"startLine"`
		EndLine   int    `json:"endLine"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return tool.Failure("BadArgs", fmt.Sprintf("invalid arguments: %v", err))
	}

	abs, err := exec.Guard.Resolve(in.Path)
	if err != nil {
		return tool.Failure("UnsafePath", fmt.Sprintf("path %q is outside the workspace", in.Path))
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return tool.Failure("ReadFailed", fmt.Sprintf("read %s: %v", in.Path, err))
	}

	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	total := len(lines)

	start, end := in.StartLine, in.EndLine
	if start < 1 {
		start = 1
	}
	if end < 1 || end > total {
		end = total
	}
	if start > total {
		start = total
	}
	if end < start {
		end = start
	}

	return tool.Success(map[string]any{
		"path":       in.Path,
		"startLine":  start,
		"endLine":    end,
		"totalLines": total,
		"content":    strings.Join(lines[start-1:end], "\n"),
	})
}
