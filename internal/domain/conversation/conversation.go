// Package conversation defines the immutable message model the
// orchestrator builds and providers consume.
package conversation

import (
	"github.com/Strob0t/ForgeAgent/internal/domain/tool"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is an assistant's request to invoke a tool. ArgsJSON is a
// complete JSON object; partial fragments never leave the provider
// adapter.
type ToolCall struct {
	CallID   string `json:"callId"`
	Name     string `json:"name"`
	ArgsJSON string `json:"argsJson"`
}

// Message is one entry in a conversation. Exactly one of the three role
// shapes is populated:
//
//   - user: Content
//   - assistant: Content and/or ToolCalls
//   - tool: CallID, ToolName, Result
//
// Messages are never mutated after creation.
type Message struct {
	Role      Role         `json:"role"`
	Content   string       `json:"content,omitempty"`
	ToolCalls []ToolCall   `json:"toolCalls,omitempty"`
	CallID    string       `json:"callId,omitempty"`
	ToolName  string       `json:"toolName,omitempty"`
	Result    *tool.Result `json:"result,omitempty"`
}

// User creates a user message.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Assistant creates an assistant message with optional text and calls.
func Assistant(content string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolResult creates a tool-result message answering the given call.
func ToolResult(callID, toolName string, result tool.Result) Message {
	return Message{Role: RoleTool, CallID: callID, ToolName: toolName, Result: &result}
}
