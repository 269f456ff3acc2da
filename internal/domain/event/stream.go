package event

import (
	"encoding/json"
	"log/slog"

	"github.com/Strob0t/ForgeAgent/internal/domain/tool"
)

// Stream event type constants. These are the SSE `event:` names and the
// WebSocket envelope types; clients must tolerate unknown ones.
const (
	StreamTextDelta        = "text_delta"
	StreamToolCall         = "tool_call"
	StreamApprovalRequired = "approval_required"
	StreamToolResult       = "tool_result"
	StreamCompleted        = "completed"
	StreamTrace            = "trace"
	StreamError            = "error"
)

// StreamEvent is the envelope for one server event frame.
type StreamEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// TextDeltaPayload carries one fragment of streamed assistant text.
type TextDeltaPayload struct {
	Text string `json:"text"`
}

// ToolCallPayload is emitted when the assistant requests a tool.
type ToolCallPayload struct {
	CallID string `json:"callId"`
	Tool   string `json:"tool"`
	Args   string `json:"args"`
}

// ApprovalRequiredPayload asks a connected client to arbitrate a call.
type ApprovalRequiredPayload struct {
	CallID string `json:"callId"`
	Tool   string `json:"tool"`
	Args   string `json:"args"`
	Reason string `json:"reason"`
}

// ToolResultPayload reports the outcome of an executed tool call.
type ToolResultPayload struct {
	CallID      string            `json:"callId"`
	Tool        string            `json:"tool"`
	OK          bool              `json:"ok"`
	Diagnostics []tool.Diagnostic `json:"diagnostics,omitempty"`
}

// CompletedPayload ends a run on the stream.
type CompletedPayload struct {
	Reason string `json:"reason"`
}

// TracePayload surfaces provider trace events to clients.
type TracePayload struct {
	Kind string `json:"kind"`
	Raw  string `json:"raw"`
}

// ErrorPayload reports a runner failure.
type ErrorPayload struct {
	Message string `json:"message"`
}

// NewStreamEvent marshals a typed payload into a StreamEvent. A payload
// that fails to marshal is replaced by an empty object so the stream
// stays well-formed.
func NewStreamEvent(eventType string, payload any) StreamEvent {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal stream event payload", "type", eventType, "error", err)
		data = []byte("{}")
	}
	return StreamEvent{Type: eventType, Payload: data}
}
