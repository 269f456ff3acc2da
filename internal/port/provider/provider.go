// Package provider defines the port every model provider adapter
// implements: one streaming call per turn, normalized events out.
package provider

import (
	"context"

	"github.com/Strob0t/ForgeAgent/internal/domain/conversation"
	"github.com/Strob0t/ForgeAgent/internal/domain/event"
	"github.com/Strob0t/ForgeAgent/internal/domain/tool"
)

// Request is the provider-agnostic shape of one model turn.
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []conversation.Message
	Tools        []tool.Descriptor
	MaxTokens    int
	Temperature  *float64
}

// Provider streams normalized events for one request.
//
// Contract (binding on every adapter):
//   - The returned channel is finite and closed after the terminal
//     response_completed event; it is not restartable.
//   - Transport and HTTP errors become trace(error) followed by
//     response_completed("error"); the stream never panics.
//   - Malformed frames become trace(parse_error) and the stream continues.
//   - Tool argument fragments are buffered per call id; consumers see
//     exactly one tool_call_ready with a complete JSON object.
//   - Cancelling ctx ends the stream early.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request) (<-chan event.ProviderEvent, error)
}
