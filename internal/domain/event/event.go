// Package event defines the normalized event model. Provider adapters
// translate heterogeneous vendor streams into ProviderEvent values; the
// server mirrors runner activity as StreamEvent frames.
package event

// Kind identifies a normalized provider event variant.
type Kind string

const (
	KindTextDelta         Kind = "text_delta"
	KindToolCallStarted   Kind = "tool_call_started"
	KindToolCallArgsDelta Kind = "tool_call_args_delta"
	KindToolCallReady     Kind = "tool_call_ready"
	KindResponseCompleted Kind = "response_completed"
	KindTrace             Kind = "trace"
)

// Trace kinds carried by KindTrace events.
const (
	TraceError      = "error"
	TraceParseError = "parse_error"
	TraceIgnored    = "ignored"
)

// Usage reports token consumption for a completed response.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ProviderEvent is the closed variant type streamed by every provider
// adapter. Kind selects which fields are meaningful.
type ProviderEvent struct {
	Kind Kind

	// text_delta
	Text string

	// tool_call_started / tool_call_args_delta / tool_call_ready
	CallID   string
	ToolName string
	Fragment string
	ArgsJSON string

	// response_completed
	StopReason string
	Usage      *Usage

	// trace
	TraceKind string
	Raw       string
}

// TextDelta creates a text_delta event.
func TextDelta(text string) ProviderEvent {
	return ProviderEvent{Kind: KindTextDelta, Text: text}
}

// ToolCallStarted creates a tool_call_started event.
func ToolCallStarted(callID, toolName string) ProviderEvent {
	return ProviderEvent{Kind: KindToolCallStarted, CallID: callID, ToolName: toolName}
}

// ToolCallArgsDelta creates a tool_call_args_delta event.
func ToolCallArgsDelta(callID, fragment string) ProviderEvent {
	return ProviderEvent{Kind: KindToolCallArgsDelta, CallID: callID, Fragment: fragment}
}

// ToolCallReady creates a tool_call_ready event. ArgsJSON is always a
// complete JSON object; adapters substitute "{}" when nothing streamed.
func ToolCallReady(callID, toolName, argsJSON string) ProviderEvent {
	if argsJSON == "" {
		argsJSON = "{}"
	}
	return ProviderEvent{Kind: KindToolCallReady, CallID: callID, ToolName: toolName, ArgsJSON: argsJSON}
}

// ResponseCompleted creates the terminal response_completed event.
func ResponseCompleted(stopReason string, usage *Usage) ProviderEvent {
	return ProviderEvent{Kind: KindResponseCompleted, StopReason: stopReason, Usage: usage}
}

// Trace creates a trace event for errors, parse failures, and ignorable
// frames.
func Trace(traceKind, raw string) ProviderEvent {
	return ProviderEvent{Kind: KindTrace, TraceKind: traceKind, Raw: raw}
}

// TerminalStop reports whether a normalized stop reason means the
// assistant finished its turn with no more work.
func TerminalStop(reason string) bool {
	return reason == "end_turn" || reason == "stop"
}
