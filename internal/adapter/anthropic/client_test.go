package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Strob0t/ForgeAgent/internal/domain/conversation"
	"github.com/Strob0t/ForgeAgent/internal/domain/event"
	"github.com/Strob0t/ForgeAgent/internal/domain/tool"
	"github.com/Strob0t/ForgeAgent/internal/port/provider"
)

func streamFrom(t *testing.T, frames []string) []event.ProviderEvent {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range frames {
			_, _ = w.Write([]byte(f + "\n\n"))
		}
	}))
	t.Cleanup(srv.Close)

	c := NewClient("test-key", time.Minute)
	c.baseURL = srv.URL
	ch, err := c.Stream(context.Background(), provider.Request{Model: "test-model", MaxTokens: 128})
	if err != nil {
		t.Fatal(err)
	}

	var events []event.ProviderEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestStreamTextAndEndTurn(t *testing.T) {
	events := streamFrom(t, []string{
		"event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"usage\":{\"input_tokens\":12}}}",
		"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"hi \"}}",
		"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"there\"}}",
		"event: message_delta\ndata: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"end_turn\"},\"usage\":{\"output_tokens\":7}}",
		"event: message_stop\ndata: {\"type\":\"message_stop\"}",
	})

	text := ""
	for _, ev := range events {
		if ev.Kind == event.KindTextDelta {
			text += ev.Text
		}
	}
	if text != "hi there" {
		t.Fatalf("text = %q", text)
	}

	last := events[len(events)-1]
	if last.Kind != event.KindResponseCompleted || last.StopReason != "end_turn" {
		t.Fatalf("last = %+v", last)
	}
	if last.Usage == nil || last.Usage.InputTokens != 12 || last.Usage.OutputTokens != 7 {
		t.Fatalf("usage = %+v", last.Usage)
	}
}

func TestStreamToolUseReassembly(t *testing.T) {
	events := streamFrom(t, []string{
		"event: content_block_start\ndata: {\"type\":\"content_block_start\",\"index\":0,\"content_block\":{\"type\":\"tool_use\",\"id\":\"toolu_1\",\"name\":\"SearchText\"}}",
		"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"input_json_delta\",\"partial_json\":\"{\\\"pattern\\\":\"}}",
		"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"input_json_delta\",\"partial_json\":\"\\\"todo\\\"}\"}}",
		"event: content_block_stop\ndata: {\"type\":\"content_block_stop\",\"index\":0}",
		"event: message_delta\ndata: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"tool_use\"}}",
		"event: message_stop\ndata: {\"type\":\"message_stop\"}",
	})

	var order []event.Kind
	var ready event.ProviderEvent
	for _, ev := range events {
		order = append(order, ev.Kind)
		if ev.Kind == event.KindToolCallReady {
			ready = ev
		}
	}

	startedIdx, readyIdx := -1, -1
	for i, k := range order {
		if k == event.KindToolCallStarted && startedIdx < 0 {
			startedIdx = i
		}
		if k == event.KindToolCallReady {
			readyIdx = i
		}
	}
	if startedIdx < 0 || readyIdx < startedIdx {
		t.Fatalf("ordering violated: %v", order)
	}

	if ready.CallID != "toolu_1" || ready.ToolName != "SearchText" {
		t.Fatalf("ready identity: %+v", ready)
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(ready.ArgsJSON), &args); err != nil {
		t.Fatalf("args not parseable: %v (%q)", err, ready.ArgsJSON)
	}
	if args["pattern"] != "todo" {
		t.Fatalf("args = %v", args)
	}

	last := events[len(events)-1]
	if last.StopReason != "tool_use" || event.TerminalStop(last.StopReason) {
		t.Fatalf("tool_use must be non-terminal: %+v", last)
	}
}

func TestStreamToolUseWithNoInputYieldsEmptyObject(t *testing.T) {
	events := streamFrom(t, []string{
		"event: content_block_start\ndata: {\"type\":\"content_block_start\",\"index\":0,\"content_block\":{\"type\":\"tool_use\",\"id\":\"toolu_2\",\"name\":\"GitStatus\"}}",
		"event: content_block_stop\ndata: {\"type\":\"content_block_stop\",\"index\":0}",
		"event: message_delta\ndata: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"tool_use\"}}",
	})

	for _, ev := range events {
		if ev.Kind == event.KindToolCallReady {
			if ev.ArgsJSON != "{}" {
				t.Fatalf("expected literal {}, got %q", ev.ArgsJSON)
			}
			return
		}
	}
	t.Fatal("no tool_call_ready emitted")
}

func TestStreamPingDropped(t *testing.T) {
	events := streamFrom(t, []string{
		"event: ping\ndata: {\"type\":\"ping\"}",
		"event: message_delta\ndata: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"end_turn\"}}",
	})
	for _, ev := range events {
		if ev.Kind == event.KindTrace {
			t.Fatalf("ping must be dropped silently, got %+v", ev)
		}
	}
}

func TestStreamErrorEvent(t *testing.T) {
	events := streamFrom(t, []string{
		"event: error\ndata: {\"type\":\"error\",\"error\":{\"message\":\"overloaded\"}}",
	})
	if len(events) != 2 {
		t.Fatalf("expected trace + completed, got %+v", events)
	}
	if events[0].TraceKind != event.TraceError || events[1].StopReason != "error" {
		t.Fatalf("error mapping failed: %+v", events)
	}
}

func TestBuildRequestToolResultMapping(t *testing.T) {
	c := NewClient("k", time.Minute)
	res := tool.Result{OK: true, Data: map[string]any{"branch": "main"}}
	payload := c.buildRequest(provider.Request{
		Model: "m",
		Messages: []conversation.Message{
			conversation.User("check status"),
			conversation.Assistant("", []conversation.ToolCall{{CallID: "t1", Name: "GitStatus", ArgsJSON: "{}"}}),
			conversation.ToolResult("t1", "GitStatus", res),
		},
	})

	msgs := payload["messages"].([]apiMessage)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[1].Content[0].Type != "tool_use" || msgs[1].Content[0].ID != "t1" {
		t.Fatalf("assistant tool_use mapping: %+v", msgs[1])
	}
	last := msgs[2]
	if last.Role != "user" || last.Content[0].Type != "tool_result" || last.Content[0].ToolUseID != "t1" {
		t.Fatalf("tool_result mapping: %+v", last)
	}
}
