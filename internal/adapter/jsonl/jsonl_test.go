package jsonl

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Strob0t/ForgeAgent/internal/domain/conversation"
	"github.com/Strob0t/ForgeAgent/internal/domain/tool"
)

func logPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "session_test.jsonl")
}

func TestRoundTrip(t *testing.T) {
	path := logPath(t)
	w, err := NewWriter(path)
	if err != nil {
		t.Fatal(err)
	}

	original := []conversation.Message{
		conversation.User("hi"),
		conversation.Assistant("ok", []conversation.ToolCall{
			{CallID: "c1", Name: "ReadFile", ArgsJSON: "{}"},
		}),
		conversation.ToolResult("c1", "ReadFile", tool.Result{OK: true}),
	}
	for _, m := range original {
		w.Append(NewMessagePayload(m))
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := Reader{}.ReadMessages(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(original) {
		t.Fatalf("expected %d messages, got %d", len(original), len(got))
	}

	if got[0].Role != conversation.RoleUser || got[0].Content != "hi" {
		t.Fatalf("user message mismatch: %+v", got[0])
	}
	if got[1].Role != conversation.RoleAssistant || got[1].Content != "ok" {
		t.Fatalf("assistant message mismatch: %+v", got[1])
	}
	if len(got[1].ToolCalls) != 1 || got[1].ToolCalls[0].CallID != "c1" ||
		got[1].ToolCalls[0].Name != "ReadFile" || got[1].ToolCalls[0].ArgsJSON != "{}" {
		t.Fatalf("tool calls mismatch: %+v", got[1].ToolCalls)
	}
	if got[2].Role != conversation.RoleTool || got[2].CallID != "c1" ||
		got[2].ToolName != "ReadFile" || got[2].Result == nil || !got[2].Result.OK {
		t.Fatalf("tool result mismatch: %+v", got[2])
	}
}

func TestReaderSkipsDiagnosticEntries(t *testing.T) {
	path := logPath(t)
	w, err := NewWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	w.Append(UserPromptPayload{Type: "user_prompt", Content: "raw"})
	w.Append(NewMessagePayload(conversation.User("hi")))
	w.Append(ToolResultPayload{Type: "tool_result", CallID: "c1", Tool: "ReadFile", OK: true})
	_ = w.Close()

	got, err := Reader{}.ReadMessages(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
}

func TestReaderWarnsOnBadLinesAndContinues(t *testing.T) {
	path := logPath(t)
	content := strings.Join([]string{
		`{"timestamp":"2025-01-01T00:00:00Z","data":{"type":"message","role":"user","content":"first"}}`,
		`this is not json`,
		`{"timestamp":"2025-01-01T00:00:01Z","data":{"type":"message","role":"tool"}}`,
		`{"timestamp":"2025-01-01T00:00:02Z","data":{"type":"message","role":"user","content":"second"}}`,
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	var warned []int
	got, err := Reader{}.ReadMessages(path, func(line int, _ error) {
		warned = append(warned, line)
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 surviving messages, got %d", len(got))
	}
	if len(warned) != 2 {
		t.Fatalf("expected 2 warnings (lines 2 and 3), got %v", warned)
	}
}

func TestWriterLinesIndependentlyParseable(t *testing.T) {
	path := logPath(t)
	w, err := NewWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	w.Append(NewMessagePayload(conversation.User("a")))
	w.Append(NewMessagePayload(conversation.User("b")))
	_ = w.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	for i, line := range lines {
		var e map[string]any
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("line %d not independently parseable: %v", i+1, err)
		}
		if _, ok := e["timestamp"]; !ok {
			t.Fatalf("line %d missing timestamp", i+1)
		}
	}
}

func TestResumeAppendsToSameFile(t *testing.T) {
	path := logPath(t)
	w1, _ := NewWriter(path)
	w1.Append(NewMessagePayload(conversation.User("one")))
	_ = w1.Close()

	w2, _ := NewWriter(path)
	w2.Append(NewMessagePayload(conversation.User("two")))
	_ = w2.Close()

	got, err := Reader{}.ReadMessages(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Content != "one" || got[1].Content != "two" {
		t.Fatalf("resume append failed: %+v", got)
	}
}
