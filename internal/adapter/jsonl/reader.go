package jsonl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Strob0t/ForgeAgent/internal/domain/conversation"
	"github.com/Strob0t/ForgeAgent/internal/port/transcript"
)

// Reader reconstructs conversations from session log files.
type Reader struct{}

var _ transcript.Reader = Reader{}

// ReadMessages parses the log at path and returns its conversation
// messages in order. Non-message entries are skipped; lines that fail
// to parse are reported through warn and skipped — the reader never
// aborts the whole file.
func (Reader) ReadMessages(path string, warn transcript.WarnFunc) ([]conversation.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}
	defer func() { _ = f.Close() }()

	if warn == nil {
		warn = func(int, error) {}
	}

	var messages []conversation.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var e entry
		if err := json.Unmarshal(raw, &e); err != nil {
			warn(lineNo, fmt.Errorf("malformed entry: %w", err))
			continue
		}

		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(e.Data, &probe); err != nil {
			warn(lineNo, fmt.Errorf("malformed payload: %w", err))
			continue
		}
		if probe.Type != "message" {
			continue
		}

		var payload MessagePayload
		if err := json.Unmarshal(e.Data, &payload); err != nil {
			warn(lineNo, fmt.Errorf("malformed message: %w", err))
			continue
		}
		msg, err := validateMessage(payload.Message)
		if err != nil {
			warn(lineNo, err)
			continue
		}
		messages = append(messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return messages, fmt.Errorf("read session log: %w", err)
	}
	return messages, nil
}

// validateMessage checks the variant-specific required fields.
func validateMessage(m conversation.Message) (conversation.Message, error) {
	switch m.Role {
	case conversation.RoleUser:
		if m.Content == "" {
			return m, fmt.Errorf("user message without content")
		}
	case conversation.RoleAssistant:
		// text and tool calls are both optional, but not both absent
		if m.Content == "" && len(m.ToolCalls) == 0 {
			return m, fmt.Errorf("assistant message with neither content nor tool calls")
		}
	case conversation.RoleTool:
		if m.CallID == "" || m.ToolName == "" || m.Result == nil {
			return m, fmt.Errorf("tool message missing callId, toolName, or result")
		}
	default:
		return m, fmt.Errorf("unknown role %q", m.Role)
	}
	return m, nil
}
