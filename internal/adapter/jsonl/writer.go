// Package jsonl implements the transcript port over an append-only
// newline-delimited JSON file. Each line is {timestamp, data}; lines
// are independently parseable so a truncated file loses at most its
// final line.
package jsonl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Strob0t/ForgeAgent/internal/domain/conversation"
	"github.com/Strob0t/ForgeAgent/internal/domain/session"
	"github.com/Strob0t/ForgeAgent/internal/domain/tool"
)

// entry is the envelope for every log line.
type entry struct {
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// MessagePayload is the "message" log record, the only kind the reader
// uses for conversation reconstruction.
type MessagePayload struct {
	Type string `json:"type"`
	conversation.Message
}

// SessionStartPayload records session identity at the top of the log.
type SessionStartPayload struct {
	Type string `json:"type"`
	session.Info
}

// UserPromptPayload is a diagnostic record of raw user input.
type UserPromptPayload struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// ToolResultPayload is a diagnostic record of one tool execution.
type ToolResultPayload struct {
	Type        string            `json:"type"`
	CallID      string            `json:"callId"`
	Tool        string            `json:"tool"`
	OK          bool              `json:"ok"`
	Diagnostics []tool.Diagnostic `json:"diagnostics,omitempty"`
}

// EventPayload is a diagnostic record of a stream event.
type EventPayload struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewMessagePayload wraps a conversation message for the log.
func NewMessagePayload(m conversation.Message) MessagePayload {
	return MessagePayload{Type: "message", Message: m}
}

// Writer appends timestamped entries to a session log file. It is safe
// for concurrent use; every line is flushed before Append returns.
type Writer struct {
	mu  sync.Mutex
	f   *os.File
	buf *bufio.Writer
	now func() time.Time
}

// NewWriter opens (or creates) the log file for appending, creating
// parent directories as needed.
func NewWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}
	return &Writer{
		f:   f,
		buf: bufio.NewWriter(f),
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

// Append writes one entry. Serialization problems are recorded as a
// synthetic error entry; Append never fails outward.
func (w *Writer) Append(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data, _ = json.Marshal(map[string]string{
			"type":  "error",
			"error": fmt.Sprintf("serialize log entry: %v", err),
		})
	}

	line, err := json.Marshal(entry{Timestamp: w.now(), Data: data})
	if err != nil {
		return // entry marshal of raw JSON cannot realistically fail
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = w.buf.Write(line)
	_ = w.buf.WriteByte('\n')
	_ = w.buf.Flush()
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.buf.Flush()
	return w.f.Close()
}
