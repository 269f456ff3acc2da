// Package terminal implements the interactive surface: a line-based
// REPL, a synchronous approval prompt, and a styled event sink.
package terminal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/Strob0t/ForgeAgent/internal/domain/event"
	"github.com/Strob0t/ForgeAgent/internal/service"
)

var (
	toolStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	doneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	resultStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Sink renders stream events for a human. Streamed text goes out raw;
// everything else is a styled bracket line.
type Sink struct {
	mu  sync.Mutex
	out io.Writer

	// midLine tracks whether streamed text left the cursor mid-line, so
	// bracket lines can start cleanly.
	midLine bool
}

// NewSink creates a Sink writing to out.
func NewSink(out io.Writer) *Sink {
	return &Sink{out: out}
}

// Send implements broadcast.Sink.
func (s *Sink) Send(_ context.Context, ev event.StreamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case event.StreamTextDelta:
		var p event.TextDeltaPayload
		if json.Unmarshal(ev.Payload, &p) == nil {
			fmt.Fprint(s.out, p.Text)
			if len(p.Text) > 0 {
				s.midLine = p.Text[len(p.Text)-1] != '\n'
			}
		}

	case event.StreamToolCall:
		var p event.ToolCallPayload
		if json.Unmarshal(ev.Payload, &p) == nil {
			s.line(toolStyle.Render(fmt.Sprintf("[tool] %s args=%s", p.Tool, p.Args)))
		}

	case event.StreamToolResult:
		var p event.ToolResultPayload
		if json.Unmarshal(ev.Payload, &p) == nil {
			status := "ok"
			if !p.OK {
				status = "failed"
				if len(p.Diagnostics) > 0 {
					status = "failed: " + p.Diagnostics[0].Message
				}
			}
			s.line(resultStyle.Render(fmt.Sprintf("[tool] %s -> %s", p.Tool, status)))
		}

	case event.StreamCompleted:
		var p event.CompletedPayload
		if json.Unmarshal(ev.Payload, &p) == nil {
			if marker := completionMarker(p.Reason); marker != "" {
				s.line(marker)
			}
		}

	case event.StreamTrace:
		var p event.TracePayload
		if json.Unmarshal(ev.Payload, &p) == nil && p.Kind == event.TraceError {
			s.line(warnStyle.Render("[provider] " + p.Raw))
		}

	case event.StreamError:
		var p event.ErrorPayload
		if json.Unmarshal(ev.Payload, &p) == nil {
			s.line(errStyle.Render("[Error] " + p.Message))
		}
	}
}

// line prints one bracket line on its own row.
func (s *Sink) line(text string) {
	if s.midLine {
		fmt.Fprintln(s.out)
		s.midLine = false
	}
	fmt.Fprintln(s.out, text)
}

// completionMarker maps runner completion reasons to their user-visible
// markers. A silent stop renders nothing.
func completionMarker(reason string) string {
	switch reason {
	case service.ReasonCompleted:
		return doneStyle.Render("[Agent completed]")
	case service.ReasonNoResponse:
		return warnStyle.Render("[No response]")
	case service.ReasonMaxIterations:
		return warnStyle.Render("[Max iterations reached]")
	case service.ReasonCancelled:
		return warnStyle.Render("[Cancelled]")
	default:
		return ""
	}
}
