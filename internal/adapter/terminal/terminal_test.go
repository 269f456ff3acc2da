package terminal

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/Strob0t/ForgeAgent/internal/domain/event"
	"github.com/Strob0t/ForgeAgent/internal/port/approval"
	"github.com/Strob0t/ForgeAgent/internal/service"
)

func TestApproverAcceptsYOnly(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"Y\n", true},
		{"  y  \n", true},
		{"yes\n", false},
		{"n\n", false},
		{"\n", false},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			a := NewApproverWith(strings.NewReader(tt.input), &out)
			got, err := a.RequestApproval(context.Background(), approval.Request{Tool: "RunCommand"})
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("input %q -> %t, want %t", tt.input, got, tt.want)
			}
		})
	}
}

func TestApproverEOFDenies(t *testing.T) {
	var out bytes.Buffer
	a := NewApproverWith(strings.NewReader(""), &out)
	got, err := a.RequestApproval(context.Background(), approval.Request{Tool: "ApplyPatch"})
	if err != nil || got {
		t.Fatalf("EOF must deny cleanly, got (%t, %v)", got, err)
	}
}

func TestSinkRendersMarkers(t *testing.T) {
	var out bytes.Buffer
	s := NewSink(&out)
	ctx := context.Background()

	s.Send(ctx, event.NewStreamEvent(event.StreamTextDelta, event.TextDeltaPayload{Text: "hello"}))
	s.Send(ctx, event.NewStreamEvent(event.StreamToolCall, event.ToolCallPayload{Tool: "ReadFile", Args: "{}"}))
	s.Send(ctx, event.NewStreamEvent(event.StreamCompleted, event.CompletedPayload{Reason: service.ReasonCompleted}))

	text := out.String()
	if !strings.Contains(text, "hello") {
		t.Fatalf("streamed text missing: %q", text)
	}
	if !strings.Contains(text, "[tool] ReadFile args={}") {
		t.Fatalf("tool line missing: %q", text)
	}
	if !strings.Contains(text, "[Agent completed]") {
		t.Fatalf("completion marker missing: %q", text)
	}
}

func TestSinkSilentStop(t *testing.T) {
	var out bytes.Buffer
	s := NewSink(&out)
	s.Send(context.Background(), event.NewStreamEvent(event.StreamCompleted, event.CompletedPayload{Reason: service.ReasonStopped}))
	if out.Len() != 0 {
		t.Fatalf("silent stop must render nothing, got %q", out.String())
	}
}
