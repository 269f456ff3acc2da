package sse

import (
	"strings"
	"testing"
)

func TestScannerFrames(t *testing.T) {
	input := "event: message_start\ndata: {\"a\":1}\n\n" +
		": keep-alive comment\n\n" +
		"data: {\"b\":2}\n\n"

	s := NewScanner(strings.NewReader(input))

	first, ok := s.Next()
	if !ok || first.Name != "message_start" || first.Data != `{"a":1}` {
		t.Fatalf("first frame = %+v", first)
	}

	second, ok := s.Next()
	if !ok || second.Name != "" || second.Data != `{"b":2}` {
		t.Fatalf("second frame = %+v", second)
	}

	if _, ok := s.Next(); ok {
		t.Fatal("expected end of stream")
	}
	if s.Err() != nil {
		t.Fatalf("unexpected error: %v", s.Err())
	}
}

func TestScannerMultiLineData(t *testing.T) {
	input := "data: line1\ndata: line2\n\n"
	s := NewScanner(strings.NewReader(input))

	frame, ok := s.Next()
	if !ok || frame.Data != "line1\nline2" {
		t.Fatalf("frame = %+v", frame)
	}
}

func TestScannerUnterminatedTailFrame(t *testing.T) {
	s := NewScanner(strings.NewReader("data: tail"))
	frame, ok := s.Next()
	if !ok || frame.Data != "tail" {
		t.Fatalf("tail frame lost: %+v", frame)
	}
}
