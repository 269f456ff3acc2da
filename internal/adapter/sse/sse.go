// Package sse provides a minimal reader for text/event-stream bodies,
// shared by the provider adapters.
package sse

import (
	"bufio"
	"io"
	"strings"
)

// Event is one server-sent event frame.
type Event struct {
	Name string // the `event:` field, "" when absent
	Data string // concatenated `data:` lines
}

// Scanner reads SSE frames from a stream. Comment lines (leading ':')
// and unknown fields are dropped, per the SSE wire format.
type Scanner struct {
	r       *bufio.Scanner
	err     error
	current Event
}

// NewScanner wraps an event-stream body.
func NewScanner(r io.Reader) *Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &Scanner{r: s}
}

// Next returns the next frame, or false at end of stream.
func (s *Scanner) Next() (Event, bool) {
	var name string
	var data []string

	for s.r.Scan() {
		line := s.r.Text()
		switch {
		case line == "":
			if len(data) > 0 || name != "" {
				return Event{Name: name, Data: strings.Join(data, "\n")}, true
			}
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive, dropped silently
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	s.err = s.r.Err()

	if len(data) > 0 || name != "" {
		return Event{Name: name, Data: strings.Join(data, "\n")}, true
	}
	return Event{}, false
}

// Err returns the first read error, if any.
func (s *Scanner) Err() error { return s.err }
