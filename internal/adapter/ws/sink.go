package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Strob0t/ForgeAgent/internal/domain/event"
)

// envelope is the payload shape broadcast for session events: the
// session id plus the original event payload.
type envelope struct {
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

// SessionSink adapts the hub to the broadcast port for one session.
type SessionSink struct {
	hub       *Hub
	sessionID string
}

// NewSessionSink creates a sink mirroring one session's events to hub.
func NewSessionSink(hub *Hub, sessionID string) *SessionSink {
	return &SessionSink{hub: hub, sessionID: sessionID}
}

// Send implements broadcast.Sink.
func (s *SessionSink) Send(ctx context.Context, ev event.StreamEvent) {
	payload, err := json.Marshal(envelope{SessionID: s.sessionID, Data: ev.Payload})
	if err != nil {
		slog.Error("marshal ws envelope", "error", err)
		return
	}
	s.hub.Publish(ctx, s.sessionID, Message{Type: ev.Type, Payload: payload})
}
