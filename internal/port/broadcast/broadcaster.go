// Package broadcast defines the port the runner uses to surface events
// to whatever is watching: a terminal, an SSE stream, a WebSocket hub.
package broadcast

import (
	"context"

	"github.com/Strob0t/ForgeAgent/internal/domain/event"
)

// Sink receives stream events in emission order. Send must not block
// the runner; buffering is the sink's responsibility.
type Sink interface {
	Send(ctx context.Context, ev event.StreamEvent)
}

// Fanout delivers each event to every sink in order.
type Fanout []Sink

// Send implements Sink.
func (f Fanout) Send(ctx context.Context, ev event.StreamEvent) {
	for _, s := range f {
		if s != nil {
			s.Send(ctx, ev)
		}
	}
}
