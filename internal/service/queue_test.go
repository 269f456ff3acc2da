package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Strob0t/ForgeAgent/internal/domain/event"
)

func TestEventQueueOrder(t *testing.T) {
	q := NewEventQueue()
	ctx := context.Background()

	for _, txt := range []string{"a", "b", "c"} {
		q.Send(ctx, event.NewStreamEvent(event.StreamTextDelta, event.TextDeltaPayload{Text: txt}))
	}

	for _, want := range []string{`"a"`, `"b"`, `"c"`} {
		ev, ok := q.Pull(ctx)
		if !ok {
			t.Fatal("queue drained early")
		}
		if ev.Type != event.StreamTextDelta || !strings.Contains(string(ev.Payload), want) {
			t.Fatalf("out of order: %s %s", ev.Type, ev.Payload)
		}
	}
}

func TestEventQueueSendNeverBlocks(t *testing.T) {
	q := NewEventQueue()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 10_000 {
			q.Send(context.Background(), event.NewStreamEvent(event.StreamTrace, event.TracePayload{}))
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Send blocked with no reader")
	}
	if q.Len() != 10_000 {
		t.Fatalf("buffered %d events, want 10000", q.Len())
	}
}

func TestEventQueuePullWaitsForEvent(t *testing.T) {
	q := NewEventQueue()

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Send(context.Background(), event.NewStreamEvent(event.StreamCompleted, event.CompletedPayload{Reason: "x"}))
	}()

	ev, ok := q.Pull(context.Background())
	if !ok || ev.Type != event.StreamCompleted {
		t.Fatalf("Pull = (%+v, %t)", ev, ok)
	}
}

func TestEventQueuePullHonorsContext(t *testing.T) {
	q := NewEventQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, ok := q.Pull(ctx); ok {
		t.Fatal("Pull should fail on context expiry")
	}
}

func TestEventQueueBuffersAcrossReaders(t *testing.T) {
	q := NewEventQueue()
	ctx := context.Background()

	q.Send(ctx, event.NewStreamEvent(event.StreamTextDelta, event.TextDeltaPayload{Text: "while disconnected"}))

	// A later reader still sees everything emitted before it attached.
	ev, ok := q.Pull(ctx)
	if !ok || ev.Type != event.StreamTextDelta {
		t.Fatalf("buffered event lost: %+v", ev)
	}
}
