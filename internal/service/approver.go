package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Strob0t/ForgeAgent/internal/domain/event"
	"github.com/Strob0t/ForgeAgent/internal/logger"
	"github.com/Strob0t/ForgeAgent/internal/port/approval"
	"github.com/Strob0t/ForgeAgent/internal/port/broadcast"
)

// AsyncApprover implements the approval port for server sessions: it
// emits an approval_required event on the session stream and suspends
// until an out-of-band Resolve call or cancellation.
type AsyncApprover struct {
	sink    broadcast.Sink
	mu      sync.Mutex
	pending map[string]chan bool
}

// NewAsyncApprover creates an approver that publishes requests to sink.
func NewAsyncApprover(sink broadcast.Sink) *AsyncApprover {
	return &AsyncApprover{
		sink:    sink,
		pending: make(map[string]chan bool),
	}
}

// RequestApproval implements approval.Arbitrator. The correlation id is
// the call id when present, a fresh one otherwise.
func (a *AsyncApprover) RequestApproval(ctx context.Context, req approval.Request) (bool, error) {
	callID := req.CallID
	if callID == "" {
		callID = uuid.NewString()
	}

	ch := make(chan bool, 1)
	a.mu.Lock()
	a.pending[callID] = ch
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.pending, callID)
		a.mu.Unlock()
	}()

	a.sink.Send(ctx, event.NewStreamEvent(event.StreamApprovalRequired, event.ApprovalRequiredPayload{
		CallID: callID,
		Tool:   req.Tool,
		Args:   req.ArgsJSON,
		Reason: req.Reason,
	}))

	slog.Info("approval requested",
		"session_id", logger.SessionID(ctx),
		"call_id", callID,
		"tool", req.Tool,
	)

	select {
	case approved := <-ch:
		return approved, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Resolve completes a pending approval. Returns false when no approval
// with that call id is waiting; resolution is single-shot.
func (a *AsyncApprover) Resolve(callID string, approved bool) bool {
	a.mu.Lock()
	ch, ok := a.pending[callID]
	if ok {
		delete(a.pending, callID)
	}
	a.mu.Unlock()
	if !ok {
		return false
	}

	ch <- approved
	return true
}
