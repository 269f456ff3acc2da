package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	faotel "github.com/Strob0t/ForgeAgent/internal/adapter/otel"
	"github.com/Strob0t/ForgeAgent/internal/adapter/jsonl"
	"github.com/Strob0t/ForgeAgent/internal/domain/conversation"
	"github.com/Strob0t/ForgeAgent/internal/domain/event"
	"github.com/Strob0t/ForgeAgent/internal/domain/policy"
	"github.com/Strob0t/ForgeAgent/internal/domain/tool"
	"github.com/Strob0t/ForgeAgent/internal/logger"
	"github.com/Strob0t/ForgeAgent/internal/port/approval"
	"github.com/Strob0t/ForgeAgent/internal/port/provider"
)

// Completion reasons carried in the terminal stream event. UI sinks
// render them ([Agent completed], [No response], ...).
const (
	ReasonCompleted     = "completed"
	ReasonNoResponse    = "no_response"
	ReasonStopped       = "stopped"
	ReasonMaxIterations = "max_iterations"
	ReasonCancelled     = "cancelled"
)

// Runner drives the turn/tool loop for a session. One Runner serves any
// number of sessions; per-session exclusivity comes from the session's
// run mutex.
type Runner struct {
	logger  *slog.Logger
	metrics *faotel.Metrics
}

// NewRunner creates a Runner. metrics may be nil.
func NewRunner(logger *slog.Logger, metrics *faotel.Metrics) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger, metrics: metrics}
}

// Run executes one user prompt to completion: it appends the prompt,
// then alternates model turns and tool executions until the model
// signals end of turn, the iteration budget is exhausted, or ctx is
// cancelled. The caller must hold the session's run mutex.
func (r *Runner) Run(ctx context.Context, s *Session, prompt string) {
	ctx = logger.WithSessionID(ctx, s.Info.ID)
	ctx, span := faotel.StartRunSpan(ctx, s.Info.ID, s.Options.Model)
	defer span.End()
	if r.metrics != nil {
		r.metrics.RunsStarted.Add(ctx, 1)
	}

	userMsg := conversation.User(prompt)
	s.AppendMessage(userMsg)
	s.Log.Append(jsonl.UserPromptPayload{Type: "user_prompt", Content: prompt})
	s.Log.Append(jsonl.NewMessagePayload(userMsg))

	reason := r.loop(ctx, s)

	s.Sink.Send(ctx, event.NewStreamEvent(event.StreamCompleted, event.CompletedPayload{Reason: reason}))
	if r.metrics != nil {
		r.metrics.RunsCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
	r.logger.Info("run finished", "session_id", s.Info.ID, "reason", reason)
}

// loop is the turn cycle; it returns the completion reason.
func (r *Runner) loop(ctx context.Context, s *Session) string {
	for iteration := 1; iteration <= s.Options.MaxIterations; iteration++ {
		if ctx.Err() != nil {
			return ReasonCancelled
		}

		turn, err := r.consumeTurn(ctx, s, iteration)
		if err != nil {
			s.Sink.Send(ctx, event.NewStreamEvent(event.StreamError, event.ErrorPayload{Message: err.Error()}))
			return ReasonNoResponse
		}
		if ctx.Err() != nil {
			return ReasonCancelled
		}

		if turn.text != "" || len(turn.pending) > 0 {
			assistantMsg := conversation.Assistant(turn.text, turn.pending)
			s.AppendMessage(assistantMsg)
			s.Log.Append(jsonl.NewMessagePayload(assistantMsg))
		}

		switch {
		case len(turn.pending) == 0 && turn.completed:
			return ReasonCompleted

		case len(turn.pending) == 0 && turn.text == "" && !turn.completed:
			if turn.providerErr != "" {
				s.Sink.Send(ctx, event.NewStreamEvent(event.StreamError, event.ErrorPayload{
					Message: fmt.Sprintf("provider error (stop: %s): %s", turn.stopReason, turn.providerErr),
				}))
			}
			return ReasonNoResponse

		case len(turn.pending) > 0:
			for _, call := range turn.pending {
				if ctx.Err() != nil {
					return ReasonCancelled
				}
				res := r.executeCall(ctx, s, call)

				resultMsg := conversation.ToolResult(call.CallID, call.Name, res)
				s.AppendMessage(resultMsg)
				s.Log.Append(jsonl.NewMessagePayload(resultMsg))
				s.Log.Append(jsonl.ToolResultPayload{
					Type:        "tool_result",
					CallID:      call.CallID,
					Tool:        call.Name,
					OK:          res.OK,
					Diagnostics: res.Diagnostics,
				})
				s.Sink.Send(ctx, event.NewStreamEvent(event.StreamToolResult, event.ToolResultPayload{
					CallID:      call.CallID,
					Tool:        call.Name,
					OK:          res.OK,
					Diagnostics: res.Diagnostics,
				}))
			}
			// results appended; ask the model again

		default:
			// Text arrived but the model neither finished nor asked for
			// work. There is nothing to execute, so stop here rather
			// than burn iterations.
			return ReasonStopped
		}
	}
	return ReasonMaxIterations
}

// turnResult accumulates one consumed provider stream.
type turnResult struct {
	text        string
	pending     []conversation.ToolCall
	completed   bool
	stopReason  string
	providerErr string
}

// consumeTurn sends the conversation to the provider and folds the
// normalized event stream into a turnResult.
func (r *Runner) consumeTurn(ctx context.Context, s *Session, iteration int) (turnResult, error) {
	ctx, span := faotel.StartTurnSpan(ctx, iteration)
	defer span.End()
	started := time.Now()

	req := provider.Request{
		Model:        s.Options.Model,
		SystemPrompt: s.Options.SystemPrompt,
		Messages:     s.Messages(),
		Tools:        s.Registry.Descriptors(),
		MaxTokens:    s.Options.MaxTokens,
		Temperature:  s.Options.Temperature,
	}

	var turn turnResult
	stream, err := s.Provider.Stream(ctx, req)
	if err != nil {
		return turn, fmt.Errorf("provider stream: %w", err)
	}

	var textBuf []byte
	for ev := range stream {
		switch ev.Kind {
		case event.KindTextDelta:
			textBuf = append(textBuf, ev.Text...)
			s.Sink.Send(ctx, event.NewStreamEvent(event.StreamTextDelta, event.TextDeltaPayload{Text: ev.Text}))

		case event.KindToolCallStarted:
			r.logger.Debug("tool call started", "session_id", s.Info.ID, "call_id", ev.CallID, "tool", ev.ToolName)

		case event.KindToolCallArgsDelta:
			// fragments are adapter-internal; nothing to surface

		case event.KindToolCallReady:
			turn.pending = append(turn.pending, conversation.ToolCall{
				CallID:   ev.CallID,
				Name:     ev.ToolName,
				ArgsJSON: ev.ArgsJSON,
			})
			s.Sink.Send(ctx, event.NewStreamEvent(event.StreamToolCall, event.ToolCallPayload{
				CallID: ev.CallID,
				Tool:   ev.ToolName,
				Args:   ev.ArgsJSON,
			}))

		case event.KindTrace:
			if ev.TraceKind == event.TraceError {
				turn.providerErr = ev.Raw
			}
			s.Sink.Send(ctx, event.NewStreamEvent(event.StreamTrace, event.TracePayload{Kind: ev.TraceKind, Raw: ev.Raw}))

		case event.KindResponseCompleted:
			turn.stopReason = ev.StopReason
			turn.completed = event.TerminalStop(ev.StopReason)
		}
	}
	turn.text = string(textBuf)

	if r.metrics != nil {
		r.metrics.TurnDuration.Record(ctx, time.Since(started).Seconds())
	}
	return turn, nil
}

// executeCall resolves, gates, and executes one tool call. Failures of
// any kind come back as failed results; nothing escapes to the caller.
func (r *Runner) executeCall(ctx context.Context, s *Session, call conversation.ToolCall) (res tool.Result) {
	ctx, span := faotel.StartToolCallSpan(ctx, call.CallID, call.Name)
	defer func() {
		span.SetAttributes(attribute.Bool("toolcall.ok", res.OK))
		span.End()
		if r.metrics != nil {
			r.metrics.ToolCalls.Add(ctx, 1, metric.WithAttributes(
				attribute.String("tool", call.Name),
				attribute.Bool("ok", res.OK),
			))
		}
	}()

	t, ok := s.Registry.Get(call.Name)
	if !ok {
		return tool.Failure("UnknownTool", fmt.Sprintf("Unknown tool: %s", call.Name))
	}

	eval := s.Policy.Evaluate(t.Descriptor(), call.ArgsJSON)
	switch eval.Decision {
	case policy.DecisionDeny:
		return tool.Failure("PolicyDenied", "Tool execution denied by policy")

	case policy.DecisionAsk:
		approved, err := s.Approver.RequestApproval(ctx, approval.Request{
			CallID:   call.CallID,
			Tool:     call.Name,
			ArgsJSON: call.ArgsJSON,
			Reason:   eval.Reason,
		})
		if err != nil {
			return tool.Failure("Cancelled", fmt.Sprintf("approval interrupted: %v", err))
		}
		if !approved {
			return tool.Failure("ApprovalDenied", "User denied approval")
		}
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool panicked", "tool", call.Name, "panic", p)
			res = tool.Failure("ToolPanic", fmt.Sprintf("Tool execution failed: %v", p))
		}
	}()

	res = t.Execute(ctx, json.RawMessage(call.ArgsJSON), s.Exec)
	r.logger.Info("tool executed",
		"session_id", s.Info.ID,
		"call_id", call.CallID,
		"tool", call.Name,
		"ok", res.OK,
	)
	return res
}
