package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "forgeagent"

// StartRunSpan starts a span covering one orchestrator run.
func StartRunSpan(ctx context.Context, sessionID, model string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "run",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("llm.model", model),
		),
	)
}

// StartTurnSpan starts a span for one model turn within a run.
func StartTurnSpan(ctx context.Context, iteration int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "turn",
		trace.WithAttributes(
			attribute.Int("turn.iteration", iteration),
		),
	)
}

// StartToolCallSpan starts a span for one tool execution.
func StartToolCallSpan(ctx context.Context, callID, toolName string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "toolcall",
		trace.WithAttributes(
			attribute.String("toolcall.id", callID),
			attribute.String("toolcall.tool", toolName),
		),
	)
}
