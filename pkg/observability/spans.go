package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "analystd.orchestrator"

	SpanTurn = "orchestrator.turn"
	SpanTool = "orchestrator.tool_call"

	AttrConversationID = "conversation_id"
	AttrMode            = "mode"
	AttrToolName        = "tool_name"
	AttrOccurrence      = "occurrence"
)

// StartTurnSpan opens the one span per turn required by spec.md §5.
func StartTurnSpan(ctx context.Context, conversationID, mode string) (context.Context, trace.Span) {
	return Tracer(tracerName).Start(ctx, SpanTurn, trace.WithAttributes(
		attribute.String(AttrConversationID, conversationID),
		attribute.String(AttrMode, mode),
	))
}

// StartToolSpan opens the one span per tool call required by spec.md §5.
func StartToolSpan(ctx context.Context, toolName string, occurrence int) (context.Context, trace.Span) {
	return Tracer(tracerName).Start(ctx, SpanTool, trace.WithAttributes(
		attribute.String(AttrToolName, toolName),
		attribute.Int(AttrOccurrence, occurrence),
	))
}

// EndWithError records err on span (if non-nil) and ends it.
func EndWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
